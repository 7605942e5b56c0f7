// Package announce is the process-wide accessible announcement channel.
// The pipeline publishes a short status line on every phase change; the
// sink decides how it reaches assistive output. Only the latest pending
// message is kept.
package announce

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Sink receives announcements.
type Sink interface {
	Announce(msg string)
	Close() error
}

var (
	mu      sync.Mutex
	current Sink

	// newDefaultSink is called on the first Publish when no sink was set.
	newDefaultSink = func() Sink { return NewWriterSink(os.Stderr) }
)

// Publish sends msg to the current sink, creating the default one lazily.
func Publish(msg string) {
	mu.Lock()
	if current == nil {
		current = newDefaultSink()
	}
	s := current
	mu.Unlock()

	s.Announce(msg)
}

// SetSink installs s and closes the previous sink. A nil s restores lazy
// creation of the default.
func SetSink(s Sink) error {
	mu.Lock()
	prev := current
	current = s
	mu.Unlock()

	if prev != nil && prev != s {
		return prev.Close()
	}
	return nil
}

// Shutdown closes the current sink. A later Publish starts a new one.
func Shutdown() error {
	return SetSink(nil)
}

// WriterSink writes announcements to w from a single goroutine. When the
// writer falls behind, a pending message is replaced by the newer one.
type WriterSink struct {
	w    io.Writer
	slot chan string
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewWriterSink(w io.Writer) *WriterSink {
	s := &WriterSink{
		w:    w,
		slot: make(chan string, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *WriterSink) run() {
	defer close(s.done)
	for msg := range s.slot {
		fmt.Fprintln(s.w, msg)
	}
}

// Announce queues msg. Messages sent after Close are dropped.
func (s *WriterSink) Announce(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.slot <- msg:
			return
		default:
		}
		select {
		case <-s.slot:
		default:
		}
	}
}

// Close flushes the pending message and stops the writer goroutine.
func (s *WriterSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.slot)
	}
	s.mu.Unlock()
	<-s.done
	return nil
}

// FuncSink adapts a function to Sink.
type FuncSink func(msg string)

func (f FuncSink) Announce(msg string) { f(msg) }
func (f FuncSink) Close() error        { return nil }
