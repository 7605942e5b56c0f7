// Package netx holds transport-level helpers: a progress-reporting reader
// for request bodies and network error predicates.
package netx

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
)

// ProgressReader wraps an io.Reader and reports integer percentages of
// total as bytes are read. Reported values never decrease and each value
// is reported at most once.
type ProgressReader struct {
	r        io.Reader
	total    int64
	read     int64
	last     int
	onUpdate func(percent int)
	mu       sync.Mutex
}

// NewProgressReader returns a reader over r. total <= 0 disables reporting
// until Finish is called.
func NewProgressReader(r io.Reader, total int64, onUpdate func(percent int)) *ProgressReader {
	return &ProgressReader{r: r, total: total, last: -1, onUpdate: onUpdate}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.read += int64(n)
		var pct int
		if p.total > 0 {
			pct = int(p.read * 100 / p.total)
		}
		p.mu.Unlock()
		// 100 is reserved for Finish so that it means "server accepted".
		if pct > 99 {
			pct = 99
		}
		p.report(pct)
	}
	return n, err
}

// Start reports 0%. Call it before the first Read so that every attempt
// begins its sequence at zero.
func (p *ProgressReader) Start() {
	p.report(0)
}

// Finish reports 100%.
func (p *ProgressReader) Finish() {
	p.report(100)
}

func (p *ProgressReader) report(pct int) {
	p.mu.Lock()
	if pct <= p.last {
		p.mu.Unlock()
		return
	}
	p.last = pct
	fn := p.onUpdate
	p.mu.Unlock()

	if fn != nil {
		fn(pct)
	}
}

// IsTimeout reports whether err is a deadline or net timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded")
}

// IsNetworkError reports whether err came from the network layer rather
// than from an HTTP response.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if IsTimeout(err) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection refused", "connection reset", "broken pipe", "no such host", "network", "eof"} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
