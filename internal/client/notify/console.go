package notify

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Console prints notifications to a terminal. Error actions are kept until
// the next error so the user can pick one with Invoke.
type Console struct {
	w io.Writer

	info    *color.Color
	success *color.Color
	failure *color.Color
	action  *color.Color
	muted   *color.Color

	mu      sync.Mutex
	actions []Action
}

// NewConsole writes to w. Colors follow color.NoColor.
func NewConsole(w io.Writer) *Console {
	return &Console{
		w:       w,
		info:    color.New(color.FgCyan),
		success: color.New(color.FgGreen, color.Bold),
		failure: color.New(color.FgRed, color.Bold),
		action:  color.New(color.FgYellow),
		muted:   color.New(color.Faint),
	}
}

func (c *Console) line(prefix *color.Color, symbol, message, description string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.w, prefix.Sprint(symbol+" "+message))
	if description != "" {
		fmt.Fprintln(c.w, "  "+c.muted.Sprint(description))
	}
}

func (c *Console) Info(message, description string) {
	c.line(c.info, "i", message, description)
}

func (c *Console) Success(message, description string) {
	c.line(c.success, "✓", message, description)
}

func (c *Console) Error(message, description string, actions ...Action) {
	c.line(c.failure, "✗", message, description)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.actions = append(c.actions[:0], actions...)
	if len(actions) == 0 {
		return
	}
	labels := make([]string, 0, len(actions))
	for _, a := range actions {
		labels = append(labels, "["+a.Label+"]")
	}
	fmt.Fprintln(c.w, "  "+c.action.Sprint(strings.Join(labels, " ")))
}

// Actions returns the labels offered by the last error.
func (c *Console) Actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.actions))
	for _, a := range c.actions {
		out = append(out, a.Label)
	}
	return out
}

// Invoke runs the pending action with the given label, case-insensitively.
// Any invoked action acknowledges the error and clears the list.
func (c *Console) Invoke(label string) bool {
	c.mu.Lock()
	var fn func()
	found := false
	for _, a := range c.actions {
		if strings.EqualFold(a.Label, label) {
			fn, found = a.OnInvoke, true
			break
		}
	}
	if found {
		c.actions = nil
	}
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
	return found
}

func (c *Console) Loading(message, description string) Handle {
	c.line(c.info, "…", message, description)
	return &consoleHandle{c: c, last: message}
}

type consoleHandle struct {
	c    *Console
	mu   sync.Mutex
	last string
	done bool
}

func (h *consoleHandle) Update(message, description string) {
	h.mu.Lock()
	if h.done || message == h.last {
		h.mu.Unlock()
		return
	}
	h.last = message
	h.mu.Unlock()

	h.c.line(h.c.info, "…", message, description)
}

func (h *consoleHandle) Dismiss() {
	h.mu.Lock()
	h.done = true
	h.mu.Unlock()
}
