// Package notify is the user-facing notification channel of the pipeline.
// Rendering is up to the implementation; the pipeline only pushes events.
package notify

// Action is a button offered with an error notification.
type Action struct {
	Label    string
	OnInvoke func()
}

// Handle controls a loading notification after it was shown.
type Handle interface {
	Update(message, description string)
	Dismiss()
}

// Notifier receives pipeline status events.
type Notifier interface {
	Info(message, description string)
	Success(message, description string)
	Error(message, description string, actions ...Action)
	Loading(message, description string) Handle
}

// Labels of actions the pipeline attaches to error notifications.
const (
	LabelRetry   = "Retry"
	LabelDismiss = "Dismiss"
)

// Discard drops every event.
type Discard struct{}

func (Discard) Info(string, string)             {}
func (Discard) Success(string, string)          {}
func (Discard) Error(string, string, ...Action) {}
func (Discard) Loading(string, string) Handle   { return discardHandle{} }

type discardHandle struct{}

func (discardHandle) Update(string, string) {}
func (discardHandle) Dismiss()              {}
