package notify

import "sync"

// EventKind names a notification type.
type EventKind string

const (
	KindInfo    EventKind = "info"
	KindSuccess EventKind = "success"
	KindError   EventKind = "error"
	KindLoading EventKind = "loading"
	KindUpdate  EventKind = "update"
	KindDismiss EventKind = "dismiss"
)

// Event is one recorded notification.
type Event struct {
	Kind        EventKind
	Message     string
	Description string
	Actions     []Action
}

// Recorder keeps every event in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Info(message, description string) {
	r.add(Event{Kind: KindInfo, Message: message, Description: description})
}

func (r *Recorder) Success(message, description string) {
	r.add(Event{Kind: KindSuccess, Message: message, Description: description})
}

func (r *Recorder) Error(message, description string, actions ...Action) {
	r.add(Event{Kind: KindError, Message: message, Description: description, Actions: actions})
}

func (r *Recorder) Loading(message, description string) Handle {
	r.add(Event{Kind: KindLoading, Message: message, Description: description})
	return &recorderHandle{r: r}
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the most recent event of kind.
func (r *Recorder) Last(kind EventKind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return Event{}, false
}

type recorderHandle struct {
	r *Recorder
}

func (h *recorderHandle) Update(message, description string) {
	h.r.add(Event{Kind: KindUpdate, Message: message, Description: description})
}

func (h *recorderHandle) Dismiss() {
	h.r.add(Event{Kind: KindDismiss})
}
