package runner

import (
	"sync/atomic"

	"github.com/pcuzner/runner-wrapper/pkg/models"
)

// EventLog is an append-only list with a single writer and any number of readers. Each append
// publishes a new snapshot through an atomic pointer, so readers never see a partially appended
// element and never need a lock. Appended events must not be mutated afterwards.
type EventLog struct {
	buf      []models.Event // owned by the writer
	snapshot atomic.Pointer[[]models.Event]
}

func NewEventLog() *EventLog {
	l := &EventLog{}
	empty := []models.Event{}
	l.snapshot.Store(&empty)

	return l
}

// Append adds an event. It must only be called from the job thread.
func (l *EventLog) Append(event models.Event) {
	l.buf = append(l.buf, event)
	view := l.buf[:len(l.buf):len(l.buf)]
	l.snapshot.Store(&view)
}

// Snapshot returns the events appended so far, in arrival order. The returned slice is shared
// and must be treated as read-only.
func (l *EventLog) Snapshot() []models.Event {
	return *l.snapshot.Load()
}

func (l *EventLog) Len() int {
	return len(l.Snapshot())
}
