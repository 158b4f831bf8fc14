// Package events defines the messages published while a job runs.
package events

import (
	"time"

	"github.com/pcuzner/runner-wrapper/pkg/models"
)

type EventType string

// DefaultTopic carries every job message unless another topic is configured.
const DefaultTopic = "runner.job_events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	JobEventType EventType = "job.event"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Ident     string    `json:"runner_ident"`
}

// JobEvent wraps one recorded execution event.
type JobEvent struct {
	BaseEvent

	Kind  string       `json:"kind"`
	Event models.Event `json:"event"`
}

func (j JobEvent) GetType() EventType {
	return JobEventType
}

func NewJobEvent(id, ident string, event models.Event) *JobEvent {
	return &JobEvent{
		BaseEvent: BaseEvent{
			ID:        id,
			Type:      JobEventType,
			Timestamp: time.Now().UTC(),
			Ident:     ident,
		},
		Kind:  event.Kind(),
		Event: event,
	}
}
