// Package eventbus forwards job events to a message broker. An in-process bus can also be
// subscribed to, so the events are observable without a broker.
package eventbus

import (
	"context"

	"github.com/pcuzner/runner-wrapper/pkg/events"
)

// Message is a payload the bus can carry. Its type selects the handler on the receiving side.
type Message interface {
	GetType() events.EventType
}

// Publisher sends messages keyed by job ident.
type Publisher interface {
	Publish(ctx context.Context, key string, msg Message) error
	GenerateID() string
}

// Subscriber delivers received messages to the handler registered for their type.
type Subscriber interface {
	Handle(eventType events.EventType, handler Handler) error
	Subscribe(ctx context.Context) error
}

// Handler gets the decoded message, e.g. *events.JobEvent for events.JobEventType.
type Handler func(ctx context.Context, msg any) error

type EventBus interface {
	Publisher
	Subscriber
	Close() error
}
