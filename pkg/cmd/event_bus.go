// Package cmd holds wiring shared by the command line entry points.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/pcuzner/runner-wrapper/pkg/channels/gochannel"
	"github.com/pcuzner/runner-wrapper/pkg/channels/kafka"
	"github.com/pcuzner/runner-wrapper/pkg/eventbus"
	"github.com/pcuzner/runner-wrapper/pkg/events"
)

const (
	EventBusNone      = "none"
	EventBusGoChannel = "gochannel"
	EventBusKafka     = "kafka"
)

// NewEventBus builds the event bus for provider. It returns nil, nil for "none".
func NewEventBus(provider string, brokers []string, topic string, logger *slog.Logger) (*eventbus.WatermillEventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", EventBusNone:
		return nil, nil
	case EventBusGoChannel:
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create go channel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(topic, pub, sub), nil
	case EventBusKafka:
		pub, err := kafka.CreatePublisher(wmLogger, brokers, "runner-wrapper")
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
		}

		return eventbus.NewWatermillEventBus(topic, pub, nil), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}

// LogJobEvents subscribes to bus and logs every job event it carries. Used with the
// in-process bus, where there is no external consumer.
func LogJobEvents(ctx context.Context, bus eventbus.Subscriber, logger *slog.Logger) error {
	err := bus.Handle(events.JobEventType, func(ctx context.Context, event any) error {
		je, ok := event.(*events.JobEvent)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		logger.DebugContext(ctx, "Job event", "kind", je.Kind, "uuid", je.Event.UUID(), "ident", je.Ident)

		return nil
	})
	if err != nil {
		return err
	}

	return bus.Subscribe(ctx)
}
