package cmd_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/pcuzner/runner-wrapper/pkg/cmd"
	"github.com/pcuzner/runner-wrapper/pkg/channels/kafka"
	"github.com/pcuzner/runner-wrapper/pkg/eventbus"
	"github.com/pcuzner/runner-wrapper/pkg/events"
	"github.com/pcuzner/runner-wrapper/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewEventBus(t *testing.T) {
	bus, err := cmd.NewEventBus(cmd.EventBusNone, nil, "", discard())
	require.NoError(t, err)
	assert.Nil(t, bus)

	_, err = cmd.NewEventBus("rabbit", nil, "", discard())
	require.Error(t, err)

	_, err = cmd.NewEventBus(cmd.EventBusKafka, nil, "", discard())
	require.ErrorIs(t, err, kafka.ErrNoBrokers)

	bus, err = cmd.NewEventBus(cmd.EventBusGoChannel, nil, "jobs", discard())
	require.NoError(t, err)
	require.NotNil(t, bus)
	assert.Equal(t, "jobs", bus.Topic())
	require.NoError(t, bus.Close())
}

func TestLogJobEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := cmd.NewEventBus(cmd.EventBusGoChannel, nil, "", discard())
	require.NoError(t, err)

	defer bus.Close()

	require.NoError(t, cmd.LogJobEvents(ctx, bus, discard()))

	publisher := eventbus.NewJobPublisher(bus, "job-1")
	require.NoError(t, publisher.PublishEvent(ctx, models.Event{
		models.FieldUUID:  "e1",
		models.FieldEvent: models.EventPlaybookOnStart,
	}))

	assert.Equal(t, events.DefaultTopic, bus.Topic())
}
