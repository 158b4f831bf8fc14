package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_Accessors(t *testing.T) {
	event := Event{
		FieldUUID:    "a",
		FieldCounter: 3,
		FieldEvent:   EventRunnerOnOK,
		FieldStdout:  "ok: [h1]",
		FieldEventData: map[string]any{
			DataTask:     "Step 1",
			DataTaskUUID: "u1",
			DataHost:     "h1",
			DataResult:   map[string]any{"rc": 0},
		},
	}

	assert.Equal(t, "a", event.UUID())
	assert.True(t, event.HasUUID())
	assert.Equal(t, EventRunnerOnOK, event.Kind())
	assert.Equal(t, "ok: [h1]", event.Stdout())
	assert.True(t, event.IsFull())
	assert.True(t, event.IsTaskCompletion())

	counter, ok := event.Counter()
	require.True(t, ok)
	assert.Equal(t, int64(3), counter)

	data := event.Data()
	require.NotNil(t, data)
	assert.Equal(t, "Step 1", data.Task())
	assert.Equal(t, "u1", data.TaskUUID())
	assert.Equal(t, "h1", data.Host())
	assert.True(t, data.Has(DataTaskUUID))
	assert.Equal(t, 0, data.Result()["rc"])
}

func TestEvent_CounterFromJSON(t *testing.T) {
	var event Event
	require.NoError(t, json.Unmarshal([]byte(`{"uuid":"x","counter":12}`), &event))

	counter, ok := event.Counter()
	require.True(t, ok)
	assert.Equal(t, int64(12), counter)
}

func TestEvent_PartialHasNoCounter(t *testing.T) {
	event := Event{FieldUUID: "a"}

	assert.False(t, event.IsFull())
	assert.False(t, event.IsTaskCompletion())
	assert.Nil(t, event.Data())
}

func TestEvent_MergeIncomingWins(t *testing.T) {
	partial := Event{FieldUUID: "a", "only_partial": 1, "shared": "partial"}
	full := Event{FieldUUID: "a", FieldCounter: 1, "shared": "full"}

	merged := full.Merge(partial)

	assert.Equal(t, Event{FieldUUID: "a", FieldCounter: 1, "only_partial": 1, "shared": "full"}, merged)
	assert.NotContains(t, full, "only_partial", "merge must not mutate the receiver")
}

func TestJobStatus(t *testing.T) {
	assert.True(t, JobStatusStarting.IsActive())
	assert.True(t, JobStatusRunning.IsActive())
	assert.False(t, JobStatusSuccessful.IsActive())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.True(t, JobStatusTimeout.IsTerminal())
	assert.False(t, JobStatusUnstarted.IsTerminal())
}
