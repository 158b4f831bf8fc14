package events_test

import (
	"encoding/json"
	"testing"

	"github.com/pcuzner/runner-wrapper/pkg/events"
	"github.com/pcuzner/runner-wrapper/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobEvent(t *testing.T) {
	event := models.Event{
		models.FieldUUID:    "e1",
		models.FieldCounter: 3,
		models.FieldEvent:   models.EventRunnerOnOK,
	}

	je := events.NewJobEvent("id-1", "job-1", event)

	assert.Equal(t, events.JobEventType, je.GetType())
	assert.Equal(t, events.JobEventType, je.Type)
	assert.Equal(t, "job-1", je.Ident)
	assert.Equal(t, models.EventRunnerOnOK, je.Kind)
	assert.False(t, je.Timestamp.IsZero())

	payload, err := json.Marshal(je)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "job.event", decoded["type"])
	assert.Equal(t, "job-1", decoded["runner_ident"])
	assert.Equal(t, "e1", decoded["event"].(map[string]any)["uuid"])
}
