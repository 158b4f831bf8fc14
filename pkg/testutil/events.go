package testutil

import "github.com/pcuzner/runner-wrapper/pkg/models"

// Banner builds a full lifecycle marker event.
func Banner(uuid string, counter int, kind, stdout string) models.Event {
	return models.Event{
		models.FieldUUID:    uuid,
		models.FieldCounter: counter,
		models.FieldEvent:   kind,
		models.FieldStdout:  stdout,
	}
}

// TaskResult builds a full task completion event.
func TaskResult(uuid string, counter int, kind, task, taskUUID, host string, res map[string]any) models.Event {
	if res == nil {
		res = map[string]any{}
	}

	return models.Event{
		models.FieldUUID:    uuid,
		models.FieldCounter: counter,
		models.FieldEvent:   kind,
		models.FieldStdout:  "ok: [" + host + "]",
		models.FieldEventData: map[string]any{
			models.DataTask:     task,
			models.DataTaskUUID: taskUUID,
			models.DataHost:     host,
			models.DataResult:   res,
		},
	}
}

// SplitPhases returns the partial observation (uuid and event_data) and the full observation
// (everything else) of event, in delivery order.
func SplitPhases(event models.Event) []models.Event {
	partial := models.Event{models.FieldUUID: event.UUID()}
	full := models.Event{}

	for k, v := range event {
		switch k {
		case models.FieldUUID:
			full[k] = v
		case models.FieldEventData, models.FieldEvent:
			partial[k] = v
		default:
			full[k] = v
		}
	}

	return []models.Event{partial, full}
}
