// Package models defines the job event and job state models shared by the runner wrapper.
package models

import (
	"encoding/json"
	"maps"
	"strings"
)

// Well-known keys of an execution event record.
const (
	FieldUUID        = "uuid"
	FieldCounter     = "counter"
	FieldEvent       = "event"
	FieldStdout      = "stdout"
	FieldEventData   = "event_data"
	FieldStartLine   = "start_line"
	FieldEndLine     = "end_line"
	FieldCreated     = "created"
	FieldRunnerIdent = "runner_ident"
	FieldPID         = "pid"
)

// Keys of the event_data mapping.
const (
	DataTask         = "task"
	DataTaskUUID     = "task_uuid"
	DataHost         = "host"
	DataResult       = "res"
	DataPlay         = "play"
	DataPlayUUID     = "play_uuid"
	DataPlaybook     = "playbook"
	DataPlaybookUUID = "playbook_uuid"
)

// Event kinds emitted by the execution engine.
const (
	EventPlaybookOnStart     = "playbook_on_start"
	EventPlaybookOnPlayStart = "playbook_on_play_start"
	EventPlaybookOnTaskStart = "playbook_on_task_start"
	EventPlaybookOnStats     = "playbook_on_stats"
	EventRunnerOnOK          = "runner_on_ok"
	EventRunnerOnFailed      = "runner_on_failed"
	EventRunnerOnSkipped     = "runner_on_skipped"

	// RunnerOnPrefix marks the task completion family of event kinds.
	RunnerOnPrefix = "runner_on"
)

// Event is one observation of an execution event. It is kept as a generic JSON object so
// that partial and full observations can be merged without losing unknown fields.
type Event map[string]any

func (e Event) UUID() string {
	return stringField(e, FieldUUID)
}

func (e Event) HasUUID() bool {
	return e.UUID() != ""
}

func (e Event) Kind() string {
	return stringField(e, FieldEvent)
}

func (e Event) Stdout() string {
	return stringField(e, FieldStdout)
}

// Counter returns the ordering counter and whether the event carries one.
func (e Event) Counter() (int64, bool) {
	raw, ok := e[FieldCounter]
	if !ok {
		return 0, false
	}

	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()

		return n, err == nil
	default:
		return 0, false
	}
}

// IsFull reports whether the observation carries the terminal fields of a complete record.
func (e Event) IsFull() bool {
	_, ok := e.Counter()

	return ok
}

// IsTaskCompletion reports whether the event belongs to the runner_on_* family.
func (e Event) IsTaskCompletion() bool {
	return strings.HasPrefix(e.Kind(), RunnerOnPrefix)
}

// Data returns the event_data mapping, or nil when absent or of an unexpected shape.
func (e Event) Data() EventData {
	switch v := e[FieldEventData].(type) {
	case EventData:
		return v
	case map[string]any:
		return EventData(v)
	default:
		return nil
	}
}

// Merge returns a new event holding the union of base and e. Fields of e win on conflict.
func (e Event) Merge(base Event) Event {
	merged := make(Event, len(base)+len(e))
	maps.Copy(merged, base)
	maps.Copy(merged, e)

	return merged
}

// Clone returns a shallow copy of the event.
func (e Event) Clone() Event {
	return maps.Clone(e)
}

// EventData is the structured payload of an event.
type EventData map[string]any

func (d EventData) Task() string {
	return stringField(d, DataTask)
}

func (d EventData) TaskUUID() string {
	return stringField(d, DataTaskUUID)
}

func (d EventData) Host() string {
	return stringField(d, DataHost)
}

func (d EventData) Has(key string) bool {
	_, ok := d[key]

	return ok
}

// Result returns the task result mapping (res).
func (d EventData) Result() map[string]any {
	res, _ := d[DataResult].(map[string]any)

	return res
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)

	return s
}
