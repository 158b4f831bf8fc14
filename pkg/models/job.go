package models

// JobStatus is the execution engine's view of the job lifecycle.
type JobStatus string

const (
	JobStatusUnstarted  JobStatus = "unstarted"
	JobStatusStarting   JobStatus = "starting"
	JobStatusRunning    JobStatus = "running"
	JobStatusSuccessful JobStatus = "successful"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
	JobStatusTimeout    JobStatus = "timeout"
)

// IsActive reports whether the job may still emit events.
func (s JobStatus) IsActive() bool {
	return s == JobStatusStarting || s == JobStatusRunning
}

// IsTerminal reports whether the job has reached a final state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSuccessful, JobStatusFailed, JobStatusCanceled, JobStatusTimeout:
		return true
	default:
		return false
	}
}
