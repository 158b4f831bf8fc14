// Package web serves the job query API.
package web

import "github.com/pcuzner/runner-wrapper/pkg/models"

// NotStarted is reported as the active task before the job has emitted any lifecycle marker.
const NotStarted = "<NOT_STARTED>"

// JobView is the read side of a running job.
type JobView interface {
	Status() models.JobStatus
	Events() []models.Event
	CurrentTask() (string, error)
}

type ActiveTaskResponse struct {
	ActiveTask string `json:"active_task"`
}

type TaskSummary struct {
	Task     string `json:"task"`
	TaskUUID string `json:"task_uuid"`
	Host     string `json:"host"`
}

type TaskListResponse struct {
	TaskList []TaskSummary `json:"taskList"`
}

type StatusResponse struct {
	Status models.JobStatus `json:"status"`
}

type TaskInfoResponse struct {
	Data any `json:"data"`
}

// TaskInfoQuery is the parameter set of /getTaskInfo. No other parameter is accepted.
type TaskInfoQuery struct {
	Task     string `validate:"required"`
	TaskUUID string `validate:"required"`
	Host     string `validate:"required"`
	Var      string `validate:"required"`
}
