package web

import (
	"errors"
	"log/slog"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/pcuzner/runner-wrapper/pkg/lifecycle"
	"github.com/pcuzner/runner-wrapper/pkg/tracker"
)

const (
	paramTask     = "task"
	paramTaskUUID = "task_uuid"
	paramHost     = "host"
	paramVar      = "var"
)

type APIHandlers struct {
	job       JobView
	shutdown  *lifecycle.ShutdownSignal
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(
	job JobView,
	shutdown *lifecycle.ShutdownSignal,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		job:       job,
		shutdown:  shutdown,
		validator: validator,
		logger:    logger,
	}
}

func (h *APIHandlers) GetActiveTask(c fiber.Ctx) error {
	current, err := h.job.CurrentTask()
	if err != nil {
		if !errors.Is(err, tracker.ErrNotReady) {
			return internalError(c, err)
		}

		current = NotStarted
	}

	return c.JSON(ActiveTaskResponse{ActiveTask: current}, fiber.MIMEApplicationJSONCharsetUTF8)
}

func (h *APIHandlers) GetTasks(c fiber.Ctx) error {
	tasks := []TaskSummary{}

	for _, event := range h.job.Events() {
		if !event.IsTaskCompletion() {
			continue
		}

		data := event.Data()
		tasks = append(tasks, TaskSummary{
			Task:     data.Task(),
			TaskUUID: data.TaskUUID(),
			Host:     data.Host(),
		})
	}

	return c.JSON(TaskListResponse{TaskList: tasks}, fiber.MIMEApplicationJSONCharsetUTF8)
}

func (h *APIHandlers) GetStatus(c fiber.Ctx) error {
	return c.JSON(StatusResponse{Status: h.job.Status()}, fiber.MIMEApplicationJSONCharsetUTF8)
}

func (h *APIHandlers) GetTaskInfo(c fiber.Ctx) error {
	query, err := h.parseTaskInfoQuery(c)
	if err != nil {
		h.logger.WarnContext(c.Context(), "/getTaskInfo missing required variables", "error", err, "requester", c.IP())

		return badRequest(c, "taskInfo needs task, task_uuid, host and a variable name")
	}

	for _, event := range h.job.Events() {
		data := event.Data()
		if !data.Has(paramTaskUUID) {
			continue
		}

		if data.Host() != query.Host || data.Task() != query.Task || data.TaskUUID() != query.TaskUUID {
			continue
		}

		value, ok := data.Result()[query.Var]
		if !ok {
			h.logger.WarnContext(c.Context(), "Task found but variable not present in results",
				"task", query.Task, "var", query.Var, "requester", c.IP())

			return notFound(c, "variable_not_found", "task exists, variable not present in results (res)")
		}

		return c.JSON(TaskInfoResponse{Data: value}, fiber.MIMEApplicationJSONCharsetUTF8)
	}

	h.logger.ErrorContext(c.Context(), "No event matches /getTaskInfo query",
		"task", query.Task, "task_uuid", query.TaskUUID, "host", query.Host)

	return notFound(c, "task_not_found", "task not found")
}

func (h *APIHandlers) Shutdown(c fiber.Ctx) error {
	if status := h.job.Status(); status.IsActive() {
		h.logger.WarnContext(c.Context(), "Shutdown refused, playbook still active", "status", status, "requester", c.IP())

		return badRequest(c, "playbook is still active, shutdown request ignored")
	}

	if h.shutdown.Request() {
		h.logger.InfoContext(c.Context(), "Shutdown requested", "requester", c.IP())
	}

	c.Status(fiber.StatusOK)

	return nil
}

func (h *APIHandlers) Undefined(c fiber.Ctx) error {
	h.logger.WarnContext(c.Context(), "Invalid request", "method", c.Method(), "path", c.Path(), "requester", c.IP())

	return notFound(c, "undefined_endpoint", "Undefined endpoint")
}

// parseTaskInfoQuery accepts exactly the four task info parameters. Keys with blank values
// are dropped before counting.
func (h *APIHandlers) parseTaskInfoQuery(c fiber.Ctx) (*TaskInfoQuery, error) {
	values, err := url.ParseQuery(string(c.Request().URI().QueryString()))
	if err != nil {
		return nil, err
	}

	for key, vs := range values {
		if len(vs) == 0 || vs[0] == "" {
			delete(values, key)
		}
	}

	if len(values) != 4 {
		return nil, errors.New("expected exactly four query parameters")
	}

	query := &TaskInfoQuery{}
	for key := range values {
		switch key {
		case paramTask:
			query.Task = values.Get(key)
		case paramTaskUUID:
			query.TaskUUID = values.Get(key)
		case paramHost:
			query.Host = values.Get(key)
		case paramVar:
			query.Var = values.Get(key)
		default:
			return nil, errors.New("unexpected query parameter " + key)
		}
	}

	if err := h.validator.Struct(query); err != nil {
		return nil, err
	}

	return query, nil
}
