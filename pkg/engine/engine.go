// Package engine runs a YAML playbook locally and reports progress as ansible-runner style
// job events.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pcuzner/runner-wrapper/pkg/models"
	"github.com/pcuzner/runner-wrapper/pkg/otelhelper"
	"github.com/pcuzner/runner-wrapper/pkg/runner"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	RCSuccessful   = 0
	RCInternal     = 1
	RCHostFailures = 2
	RCInterrupted  = 254

	bannerWidth = 80
)

var ErrNotPrepared = errors.New("engine not prepared")

type Engine struct {
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
	shell  string
	pid    int

	callback runner.EventCallback
	playbook Playbook

	mu     sync.Mutex
	status models.JobStatus
	rc     int

	playbookUUID string
	counter      int64
	line         int
}

type Option func(*Engine)

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithShell overrides the interpreter used for shell and command tasks.
func WithShell(shell string) Option {
	return func(e *Engine) {
		e.shell = shell
	}
}

func New(cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if cfg.Ident == "" {
		cfg.Ident = uuid.NewString()
	}

	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}

	e := &Engine{
		cfg:    cfg,
		logger: logger.With("module", "engine", "ident", cfg.Ident),
		tracer: otelhelper.NoopTracer(otelhelper.ServiceName),
		shell:  "sh",
		pid:    os.Getpid(),
		status: models.JobStatusUnstarted,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) RegisterEventCallback(cb runner.EventCallback) {
	e.callback = cb
}

// Prepare loads and validates the playbook. On success the job is in the starting state.
func (e *Engine) Prepare(ctx context.Context) error {
	if status := e.Status(); status != models.JobStatusUnstarted {
		return fmt.Errorf("engine already prepared, status %q", status)
	}

	if err := e.cfg.Validate(); err != nil {
		e.setResult(models.JobStatusFailed, RCInternal)

		return fmt.Errorf("invalid engine config: %w", err)
	}

	raw, err := os.ReadFile(e.cfg.PlaybookPath())
	if err != nil {
		e.setResult(models.JobStatusFailed, RCInternal)

		return fmt.Errorf("failed to read playbook %s: %w", e.cfg.PlaybookPath(), err)
	}

	playbook, err := ParsePlaybook(raw)
	if err != nil {
		e.setResult(models.JobStatusFailed, RCInternal)

		return err
	}

	e.playbook = playbook
	e.playbookUUID = uuid.NewString()
	e.setResult(models.JobStatusStarting, 0)

	e.logger.DebugContext(ctx, "Playbook loaded", "playbook", e.cfg.PlaybookPath(), "plays", len(playbook))

	return nil
}

type hostStats struct {
	ok, changed, failures, skipped, ignored int
}

// Run executes the prepared playbook. It returns the context error when the run is
// interrupted; host failures are reported through Status and RC only.
func (e *Engine) Run(ctx context.Context) error {
	if e.Status() != models.JobStatusStarting {
		return ErrNotPrepared
	}

	e.setResult(models.JobStatusRunning, 0)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "playbook",
		attribute.String(otelhelper.JobIdentKey, e.cfg.Ident),
		attribute.String(otelhelper.PlaybookKey, e.cfg.Playbook),
	)
	defer span.End()

	e.emit(ctx, models.EventPlaybookOnStart, "", map[string]any{
		models.DataPlaybook:     e.cfg.Playbook,
		models.DataPlaybookUUID: e.playbookUUID,
	})

	stats := map[string]*hostStats{}
	facts := map[string]map[string]any{}
	failed := map[string]bool{}

	for _, play := range e.playbook {
		if ctx.Err() != nil {
			break
		}

		e.runPlay(ctx, play, stats, facts, failed)
	}

	if err := ctx.Err(); err != nil {
		status := models.JobStatusCanceled
		if errors.Is(err, context.DeadlineExceeded) {
			status = models.JobStatusTimeout
		}

		e.setResult(status, RCInterrupted)
		otelhelper.SetError(span, err, attribute.String(otelhelper.JobStatusKey, string(status)))
		e.logger.WarnContext(ctx, "Playbook interrupted", "status", status)

		return err
	}

	e.emit(ctx, models.EventPlaybookOnStats, recap(stats), statsData(stats))

	if len(failed) > 0 {
		e.setResult(models.JobStatusFailed, RCHostFailures)
	} else {
		e.setResult(models.JobStatusSuccessful, RCSuccessful)
		otelhelper.SetOK(span)
	}

	span.SetAttributes(
		attribute.String(otelhelper.JobStatusKey, string(e.Status())),
		attribute.Int(otelhelper.ReturnCodeKey, e.RC()),
	)

	return nil
}

func (e *Engine) runPlay(
	ctx context.Context,
	play Play,
	stats map[string]*hostStats,
	facts map[string]map[string]any,
	failed map[string]bool,
) {
	name := play.Name
	if name == "" {
		name = strings.Join(play.Hosts, ",")
	}

	playUUID := uuid.NewString()

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "play",
		attribute.String(otelhelper.PlayNameKey, name),
		attribute.String(otelhelper.PlayUUIDKey, playUUID),
	)
	defer span.End()

	playData := map[string]any{
		models.DataPlaybook:     e.cfg.Playbook,
		models.DataPlaybookUUID: e.playbookUUID,
		models.DataPlay:         name,
		models.DataPlayUUID:     playUUID,
		"play_pattern":          strings.Join(play.Hosts, ","),
	}

	e.emit(ctx, models.EventPlaybookOnPlayStart, banner("PLAY", name), playData)

	for _, host := range play.Hosts {
		if stats[host] == nil {
			stats[host] = &hostStats{}
		}

		if facts[host] == nil {
			facts[host] = map[string]any{}
		}

		for k, v := range play.Vars {
			if _, set := facts[host][k]; !set {
				facts[host][k] = v
			}
		}
	}

	for _, task := range play.Tasks {
		hosts := activeHosts(play.Hosts, failed)
		if len(hosts) == 0 || ctx.Err() != nil {
			break
		}

		e.runTaskOnHosts(ctx, task, hosts, playData, stats, facts, failed)
	}
}

func (e *Engine) runTaskOnHosts(
	ctx context.Context,
	task Task,
	hosts []string,
	playData map[string]any,
	stats map[string]*hostStats,
	facts map[string]map[string]any,
	failed map[string]bool,
) {
	taskUUID := uuid.NewString()
	name := task.DisplayName()

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "task",
		attribute.String(otelhelper.TaskNameKey, name),
		attribute.String(otelhelper.TaskUUIDKey, taskUUID),
		attribute.String(otelhelper.TaskModuleKey, task.Module()),
	)
	defer span.End()

	taskData := func() map[string]any {
		data := make(map[string]any, len(playData)+4)
		for k, v := range playData {
			data[k] = v
		}

		data[models.DataTask] = name
		data[models.DataTaskUUID] = taskUUID
		data["task_action"] = task.Module()

		return data
	}

	e.emit(ctx, models.EventPlaybookOnTaskStart, banner("TASK", name), taskData())

	for _, host := range hosts {
		if ctx.Err() != nil {
			return
		}

		result := e.runTask(ctx, task, host, facts[host])
		if ctx.Err() != nil {
			return
		}

		data := taskData()
		data[models.DataHost] = host
		data["remote_addr"] = host
		data[models.DataResult] = result.res
		data["start"] = result.start.UTC().Format(time.RFC3339Nano)
		data["end"] = result.end.UTC().Format(time.RFC3339Nano)
		data["duration"] = result.end.Sub(result.start).Seconds()
		data["ignore_errors"] = task.IgnoreErrors

		s := stats[host]

		switch result.outcome {
		case outcomeSkipped:
			s.skipped++
			e.emit(ctx, models.EventRunnerOnSkipped, fmt.Sprintf("skipping: [%s]", host), data)
		case outcomeFailed:
			stdout := fmt.Sprintf("fatal: [%s]: FAILED! => %s", host, compactJSON(result.res))
			if task.IgnoreErrors {
				s.ignored++
				stdout += "\r\n...ignoring"
			} else {
				s.failures++
				failed[host] = true
			}

			otelhelper.SetError(span, errors.New(fmt.Sprint(result.res["msg"])), attribute.String(otelhelper.HostKey, host))
			e.emit(ctx, models.EventRunnerOnFailed, stdout, data)
		default:
			s.ok++
			prefix := "ok"
			if result.changed {
				s.changed++
				prefix = "changed"
			}

			stdout := fmt.Sprintf("%s: [%s]", prefix, host)
			if task.Module() == ModuleDebug {
				stdout += " => " + compactJSON(result.res)
			}

			e.emit(ctx, models.EventRunnerOnOK, stdout, data)
		}
	}
}

// emit delivers one event to the callback as two observations: the event body first, then
// the display fields carrying the counter.
func (e *Engine) emit(ctx context.Context, kind, stdout string, data map[string]any) {
	if e.callback == nil {
		return
	}

	id := uuid.NewString()
	e.counter++

	trace.SpanFromContext(ctx).AddEvent(kind, trace.WithAttributes(
		attribute.String(otelhelper.EventUUIDKey, id),
		attribute.String(otelhelper.EventKindKey, kind),
	))

	start := e.line
	e.line += strings.Count(stdout, "\n")

	e.callback(ctx, models.Event{
		models.FieldUUID:      id,
		models.FieldEvent:     kind,
		models.FieldEventData: data,
	})

	e.callback(ctx, models.Event{
		models.FieldUUID:        id,
		models.FieldCounter:     e.counter,
		models.FieldStdout:      stdout,
		models.FieldStartLine:   start,
		models.FieldEndLine:     e.line,
		models.FieldCreated:     time.Now().UTC().Format(time.RFC3339Nano),
		models.FieldRunnerIdent: e.cfg.Ident,
		models.FieldPID:         e.pid,
	})
}

func (e *Engine) Status() models.JobStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.status
}

func (e *Engine) RC() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.rc
}

func (e *Engine) setResult(status models.JobStatus, rc int) {
	e.mu.Lock()
	e.status = status
	e.rc = rc
	e.mu.Unlock()
}

func activeHosts(hosts []string, failed map[string]bool) []string {
	active := make([]string, 0, len(hosts))

	for _, host := range hosts {
		if !failed[host] {
			active = append(active, host)
		}
	}

	return active
}

func banner(kind, name string) string {
	head := fmt.Sprintf("%s [%s] ", kind, name)

	return "\r\n" + head + strings.Repeat("*", max(3, bannerWidth-len(head)))
}

func recap(stats map[string]*hostStats) string {
	var b strings.Builder

	b.WriteString("\r\nPLAY RECAP ")
	b.WriteString(strings.Repeat("*", bannerWidth-len("PLAY RECAP ")))

	for _, host := range sortedHosts(stats) {
		s := stats[host]
		fmt.Fprintf(&b, "\r\n%-26s : ok=%-4d changed=%-4d unreachable=0    failed=%-4d skipped=%-4d rescued=0    ignored=%d",
			host, s.ok, s.changed, s.failures, s.skipped, s.ignored)
	}

	return b.String()
}

func statsData(stats map[string]*hostStats) map[string]any {
	ok := map[string]any{}
	changed := map[string]any{}
	failures := map[string]any{}
	skipped := map[string]any{}
	ignored := map[string]any{}

	for host, s := range stats {
		ok[host] = s.ok
		changed[host] = s.changed
		failures[host] = s.failures
		skipped[host] = s.skipped
		ignored[host] = s.ignored
	}

	return map[string]any{
		"ok":       ok,
		"changed":  changed,
		"failures": failures,
		"skipped":  skipped,
		"ignored":  ignored,
		"dark":     map[string]any{},
	}
}

func sortedHosts(stats map[string]*hostStats) []string {
	hosts := make([]string, 0, len(stats))
	for host := range stats {
		hosts = append(hosts, host)
	}

	sort.Strings(hosts)

	return hosts
}
