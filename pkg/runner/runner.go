// Package runner adapts an execution engine: it ingests the engine's events into the artifact
// store, the active-task tracker and the in-memory event list, and launches the job in the
// background.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pcuzner/runner-wrapper/pkg/artifacts"
	"github.com/pcuzner/runner-wrapper/pkg/models"
	"github.com/pcuzner/runner-wrapper/pkg/tracker"
)

// ErrLaunchFailed is returned by Start when the engine did not reach the starting state.
var ErrLaunchFailed = errors.New("job failed to launch")

type Runner struct {
	engine    Engine
	store     *artifacts.Store
	tracker   *tracker.Tracker
	events    *EventLog
	publisher EventPublisher
	logger    *slog.Logger
}

type Option func(*Runner)

// WithPublisher forwards every recorded event to p.
func WithPublisher(p EventPublisher) Option {
	return func(r *Runner) {
		r.publisher = p
	}
}

func New(engine Engine, store *artifacts.Store, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		engine:  engine,
		store:   store,
		tracker: tracker.New(),
		events:  NewEventLog(),
		logger:  logger.With("module", "runner"),
	}

	for _, opt := range opts {
		opt(r)
	}

	engine.RegisterEventCallback(r.OnEvent)

	return r
}

// OnEvent is the engine callback. It never fails: every fault is logged and ingestion continues.
func (r *Runner) OnEvent(ctx context.Context, event models.Event) {
	marker, err := r.tracker.Observe(event.Stdout())
	switch {
	case err != nil:
		r.logger.WarnContext(ctx, "Ignoring malformed lifecycle marker", "error", err, "stdout", event.Stdout())
	case marker == tracker.MarkerTask:
		current, _ := r.tracker.Current()
		r.logger.DebugContext(ctx, "Running task", "task", current)
	}

	if event.HasUUID() {
		event = r.store.Record(ctx, event)
	}

	if !event.IsFull() {
		return
	}

	r.events.Append(event)

	if r.publisher != nil {
		if err := r.publisher.PublishEvent(ctx, event); err != nil {
			r.logger.WarnContext(ctx, "Failed to publish job event", "error", err, "uuid", event.UUID())
		}
	}
}

// Start prepares the engine and runs it on its own goroutine. It returns as soon as the
// job has been dispatched.
func (r *Runner) Start(ctx context.Context) (*Handle, error) {
	if err := r.engine.Prepare(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}

	if status := r.engine.Status(); status != models.JobStatusStarting {
		return nil, fmt.Errorf("%w: status %q after dispatch", ErrLaunchFailed, status)
	}

	h := newHandle()

	go func() {
		defer close(h.done)

		h.err = r.engine.Run(ctx)

		if err := r.store.WriteJobResult(r.engine.Status(), r.engine.RC()); err != nil {
			r.logger.WarnContext(ctx, "Failed to write job result artifacts", "error", err)
		}
	}()

	return h, nil
}

func (r *Runner) Status() models.JobStatus {
	return r.engine.Status()
}

func (r *Runner) RC() int {
	return r.engine.RC()
}

// Events returns the events observed so far. The slice must not be modified.
func (r *Runner) Events() []models.Event {
	return r.events.Snapshot()
}

// CurrentTask returns the most recent lifecycle marker, or tracker.ErrNotReady.
func (r *Runner) CurrentTask() (string, error) {
	return r.tracker.Current()
}

// ActiveTasks returns every lifecycle marker seen so far.
func (r *Runner) ActiveTasks() []string {
	return r.tracker.Entries()
}

// Handle lets the caller wait for or poll a running job.
type Handle struct {
	done chan struct{}
	err  error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Done is closed when the job goroutine exits.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Alive reports whether the job goroutine is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the job finishes and returns the engine's run error.
func (h *Handle) Wait() error {
	<-h.done

	return h.err
}
