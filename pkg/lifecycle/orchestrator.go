// Package lifecycle drives the process: it launches the job, serves queries while the job
// runs, then waits a bounded time for the client to request shutdown.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pcuzner/runner-wrapper/pkg/runner"
)

// State is a step of the orchestrator state machine.
type State string

const (
	StateLaunching        State = "launching"
	StateRunning          State = "running"
	StateAwaitingShutdown State = "awaiting_shutdown"
	StateTerminated       State = "terminated"
)

// Server is the query surface started once the job is launched.
type Server interface {
	Start(addr string) error
}

// ExitError carries the process exit code for a fatal lifecycle failure.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit %d: %v", e.Code, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

type Orchestrator struct {
	cfg      Config
	runner   *runner.Runner
	server   Server
	shutdown *ShutdownSignal
	logger   *slog.Logger

	mu    sync.Mutex
	state State
}

func NewOrchestrator(cfg Config, r *runner.Runner, server Server, shutdown *ShutdownSignal, logger *slog.Logger) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	return &Orchestrator{
		cfg:      cfg,
		runner:   r,
		server:   server,
		shutdown: shutdown,
		logger:   logger.With("module", "lifecycle"),
		state:    StateLaunching,
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.state
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}

// Run executes the whole lifecycle. It only returns an error when the job fails to launch;
// that error is an *ExitError with code ExitLaunchFailed.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.setState(StateLaunching)

	handle, err := o.runner.Start(ctx)
	if err != nil {
		o.logger.ErrorContext(ctx, "Start of job runner failed", "error", err)
		o.setState(StateTerminated)

		return &ExitError{Code: ExitLaunchFailed, Err: err}
	}

	o.logger.DebugContext(ctx, "Job runner started")

	go func() {
		if err := o.server.Start(o.cfg.Addr()); err != nil {
			o.logger.ErrorContext(ctx, "Query server stopped", "error", err)
		}
	}()

	o.logger.InfoContext(ctx, "Query server started", "addr", o.cfg.Addr())
	o.setState(StateRunning)
	o.logger.InfoContext(ctx, "Waiting for playbook to complete")

	o.waitForJob(ctx, handle)

	if err := handle.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		o.logger.WarnContext(ctx, "Job ended with error", "error", err)
	}

	o.logger.InfoContext(ctx, "Playbook finished", "status", o.runner.Status(), "rc", o.runner.RC())
	o.logger.DebugContext(ctx, "Task names processed", "tasks", strings.Join(o.runner.ActiveTasks(), ","))

	if ctx.Err() != nil {
		o.logger.InfoContext(ctx, "Interrupted, skipping wait for shutdown request")
		o.setState(StateTerminated)

		return nil
	}

	o.setState(StateAwaitingShutdown)
	o.logger.InfoContext(ctx, "Waiting for client to signal post-run shutdown", "timeout", o.cfg.ShutdownTimeout)

	if o.waitForShutdown(ctx) {
		o.logger.InfoContext(ctx, "Runner API shutting down")
	} else {
		o.logger.InfoContext(ctx, "Timed out waiting for /shutdown call from client")
	}

	o.setState(StateTerminated)

	return nil
}

// waitForJob polls the job handle. A cancelled context still waits for the job to wind down.
func (o *Orchestrator) waitForJob(ctx context.Context, handle *runner.Handle) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for handle.Alive() {
		select {
		case <-handle.Done():
		case <-ticker.C:
		case <-ctx.Done():
			<-handle.Done()
		}
	}
}

func (o *Orchestrator) waitForShutdown(ctx context.Context) bool {
	deadline := time.NewTimer(o.cfg.ShutdownTimeout)
	defer deadline.Stop()

	select {
	case <-o.shutdown.Done():
		return true
	case <-deadline.C:
		return o.shutdown.Requested()
	case <-ctx.Done():
		return o.shutdown.Requested()
	}
}
