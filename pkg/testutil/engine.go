// Package testutil provides test doubles and event builders for testing.
package testutil

import (
	"context"
	"sync"

	"github.com/pcuzner/runner-wrapper/pkg/models"
	"github.com/pcuzner/runner-wrapper/pkg/runner"
)

// FakeEngine replays a scripted list of event observations.
type FakeEngine struct {
	Events      []models.Event
	FinalStatus models.JobStatus
	FinalRC     int
	PrepareErr  error

	// StatusAfterPrepare overrides the status reported after Prepare. Defaults to starting.
	StatusAfterPrepare models.JobStatus

	// Gate, when set, keeps Run in the running state until it is closed.
	Gate chan struct{}

	mu     sync.Mutex
	status models.JobStatus
	rc     int
	cb     runner.EventCallback
}

func (f *FakeEngine) RegisterEventCallback(cb runner.EventCallback) {
	f.cb = cb
}

func (f *FakeEngine) Prepare(_ context.Context) error {
	if f.PrepareErr != nil {
		f.setStatus(models.JobStatusFailed, 1)

		return f.PrepareErr
	}

	status := f.StatusAfterPrepare
	if status == "" {
		status = models.JobStatusStarting
	}

	f.setStatus(status, 0)

	return nil
}

func (f *FakeEngine) Run(ctx context.Context) error {
	f.setStatus(models.JobStatusRunning, 0)

	for _, event := range f.Events {
		if f.cb != nil {
			f.cb(ctx, event.Clone())
		}
	}

	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			f.setStatus(models.JobStatusCanceled, 254)

			return ctx.Err()
		}
	}

	final := f.FinalStatus
	if final == "" {
		final = models.JobStatusSuccessful
	}

	f.setStatus(final, f.FinalRC)

	return nil
}

func (f *FakeEngine) Status() models.JobStatus {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status == "" {
		return models.JobStatusUnstarted
	}

	return f.status
}

func (f *FakeEngine) RC() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.rc
}

// SetStatus forces the reported status, for tests that drive handlers without running a job.
func (f *FakeEngine) SetStatus(status models.JobStatus) {
	f.setStatus(status, f.RC())
}

func (f *FakeEngine) setStatus(status models.JobStatus, rc int) {
	f.mu.Lock()
	f.status = status
	f.rc = rc
	f.mu.Unlock()
}
