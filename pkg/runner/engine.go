package runner

import (
	"context"

	"github.com/pcuzner/runner-wrapper/pkg/models"
)

// EventCallback receives every event observation, in emission order, on the job thread.
type EventCallback func(ctx context.Context, event models.Event)

// Engine is the execution engine driven by the runner.
type Engine interface {
	// RegisterEventCallback installs the per-event hook. Events are delivered one at a time.
	RegisterEventCallback(cb EventCallback)

	// Prepare loads the job definition and moves the engine to the starting state.
	Prepare(ctx context.Context) error

	// Run blocks until the job reaches a terminal state.
	Run(ctx context.Context) error

	Status() models.JobStatus
	RC() int
}

// EventPublisher forwards recorded events to an external consumer.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event models.Event) error
}
