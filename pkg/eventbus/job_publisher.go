package eventbus

import (
	"context"

	"github.com/pcuzner/runner-wrapper/pkg/events"
	"github.com/pcuzner/runner-wrapper/pkg/models"
)

// JobPublisher publishes recorded execution events keyed by the job ident.
type JobPublisher struct {
	bus   Publisher
	ident string
}

func NewJobPublisher(bus Publisher, ident string) *JobPublisher {
	return &JobPublisher{bus: bus, ident: ident}
}

func (p *JobPublisher) PublishEvent(ctx context.Context, event models.Event) error {
	return p.bus.Publish(ctx, p.ident, events.NewJobEvent(p.bus.GenerateID(), p.ident, event))
}
