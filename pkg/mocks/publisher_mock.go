package mocks

import (
	"context"

	"github.com/pcuzner/runner-wrapper/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockPublisher is a mock implementation of runner.EventPublisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishEvent(ctx context.Context, event models.Event) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}
