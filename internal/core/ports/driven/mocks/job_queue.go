package mocks

import (
	"context"
	"time"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

// MockJobQueue is a mock implementation of JobQueue for testing
type MockJobQueue struct {
	EnqueueFn  func(ctx context.Context, job *domain.BackgroundJob) error
	DequeueFn  func(ctx context.Context) (*domain.BackgroundJob, error)
	CompleteFn func(ctx context.Context, jobID string) error
	FailFn     func(ctx context.Context, jobID string, reason string) error
	GetFn      func(ctx context.Context, jobID string) (*domain.BackgroundJob, error)
	PurgeFn    func(ctx context.Context, olderThan time.Duration) (int, error)
	CloseFn    func() error
}

func NewMockJobQueue() *MockJobQueue {
	return &MockJobQueue{}
}

func (m *MockJobQueue) Enqueue(ctx context.Context, job *domain.BackgroundJob) error {
	if m.EnqueueFn != nil {
		return m.EnqueueFn(ctx, job)
	}
	return nil
}

func (m *MockJobQueue) Dequeue(ctx context.Context) (*domain.BackgroundJob, error) {
	if m.DequeueFn != nil {
		return m.DequeueFn(ctx)
	}
	return nil, nil
}

func (m *MockJobQueue) Complete(ctx context.Context, jobID string) error {
	if m.CompleteFn != nil {
		return m.CompleteFn(ctx, jobID)
	}
	return nil
}

func (m *MockJobQueue) Fail(ctx context.Context, jobID string, reason string) error {
	if m.FailFn != nil {
		return m.FailFn(ctx, jobID, reason)
	}
	return nil
}

func (m *MockJobQueue) Get(ctx context.Context, jobID string) (*domain.BackgroundJob, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, jobID)
	}
	return nil, domain.ErrJobNotFound
}

func (m *MockJobQueue) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	if m.PurgeFn != nil {
		return m.PurgeFn(ctx, olderThan)
	}
	return 0, nil
}

func (m *MockJobQueue) Close() error {
	if m.CloseFn != nil {
		return m.CloseFn()
	}
	return nil
}
