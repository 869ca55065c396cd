// Package queue implements the Queue Manager from spec.md §4.3: a thin
// service layer over repository.QueueRepository that supplies default
// lease durations, so callers never touch
// backoff/lease arithmetic directly.
package queue

import (
	"context"
	"time"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/repository"
)

// DefaultLeaseDuration is how long a dequeued item stays invisible to
// other workers before its lease must be renewed or it's reaped.
const DefaultLeaseDuration = 30 * time.Second

// Manager is the Queue Manager's public API.
type Manager struct {
	repo    repository.QueueRepository
	leaseTTL time.Duration
	backoff func(attempt int) time.Duration
}

func NewManager(repo repository.QueueRepository, leaseTTL time.Duration, backoff func(attempt int) time.Duration) *Manager {
	if leaseTTL <= 0 {
		leaseTTL = DefaultLeaseDuration
	}
	return &Manager{repo: repo, leaseTTL: leaseTTL, backoff: backoff}
}

// Enqueue is idempotent per execution_id.
func (m *Manager) Enqueue(ctx context.Context, executionID string, priority int, maxAttempts int, availableAt time.Time) error {
	if availableAt.IsZero() {
		availableAt = time.Now()
	}
	return m.repo.Enqueue(ctx, &domain.QueueItem{
		ExecutionID: executionID,
		Priority:    priority,
		MaxAttempts: maxAttempts,
		AvailableAt: availableAt,
		EnqueuedAt:  time.Now(),
	})
}

// Dequeue returns the next available item leased to workerID, or nil if
// the queue is empty.
func (m *Manager) Dequeue(ctx context.Context, workerID string) (*domain.QueueItem, error) {
	return m.repo.Dequeue(ctx, workerID, m.leaseTTL, time.Now())
}

// RenewLease extends workerID's lease on itemID.
func (m *Manager) RenewLease(ctx context.Context, itemID, workerID string) error {
	return m.repo.RenewLease(ctx, itemID, workerID, m.leaseTTL, time.Now())
}

// Complete removes itemID from the live queue.
func (m *Manager) Complete(ctx context.Context, itemID string) error {
	return m.repo.Complete(ctx, itemID)
}

// Fail reschedules itemID with backoff, or moves it to the DLQ once its
// retry budget is exhausted.
func (m *Manager) Fail(ctx context.Context, itemID, reason string) (movedToDLQ bool, err error) {
	return m.repo.Fail(ctx, itemID, reason, time.Now(), m.backoff)
}

// ReapStaleLeases clears lease_holder on every expired lease so another
// worker can pick the item back up.
func (m *Manager) ReapStaleLeases(ctx context.Context) (int, error) {
	return m.repo.ReapStaleLeases(ctx, time.Now())
}

// DepthBySLA reports current queue depth per SLA class; the worker pool
// supervisor reads it to decide when to scale.
func (m *Manager) DepthBySLA(ctx context.Context) (map[domain.SLAClass]int, error) {
	return m.repo.DepthBySLA(ctx)
}
