// Package dlq implements the dead-letter handler from spec.md §4.3:
// paginated listing, requeue, archival with retention, and aggregate
// failure-reason statistics.
package dlq

import (
	"context"
	"time"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/repository"
)

// DefaultPageSize bounds a single List call when the caller passes 0.
const DefaultPageSize = 50

// Handler is the DLQ handler's public API.
type Handler struct {
	repo repository.DLQRepository
}

func NewHandler(repo repository.DLQRepository) *Handler {
	return &Handler{repo: repo}
}

// List returns a page of dead-letter items plus the total count.
func (h *Handler) List(ctx context.Context, offset, limit int) ([]domain.DeadLetterItem, int, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return h.repo.List(ctx, offset, limit)
}

// Requeue moves itemID back onto the live queue, optionally resetting
// its attempt counter so it gets a fresh retry budget.
func (h *Handler) Requeue(ctx context.Context, itemID string, resetAttempt bool) error {
	return h.repo.Requeue(ctx, itemID, resetAttempt)
}

// Archive marks itemID archived at the given time, for retention
// policies that periodically purge archived rows past a TTL.
func (h *Handler) Archive(ctx context.Context, itemID string) error {
	return h.repo.Archive(ctx, itemID, time.Now())
}

// FailureStats returns a count of dead-letter items per failure_reason.
func (h *Handler) FailureStats(ctx context.Context) (map[string]int, error) {
	return h.repo.FailureStats(ctx)
}
