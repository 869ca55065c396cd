package observability

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/masking"
	"github.com/opsforge/execcore/pkg/repository"
)

// EventFeed is the append-only per-execution progress stream backing
// GET /executions/{id}/events.
type EventFeed struct {
	repo      repository.EventRepository
	sanitizer *masking.Sanitizer
}

func NewEventFeed(repo repository.EventRepository) *EventFeed {
	return &EventFeed{repo: repo, sanitizer: masking.NewSanitizer()}
}

// Publish appends one event to executionID's stream. payload is masked
// before it reaches the event store: a resolved secret that leaks into a
// step's output must not survive into a persisted, client-readable event.
func (f *EventFeed) Publish(ctx context.Context, executionID string, kind domain.EventKind, progressPct int, payload map[string]any) error {
	masked, _ := f.sanitizer.MaskValue(payload).(map[string]any)
	return f.repo.Append(ctx, &domain.ExecutionEvent{
		EventID:     uuid.NewString(),
		ExecutionID: executionID,
		Timestamp:   time.Now(),
		Kind:        kind,
		Payload:     masked,
		ProgressPct: progressPct,
	})
}

// Since returns every event for executionID after cursor, plus the next
// cursor to poll from. Pass an empty cursor to read from the beginning.
func (f *EventFeed) Since(ctx context.Context, executionID, cursor string, limit int) ([]domain.ExecutionEvent, string, error) {
	return f.repo.Since(ctx, executionID, cursor, limit)
}
