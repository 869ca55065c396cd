package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/repository/postgres/sqlutil"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// EventStore is the pgx-backed repository.EventRepository, an append-only
// feed ordered by the table's bigserial seq column rather than
// timestamp (clock skew between writers must never reorder the stream).
type EventStore struct {
	db *sqlx.DB
}

func NewEventStore(db *sqlx.DB) *EventStore { return &EventStore{db: db} }

type eventRow struct {
	EventID     string    `db:"event_id"`
	ExecutionID string    `db:"execution_id"`
	Timestamp   time.Time `db:"timestamp"`
	Kind        string    `db:"kind"`
	Payload     []byte    `db:"payload"`
	ProgressPct int       `db:"progress_pct"`
	Seq         int64     `db:"seq"`
}

func (r eventRow) toDomain() (*domain.ExecutionEvent, error) {
	payload, err := sqlutil.FromJSON(r.Payload)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "unmarshal event payload")
	}
	return &domain.ExecutionEvent{
		EventID:     r.EventID,
		ExecutionID: r.ExecutionID,
		Timestamp:   r.Timestamp,
		Kind:        domain.EventKind(r.Kind),
		Payload:     payload,
		ProgressPct: r.ProgressPct,
	}, nil
}

func (s *EventStore) Append(ctx context.Context, event *domain.ExecutionEvent) error {
	payloadJSON, err := sqlutil.ToJSON(event.Payload)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "marshal event payload")
	}
	const q = `
		INSERT INTO execution_events (event_id, execution_id, kind, payload, progress_pct)
		VALUES ($1, $2, $3, $4, $5)`
	_, err = s.db.ExecContext(ctx, q, event.EventID, event.ExecutionID, event.Kind, payloadJSON, event.ProgressPct)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "append execution event")
	}
	return nil
}

// Since returns events with seq greater than the cursor's seq (or from the
// start if cursor is ""), ordered by seq, plus the new cursor (the last
// returned event's event_id).
func (s *EventStore) Since(ctx context.Context, executionID string, cursor string, limit int) ([]domain.ExecutionEvent, string, error) {
	afterSeq := int64(0)
	if cursor != "" {
		const cq = `SELECT seq FROM execution_events WHERE event_id = $1`
		if err := s.db.GetContext(ctx, &afterSeq, cq, cursor); err != nil {
			return nil, cursor, apperr.Wrap(err, apperr.KindInternal, "resolve event cursor")
		}
	}
	if limit <= 0 {
		limit = 1000
	}
	const q = `
		SELECT * FROM execution_events
		WHERE execution_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3`
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, q, executionID, afterSeq, limit); err != nil {
		return nil, cursor, apperr.Wrap(err, apperr.KindInternal, "list execution events")
	}
	out := make([]domain.ExecutionEvent, 0, len(rows))
	newCursor := cursor
	for _, r := range rows {
		d, err := r.toDomain()
		if err != nil {
			return nil, cursor, err
		}
		out = append(out, *d)
		newCursor = r.EventID
	}
	return out, newCursor, nil
}
