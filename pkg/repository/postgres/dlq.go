package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/repository/postgres/sqlutil"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// DLQStore is the pgx-backed repository.DLQRepository.
type DLQStore struct {
	db *sqlx.DB
}

func NewDLQStore(db *sqlx.DB) *DLQStore { return &DLQStore{db: db} }

type dlqRow struct {
	queueItemRow
	FailureReason string       `db:"failure_reason"`
	ArchivedAt    sql.NullTime `db:"archived_at"`
}

func (r dlqRow) toDomain() domain.DeadLetterItem {
	return domain.DeadLetterItem{
		QueueItem:     *r.queueItemRow.toDomain(),
		FailureReason: r.FailureReason,
		ArchivedAt:    sqlutil.FromNullTime(r.ArchivedAt),
	}
}

func (d *DLQStore) List(ctx context.Context, offset, limit int) ([]domain.DeadLetterItem, int, error) {
	var total int
	if err := d.db.GetContext(ctx, &total, `SELECT count(*) FROM dead_letter_items`); err != nil {
		return nil, 0, apperr.Wrap(err, apperr.KindInternal, "count dead letter items")
	}
	if limit <= 0 {
		limit = total
	}
	const q = `
		SELECT * FROM dead_letter_items
		ORDER BY enqueued_at ASC
		LIMIT $1 OFFSET $2`
	var rows []dlqRow
	if err := d.db.SelectContext(ctx, &rows, q, limit, offset); err != nil {
		return nil, 0, apperr.Wrap(err, apperr.KindInternal, "list dead letter items")
	}
	out := make([]domain.DeadLetterItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, total, nil
}

func (d *DLQStore) Requeue(ctx context.Context, itemID string, resetAttempt bool) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "begin requeue transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	var row dlqRow
	const getQ = `SELECT * FROM dead_letter_items WHERE item_id = $1`
	if err := tx.GetContext(ctx, &row, getQ, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.KindNotFound, "dead-letter item not found")
		}
		return apperr.Wrap(err, apperr.KindInternal, "get dead letter item")
	}

	attempt := row.Attempt
	if resetAttempt {
		attempt = 0
	}
	const insQ = `
		INSERT INTO queue_items (
			item_id, execution_id, priority, available_at, attempt, max_attempts, enqueued_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.ExecContext(ctx, insQ, row.ItemID, row.ExecutionID, row.Priority, time.Now(), attempt, row.MaxAttempts, row.EnqueuedAt); err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "reinsert queue item")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dead_letter_items WHERE item_id = $1`, itemID); err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "delete dead letter item")
	}
	return tx.Commit()
}

func (d *DLQStore) Archive(ctx context.Context, itemID string, at time.Time) error {
	const q = `UPDATE dead_letter_items SET archived_at = $2 WHERE item_id = $1`
	res, err := d.db.ExecContext(ctx, q, itemID, at)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "archive dead letter item")
	}
	return requireRowsAffected(res, "dead-letter item not found")
}

func (d *DLQStore) FailureStats(ctx context.Context) (map[string]int, error) {
	const q = `SELECT failure_reason, count(*) AS n FROM dead_letter_items GROUP BY failure_reason`
	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failure stats")
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, apperr.Wrap(err, apperr.KindInternal, "scan failure stats")
		}
		out[reason] = n
	}
	return out, rows.Err()
}
