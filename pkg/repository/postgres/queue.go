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

// QueueStore is the pgx-backed repository.QueueRepository. Dequeue uses
// SELECT ... FOR UPDATE SKIP LOCKED to give the same "exactly one worker
// wins the lowest-priority available row" atomicity memstore.QueueStore
// gets for free from its single mutex.
type QueueStore struct {
	db *sqlx.DB
}

func NewQueueStore(db *sqlx.DB) *QueueStore { return &QueueStore{db: db} }

type queueItemRow struct {
	ItemID         string       `db:"item_id"`
	ExecutionID    string       `db:"execution_id"`
	Priority       int          `db:"priority"`
	AvailableAt    time.Time    `db:"available_at"`
	LeaseHolder    string       `db:"lease_holder"`
	LeaseExpiresAt sql.NullTime `db:"lease_expires_at"`
	Attempt        int          `db:"attempt"`
	MaxAttempts    int          `db:"max_attempts"`
	EnqueuedAt     time.Time    `db:"enqueued_at"`
}

func (r queueItemRow) toDomain() *domain.QueueItem {
	return &domain.QueueItem{
		ItemID:         r.ItemID,
		ExecutionID:    r.ExecutionID,
		Priority:       r.Priority,
		AvailableAt:    r.AvailableAt,
		LeaseHolder:    r.LeaseHolder,
		LeaseExpiresAt: sqlutil.FromNullTime(r.LeaseExpiresAt),
		Attempt:        r.Attempt,
		MaxAttempts:    r.MaxAttempts,
		EnqueuedAt:     r.EnqueuedAt,
	}
}

// Enqueue is a no-op when a live row already exists for the execution,
// matching memstore's re-enqueue idempotency.
func (s *QueueStore) Enqueue(ctx context.Context, item *domain.QueueItem) error {
	const q = `
		INSERT INTO queue_items (
			item_id, execution_id, priority, available_at, attempt, max_attempts, enqueued_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (execution_id) DO NOTHING`
	_, err := s.db.ExecContext(ctx, q,
		item.ItemID, item.ExecutionID, item.Priority, item.AvailableAt, item.Attempt, item.MaxAttempts, item.EnqueuedAt,
	)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "enqueue item")
	}
	return nil
}

func (s *QueueStore) Dequeue(ctx context.Context, workerID string, leaseDuration time.Duration, now time.Time) (*domain.QueueItem, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "begin dequeue transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	const pick = `
		SELECT * FROM queue_items
		WHERE available_at <= $1 AND (lease_expires_at IS NULL OR lease_expires_at <= $1)
		ORDER BY priority ASC, enqueued_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`
	var row queueItemRow
	if err := tx.GetContext(ctx, &row, pick, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Wrap(err, apperr.KindInternal, "pick queue item")
	}

	leaseExp := now.Add(leaseDuration)
	const lease = `
		UPDATE queue_items SET lease_holder = $2, lease_expires_at = $3, attempt = attempt + 1
		WHERE item_id = $1`
	if _, err := tx.ExecContext(ctx, lease, row.ItemID, workerID, leaseExp); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "lease queue item")
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "commit dequeue transaction")
	}

	picked := row.toDomain()
	picked.LeaseHolder = workerID
	picked.LeaseExpiresAt = &leaseExp
	picked.Attempt++
	return picked, nil
}

func (s *QueueStore) RenewLease(ctx context.Context, itemID, workerID string, newDuration time.Duration, now time.Time) error {
	const q = `
		UPDATE queue_items SET lease_expires_at = $3
		WHERE item_id = $1 AND lease_holder = $2`
	res, err := s.db.ExecContext(ctx, q, itemID, workerID, now.Add(newDuration))
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "renew lease")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "read rows affected")
	}
	if n == 0 {
		if _, getErr := s.Get(ctx, itemID); getErr != nil {
			return apperr.New(apperr.KindNotFound, "queue item not found")
		}
		return apperr.New(apperr.KindConflict, "lease holder mismatch")
	}
	return nil
}

func (s *QueueStore) Complete(ctx context.Context, itemID string) error {
	const q = `DELETE FROM queue_items WHERE item_id = $1`
	res, err := s.db.ExecContext(ctx, q, itemID)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "complete queue item")
	}
	return requireRowsAffected(res, "queue item not found")
}

// Fail reschedules with the caller's backoff, or archives to the
// dead-letter table once attempt reaches max_attempts, mirroring
// memstore.QueueStore.Fail.
func (s *QueueStore) Fail(ctx context.Context, itemID string, reason string, now time.Time, backoff func(attempt int) time.Duration) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, apperr.Wrap(err, apperr.KindInternal, "begin fail transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	var row queueItemRow
	const getQ = `SELECT * FROM queue_items WHERE item_id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &row, getQ, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, apperr.New(apperr.KindNotFound, "queue item not found")
		}
		return false, apperr.Wrap(err, apperr.KindInternal, "get queue item")
	}

	if row.Attempt < row.MaxAttempts {
		if backoff == nil {
			backoff = DefaultBackoff
		}
		available := now.Add(backoff(row.Attempt))
		const resetQ = `
			UPDATE queue_items SET lease_holder = '', lease_expires_at = NULL, available_at = $2
			WHERE item_id = $1`
		if _, err := tx.ExecContext(ctx, resetQ, itemID, available); err != nil {
			return false, apperr.Wrap(err, apperr.KindInternal, "reschedule queue item")
		}
		return false, tx.Commit()
	}

	const archiveQ = `
		INSERT INTO dead_letter_items (
			item_id, execution_id, priority, available_at, lease_holder, lease_expires_at,
			attempt, max_attempts, enqueued_at, failure_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = tx.ExecContext(ctx, archiveQ,
		row.ItemID, row.ExecutionID, row.Priority, row.AvailableAt, row.LeaseHolder, row.LeaseExpiresAt,
		row.Attempt, row.MaxAttempts, row.EnqueuedAt, reason,
	)
	if err != nil {
		return false, apperr.Wrap(err, apperr.KindInternal, "archive to dead letter")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_items WHERE item_id = $1`, itemID); err != nil {
		return false, apperr.Wrap(err, apperr.KindInternal, "delete failed queue item")
	}
	return true, tx.Commit()
}

// DefaultBackoff mirrors memstore.DefaultBackoff's min(2^attempt*base, cap)
// shape so a deployment swapping backends sees the same retry cadence.
func DefaultBackoff(attempt int) time.Duration {
	const base = 2 * time.Second
	const cap_ = 5 * time.Minute
	d := base << uint(attempt)
	if d <= 0 || d > cap_ {
		d = cap_
	}
	return d
}

func (s *QueueStore) ReapStaleLeases(ctx context.Context, now time.Time) (int, error) {
	const q = `
		UPDATE queue_items SET lease_holder = '', lease_expires_at = NULL
		WHERE lease_expires_at IS NOT NULL AND lease_expires_at <= $1`
	res, err := s.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindInternal, "reap stale leases")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindInternal, "read rows affected")
	}
	return int(n), nil
}

func (s *QueueStore) Get(ctx context.Context, itemID string) (*domain.QueueItem, error) {
	const q = `SELECT * FROM queue_items WHERE item_id = $1`
	var row queueItemRow
	if err := s.db.GetContext(ctx, &row, q, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "queue item not found")
		}
		return nil, apperr.Wrap(err, apperr.KindInternal, "get queue item")
	}
	return row.toDomain(), nil
}

func (s *QueueStore) GetByExecution(ctx context.Context, executionID string) (*domain.QueueItem, error) {
	const q = `SELECT * FROM queue_items WHERE execution_id = $1`
	var row queueItemRow
	if err := s.db.GetContext(ctx, &row, q, executionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "queue item not found")
		}
		return nil, apperr.Wrap(err, apperr.KindInternal, "get queue item by execution")
	}
	return row.toDomain(), nil
}

// DepthBySLA joins through executions for the SLA class, since a queue
// row itself carries no SLA information (see the equivalent memstore
// comment).
func (s *QueueStore) DepthBySLA(ctx context.Context) (map[domain.SLAClass]int, error) {
	const q = `
		SELECT e.sla_class AS sla_class, count(*) AS depth
		FROM queue_items q
		JOIN executions e ON e.execution_id = q.execution_id
		GROUP BY e.sla_class`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "depth by sla")
	}
	defer rows.Close()

	out := make(map[domain.SLAClass]int)
	for rows.Next() {
		var sla string
		var depth int
		if err := rows.Scan(&sla, &depth); err != nil {
			return nil, apperr.Wrap(err, apperr.KindInternal, "scan depth by sla")
		}
		out[domain.SLAClass(sla)] = depth
	}
	return out, rows.Err()
}
