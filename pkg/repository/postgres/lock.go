package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// LockStore is the pgx-backed repository.LockRepository backing the
// MutexGuard's per-asset lease when no Redis endpoint is configured.
type LockStore struct {
	db *sqlx.DB
}

func NewLockStore(db *sqlx.DB) *LockStore { return &LockStore{db: db} }

type lockRow struct {
	LockKey     string    `db:"lock_key"`
	HolderID    string    `db:"holder_id"`
	AcquiredAt  time.Time `db:"acquired_at"`
	HeartbeatAt time.Time `db:"heartbeat_at"`
	ExpiresAt   time.Time `db:"expires_at"`
}

func (r lockRow) toDomain() *domain.Lock {
	return &domain.Lock{
		LockKey:     r.LockKey,
		HolderID:    r.HolderID,
		AcquiredAt:  r.AcquiredAt,
		HeartbeatAt: r.HeartbeatAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

// TryAcquire upserts the row when it is free, expired, or already owned by
// holderID (re-entrant acquire), matching memstore.LockStore.
func (s *LockStore) TryAcquire(ctx context.Context, lockKey, holderID string, ttl time.Duration, now time.Time) (bool, error) {
	const q = `
		INSERT INTO locks (lock_key, holder_id, acquired_at, heartbeat_at, expires_at)
		VALUES ($1, $2, $3, $3, $4)
		ON CONFLICT (lock_key) DO UPDATE SET
			holder_id = EXCLUDED.holder_id,
			acquired_at = EXCLUDED.acquired_at,
			heartbeat_at = EXCLUDED.heartbeat_at,
			expires_at = EXCLUDED.expires_at
		WHERE locks.expires_at <= $3 OR locks.holder_id = $2`
	res, err := s.db.ExecContext(ctx, q, lockKey, holderID, now, now.Add(ttl))
	if err != nil {
		return false, apperr.Wrap(err, apperr.KindInternal, "acquire lock")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Wrap(err, apperr.KindInternal, "read rows affected")
	}
	return n > 0, nil
}

func (s *LockStore) Heartbeat(ctx context.Context, lockKey, holderID string, ttl time.Duration, now time.Time) error {
	const q = `
		UPDATE locks SET heartbeat_at = $3, expires_at = $4
		WHERE lock_key = $1 AND holder_id = $2`
	res, err := s.db.ExecContext(ctx, q, lockKey, holderID, now, now.Add(ttl))
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "heartbeat lock")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "read rows affected")
	}
	if n == 0 {
		return apperr.New(apperr.KindConflict, "lock not held by this holder")
	}
	return nil
}

func (s *LockStore) Release(ctx context.Context, lockKey, holderID string) error {
	const q = `DELETE FROM locks WHERE lock_key = $1 AND holder_id = $2`
	res, err := s.db.ExecContext(ctx, q, lockKey, holderID)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "release lock")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "read rows affected")
	}
	if n == 0 {
		// Matches memstore: releasing an already-absent lock is not an
		// error, but releasing one held by someone else is.
		var holder string
		const getQ = `SELECT holder_id FROM locks WHERE lock_key = $1`
		if err := s.db.GetContext(ctx, &holder, getQ, lockKey); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return apperr.Wrap(err, apperr.KindInternal, "check lock holder")
		}
		return apperr.New(apperr.KindConflict, "lock not held by this holder")
	}
	return nil
}

func (s *LockStore) ReapExpired(ctx context.Context, now time.Time) (int, error) {
	const q = `DELETE FROM locks WHERE expires_at <= $1`
	res, err := s.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindInternal, "reap expired locks")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindInternal, "read rows affected")
	}
	return int(n), nil
}

func (s *LockStore) Get(ctx context.Context, lockKey string) (*domain.Lock, error) {
	const q = `SELECT * FROM locks WHERE lock_key = $1`
	var row lockRow
	if err := s.db.GetContext(ctx, &row, q, lockKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "lock not found")
		}
		return nil, apperr.Wrap(err, apperr.KindInternal, "get lock")
	}
	return row.toDomain(), nil
}
