// Package mutex implements per-asset (and optional per-purpose) lease
// locks, grounded on spec.md §4.2.2: insert-if-absent acquisition,
// exponential-backoff retry up to a caller deadline, and lexicographic
// key sorting to avoid deadlock when a step acquires more than one lock.
package mutex

import (
	"context"
	"sort"
	"time"

	"github.com/opsforge/execcore/pkg/repository"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// Manager acquires and releases mutex leases. Manager is implemented by
// the Postgres-row-backed default (this package) and by RedisManager in
// redis.go, selected by config.
type Manager interface {
	Acquire(ctx context.Context, keys []string, holderID string, ttl time.Duration, deadline time.Time) ([]string, error)
	Release(ctx context.Context, keys []string, holderID string) error
	Heartbeat(ctx context.Context, keys []string, holderID string, ttl time.Duration) error
}

// SortKeys returns a sorted copy of keys. Acquiring multiple locks in a
// globally consistent order is what prevents two callers each holding
// one of two keys from deadlocking on the other.
func SortKeys(keys []string) []string {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	return sorted
}

// PostgresManager acquires leases through repository.LockRepository.
type PostgresManager struct {
	locks repository.LockRepository
}

func NewPostgresManager(locks repository.LockRepository) *PostgresManager {
	return &PostgresManager{locks: locks}
}

// Acquire attempts every key in sorted order, retrying each with
// exponential backoff until deadline. On any key's failure it releases
// everything already acquired and returns an error — callers never hold
// a partial set of locks.
func (m *PostgresManager) Acquire(ctx context.Context, keys []string, holderID string, ttl time.Duration, deadline time.Time) ([]string, error) {
	sorted := SortKeys(keys)
	acquired := make([]string, 0, len(sorted))

	for _, key := range sorted {
		if err := m.acquireOne(ctx, key, holderID, ttl, deadline); err != nil {
			_ = m.Release(ctx, acquired, holderID)
			return nil, err
		}
		acquired = append(acquired, key)
	}
	return acquired, nil
}

func (m *PostgresManager) acquireOne(ctx context.Context, key, holderID string, ttl time.Duration, deadline time.Time) error {
	backoff := 25 * time.Millisecond
	for {
		ok, err := m.locks.TryAcquire(ctx, key, holderID, ttl, time.Now())
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().Add(backoff).After(deadline) {
			return apperr.Newf(apperr.KindConflict, "mutex %q not available before deadline", key)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 2*time.Second {
			backoff = 2 * time.Second
		}
	}
}

func (m *PostgresManager) Release(ctx context.Context, keys []string, holderID string) error {
	var firstErr error
	for _, key := range keys {
		if err := m.locks.Release(ctx, key, holderID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *PostgresManager) Heartbeat(ctx context.Context, keys []string, holderID string, ttl time.Duration) error {
	for _, key := range keys {
		if err := m.locks.Heartbeat(ctx, key, holderID, ttl, time.Now()); err != nil {
			return err
		}
	}
	return nil
}
