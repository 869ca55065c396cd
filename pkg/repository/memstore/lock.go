package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// LockStore is an in-memory LockRepository: at most one unexpired row per
// lock_key, matching the mutex guard's "TryAcquire fails while a live lease
// is held by someone else" contract.
type LockStore struct {
	mu    sync.Mutex
	locks map[string]*domain.Lock
}

func NewLockStore() *LockStore {
	return &LockStore{locks: make(map[string]*domain.Lock)}
}

// TryAcquire succeeds if no lock row exists for lockKey, or the existing
// row has expired, or the existing row is already held by holderID
// (re-entrant acquire by the same holder).
func (s *LockStore) TryAcquire(ctx context.Context, lockKey, holderID string, ttl time.Duration, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.locks[lockKey]
	if ok && !existing.Expired(now) && existing.HolderID != holderID {
		return false, nil
	}
	s.locks[lockKey] = &domain.Lock{
		LockKey:     lockKey,
		HolderID:    holderID,
		AcquiredAt:  now,
		HeartbeatAt: now,
		ExpiresAt:   now.Add(ttl),
	}
	return true, nil
}

// Heartbeat extends an existing lease's expiry if holderID still owns it.
func (s *LockStore) Heartbeat(ctx context.Context, lockKey, holderID string, ttl time.Duration, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.locks[lockKey]
	if !ok || existing.HolderID != holderID {
		return apperr.New(apperr.KindConflict, "lock not held by this holder")
	}
	existing.HeartbeatAt = now
	existing.ExpiresAt = now.Add(ttl)
	return nil
}

// Release removes the lock row if holderID still owns it.
func (s *LockStore) Release(ctx context.Context, lockKey, holderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.locks[lockKey]
	if !ok {
		return nil
	}
	if existing.HolderID != holderID {
		return apperr.New(apperr.KindConflict, "lock not held by this holder")
	}
	delete(s.locks, lockKey)
	return nil
}

// ReapExpired deletes every lock row whose expiry has passed.
func (s *LockStore) ReapExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, l := range s.locks {
		if l.Expired(now) {
			delete(s.locks, key)
			n++
		}
	}
	return n, nil
}

func (s *LockStore) Get(ctx context.Context, lockKey string) (*domain.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[lockKey]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "lock not found")
	}
	cp := *l
	return &cp, nil
}
