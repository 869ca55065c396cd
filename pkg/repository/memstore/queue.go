package memstore

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// QueueStore is an in-memory QueueRepository implementing the
// lowest-priority/unleased/available selection atomically under a single
// mutex, the same invariant a `SELECT ... FOR UPDATE SKIP LOCKED` query
// gives a Postgres-backed implementation.
type QueueStore struct {
	mu        sync.Mutex
	items     map[string]*domain.QueueItem
	byExecID  map[string]string
	dlq       map[string]*domain.DeadLetterItem
	order     []string // insertion order, for enqueued_at tie-break stability
}

func NewQueueStore() *QueueStore {
	return &QueueStore{
		items:    make(map[string]*domain.QueueItem),
		byExecID: make(map[string]string),
		dlq:      make(map[string]*domain.DeadLetterItem),
	}
}

// Enqueue is idempotent per execution_id: re-enqueuing an execution that
// already has a live queue row is a no-op.
func (s *QueueStore) Enqueue(ctx context.Context, item *domain.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byExecID[item.ExecutionID]; exists {
		return nil
	}
	if item.ItemID == "" {
		item.ItemID = uuid.NewString()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}
	if item.AvailableAt.IsZero() {
		item.AvailableAt = item.EnqueuedAt
	}
	cp := *item
	s.items[item.ItemID] = &cp
	s.byExecID[item.ExecutionID] = item.ItemID
	s.order = append(s.order, item.ItemID)
	return nil
}

// Dequeue atomically picks the lowest-priority, unleased, available item
// (ties broken by enqueued_at ascending) and marks it leased.
func (s *QueueStore) Dequeue(ctx context.Context, workerID string, leaseDuration time.Duration, now time.Time) (*domain.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*domain.QueueItem
	for _, id := range s.order {
		item, ok := s.items[id]
		if !ok {
			continue
		}
		if item.AvailableAt.After(now) {
			continue
		}
		if item.LeaseExpiresAt != nil && item.LeaseExpiresAt.After(now) {
			continue
		}
		candidates = append(candidates, item)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].EnqueuedAt.Before(candidates[j].EnqueuedAt)
	})
	picked := candidates[0]
	picked.LeaseHolder = workerID
	leaseExp := now.Add(leaseDuration)
	picked.LeaseExpiresAt = &leaseExp
	picked.Attempt++
	cp := *picked
	return &cp, nil
}

// RenewLease extends the lease only if workerID still holds it.
func (s *QueueStore) RenewLease(ctx context.Context, itemID, workerID string, newDuration time.Duration, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "queue item not found")
	}
	if item.LeaseHolder != workerID {
		return apperr.New(apperr.KindConflict, "lease holder mismatch")
	}
	exp := now.Add(newDuration)
	item.LeaseExpiresAt = &exp
	return nil
}

// Complete removes the item from the live queue.
func (s *QueueStore) Complete(ctx context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "queue item not found")
	}
	delete(s.items, itemID)
	delete(s.byExecID, item.ExecutionID)
	s.removeFromOrder(itemID)
	return nil
}

func (s *QueueStore) removeFromOrder(itemID string) {
	for i, id := range s.order {
		if id == itemID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// Fail reschedules with exponential backoff + jitter, or moves to DLQ once
// attempt reaches max_attempts.
func (s *QueueStore) Fail(ctx context.Context, itemID string, reason string, now time.Time, backoff func(attempt int) time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return false, apperr.New(apperr.KindNotFound, "queue item not found")
	}
	if item.Attempt < item.MaxAttempts {
		item.LeaseHolder = ""
		item.LeaseExpiresAt = nil
		if backoff == nil {
			backoff = DefaultBackoff
		}
		item.AvailableAt = now.Add(backoff(item.Attempt))
		return false, nil
	}
	delete(s.items, itemID)
	delete(s.byExecID, item.ExecutionID)
	s.removeFromOrder(itemID)
	archived := &domain.DeadLetterItem{QueueItem: *item, FailureReason: reason}
	s.dlq[itemID] = archived
	return true, nil
}

// DefaultBackoff implements min(2^attempt * base, cap) + jitter.
func DefaultBackoff(attempt int) time.Duration {
	const base = 2 * time.Second
	const cap_ = 5 * time.Minute
	d := time.Duration(math.Min(float64(cap_), float64(base)*math.Pow(2, float64(attempt))))
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}

// ReapStaleLeases resets lease_holder = nil on expired leases.
func (s *QueueStore) ReapStaleLeases(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, item := range s.items {
		if item.LeaseExpiresAt != nil && !item.LeaseExpiresAt.After(now) {
			item.LeaseHolder = ""
			item.LeaseExpiresAt = nil
			n++
		}
	}
	return n, nil
}

func (s *QueueStore) Get(ctx context.Context, itemID string) (*domain.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "queue item not found")
	}
	cp := *item
	return &cp, nil
}

func (s *QueueStore) GetByExecution(ctx context.Context, executionID string) (*domain.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExecID[executionID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "queue item not found")
	}
	cp := *s.items[id]
	return &cp, nil
}

func (s *QueueStore) DepthBySLA(ctx context.Context) (map[domain.SLAClass]int, error) {
	// Depth-by-SLA requires the SLA class, which is a property of the
	// referenced execution rather than the queue row itself. This store
	// always returns an empty map, so a caller summing the result (the
	// worker pool's scaling check) sees a depth of 0.
	return map[domain.SLAClass]int{}, nil
}

// DLQStore is an in-memory DLQRepository sharing state with QueueStore.
type DLQStore struct {
	q *QueueStore
}

func NewDLQStore(q *QueueStore) *DLQStore { return &DLQStore{q: q} }

func (d *DLQStore) List(ctx context.Context, offset, limit int) ([]domain.DeadLetterItem, int, error) {
	d.q.mu.Lock()
	defer d.q.mu.Unlock()
	all := make([]domain.DeadLetterItem, 0, len(d.q.dlq))
	for _, item := range d.q.dlq {
		all = append(all, *item)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].EnqueuedAt.Before(all[j].EnqueuedAt) })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (d *DLQStore) Requeue(ctx context.Context, itemID string, resetAttempt bool) error {
	d.q.mu.Lock()
	defer d.q.mu.Unlock()
	archived, ok := d.q.dlq[itemID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "dead-letter item not found")
	}
	delete(d.q.dlq, itemID)
	item := archived.QueueItem
	if resetAttempt {
		item.Attempt = 0
	}
	item.LeaseHolder = ""
	item.LeaseExpiresAt = nil
	item.AvailableAt = time.Now()
	d.q.items[item.ItemID] = &item
	d.q.byExecID[item.ExecutionID] = item.ItemID
	d.q.order = append(d.q.order, item.ItemID)
	return nil
}

func (d *DLQStore) Archive(ctx context.Context, itemID string, at time.Time) error {
	d.q.mu.Lock()
	defer d.q.mu.Unlock()
	item, ok := d.q.dlq[itemID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "dead-letter item not found")
	}
	item.ArchivedAt = &at
	return nil
}

func (d *DLQStore) FailureStats(ctx context.Context) (map[string]int, error) {
	d.q.mu.Lock()
	defer d.q.mu.Unlock()
	stats := make(map[string]int)
	for _, item := range d.q.dlq {
		stats[item.FailureReason]++
	}
	return stats, nil
}
