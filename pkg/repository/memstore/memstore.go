// Package memstore implements every pkg/repository interface in-process,
// guarded by a single mutex per store. It is the default backing for
// single-node deployments and the fixture used by unit tests that would
// otherwise need a live Postgres instance; the pgx-backed implementation
// in pkg/repository/postgres implements the same interfaces for
// multi-instance deployments.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// ExecutionStore is an in-memory ExecutionRepository.
type ExecutionStore struct {
	mu      sync.Mutex
	byID    map[string]*domain.Execution
	byKey   map[string]string // tenantID+":"+idempotencyKey -> executionID
}

// NewExecutionStore constructs an empty ExecutionStore.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{
		byID:  make(map[string]*domain.Execution),
		byKey: make(map[string]string),
	}
}

func keyFor(tenantID, idemKey string) string { return tenantID + ":" + idemKey }

func clone(e *domain.Execution) *domain.Execution {
	cp := *e
	cp.Plan.Steps = append([]domain.Step(nil), e.Plan.Steps...)
	cp.Results = append([]domain.StepResult(nil), e.Results...)
	return &cp
}

// Create inserts a new execution row.
func (s *ExecutionStore) Create(ctx context.Context, exec *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exec.ExecutionID == "" {
		exec.ExecutionID = uuid.NewString()
	}
	if _, exists := s.byID[exec.ExecutionID]; exists {
		return apperr.New(apperr.KindConflict, "execution already exists")
	}
	now := time.Now()
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = now
	}
	exec.UpdatedAt = now
	s.byID[exec.ExecutionID] = clone(exec)
	s.byKey[keyFor(exec.TenantID, exec.IdempotencyKey)] = exec.ExecutionID
	return nil
}

// Get fetches an execution, scoped to tenant.
func (s *ExecutionStore) Get(ctx context.Context, tenantID, executionID string) (*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[executionID]
	if !ok || e.TenantID != tenantID {
		return nil, apperr.New(apperr.KindNotFound, "execution not found")
	}
	return clone(e), nil
}

// GetByID fetches an execution by id alone, with no tenant scoping.
func (s *ExecutionStore) GetByID(ctx context.Context, executionID string) (*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[executionID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "execution not found")
	}
	return clone(e), nil
}

// FindByIdempotencyKey returns the most recent execution with a matching
// key within the dedup window, or nil if none is found.
func (s *ExecutionStore) FindByIdempotencyKey(ctx context.Context, tenantID, key string, within time.Duration) (*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[keyFor(tenantID, key)]
	if !ok {
		return nil, nil
	}
	e := s.byID[id]
	if e == nil {
		return nil, nil
	}
	if within > 0 && time.Since(e.CreatedAt) > within {
		return nil, nil
	}
	return clone(e), nil
}

// UpdateStatus sets an execution's status and timestamps. It does not check
// that the transition is a legal FSM edge; callers such as execution.Engine
// check CanTransition first.
func (s *ExecutionStore) UpdateStatus(ctx context.Context, tenantID, executionID string, status domain.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[executionID]
	if !ok || e.TenantID != tenantID {
		return apperr.New(apperr.KindNotFound, "execution not found")
	}
	e.Status = status
	e.UpdatedAt = at
	if status.Terminal() {
		endedAt := at
		e.EndedAt = &endedAt
	}
	if status == domain.StatusRunning && e.StartedAt == nil {
		startedAt := at
		e.StartedAt = &startedAt
	}
	return nil
}

// Update persists a full execution row (results, attempt count, ...).
func (s *ExecutionStore) Update(ctx context.Context, exec *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[exec.ExecutionID]; !ok {
		return apperr.New(apperr.KindNotFound, "execution not found")
	}
	exec.UpdatedAt = time.Now()
	s.byID[exec.ExecutionID] = clone(exec)
	return nil
}

// StepStore is an in-memory StepRepository.
type StepStore struct {
	mu    sync.Mutex
	steps map[string][]domain.ExecutionStep // executionID -> steps
}

func NewStepStore() *StepStore { return &StepStore{steps: make(map[string][]domain.ExecutionStep)} }

func (s *StepStore) Create(ctx context.Context, step *domain.ExecutionStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if step.StepID == "" {
		step.StepID = uuid.NewString()
	}
	s.steps[step.ExecutionID] = append(s.steps[step.ExecutionID], *step)
	return nil
}

func (s *StepStore) Update(ctx context.Context, step *domain.ExecutionStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.steps[step.ExecutionID]
	for i := range list {
		if list[i].StepID == step.StepID {
			list[i] = *step
			return nil
		}
	}
	return apperr.New(apperr.KindNotFound, "step not found")
}

func (s *StepStore) ListByExecution(ctx context.Context, executionID string) ([]domain.ExecutionStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append([]domain.ExecutionStep(nil), s.steps[executionID]...)
	sort.Slice(list, func(i, j int) bool { return list[i].Ordinal < list[j].Ordinal })
	return list, nil
}

// ApprovalStore is an in-memory ApprovalRepository.
type ApprovalStore struct {
	mu        sync.Mutex
	byID      map[string]*domain.Approval
	byExecID  map[string]string
}

func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{byID: make(map[string]*domain.Approval), byExecID: make(map[string]string)}
}

func (s *ApprovalStore) Create(ctx context.Context, approval *domain.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if approval.ApprovalID == "" {
		approval.ApprovalID = uuid.NewString()
	}
	cp := *approval
	s.byID[approval.ApprovalID] = &cp
	s.byExecID[approval.ExecutionID] = approval.ApprovalID
	return nil
}

func (s *ApprovalStore) Get(ctx context.Context, approvalID string) (*domain.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[approvalID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "approval not found")
	}
	cp := *a
	return &cp, nil
}

func (s *ApprovalStore) GetByExecution(ctx context.Context, executionID string) (*domain.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExecID[executionID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "approval not found")
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *ApprovalStore) Decide(ctx context.Context, approvalID string, state domain.ApprovalState, decidedBy, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[approvalID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "approval not found")
	}
	a.State = state
	a.DecidedBy = decidedBy
	a.Reason = reason
	decidedAt := at
	a.DecidedAt = &decidedAt
	return nil
}

// EventStore is an in-memory, append-only EventRepository.
type EventStore struct {
	mu     sync.Mutex
	events map[string][]domain.ExecutionEvent
}

func NewEventStore() *EventStore { return &EventStore{events: make(map[string][]domain.ExecutionEvent)} }

func (s *EventStore) Append(ctx context.Context, event *domain.ExecutionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.events[event.ExecutionID] = append(s.events[event.ExecutionID], *event)
	return nil
}

// Since returns events after cursor (an event_id, or "" for the start),
// plus the new cursor to resume from.
func (s *EventStore) Since(ctx context.Context, executionID string, cursor string, limit int) ([]domain.ExecutionEvent, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.events[executionID]
	start := 0
	if cursor != "" {
		for i, e := range all {
			if e.EventID == cursor {
				start = i + 1
				break
			}
		}
	}
	end := len(all)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	if start > end {
		start = end
	}
	page := append([]domain.ExecutionEvent(nil), all[start:end]...)
	newCursor := cursor
	if len(page) > 0 {
		newCursor = page[len(page)-1].EventID
	}
	return page, newCursor, nil
}
