// Package repository defines the narrow, typed persistence interfaces the
// execution core depends on. Concrete implementations live in
// pkg/repository/postgres (pgx-backed) and pkg/repository/memstore
// (in-process, used by tests and by single-node deployments that don't
// need cross-process durability).
package repository

import (
	"context"
	"time"

	"github.com/opsforge/execcore/pkg/domain"
)

// ExecutionRepository persists Execution rows.
type ExecutionRepository interface {
	Create(ctx context.Context, exec *domain.Execution) error
	Get(ctx context.Context, tenantID, executionID string) (*domain.Execution, error)
	// GetByID fetches an execution without tenant scoping, for internal
	// callers (the worker pool, approval decisions) that only have an
	// execution_id on hand — e.g. a dequeued QueueItem carries no
	// tenant_id. HTTP-facing reads must use the tenant-scoped Get.
	GetByID(ctx context.Context, executionID string) (*domain.Execution, error)
	FindByIdempotencyKey(ctx context.Context, tenantID, key string, within time.Duration) (*domain.Execution, error)
	UpdateStatus(ctx context.Context, tenantID, executionID string, status domain.Status, at time.Time) error
	Update(ctx context.Context, exec *domain.Execution) error
}

// StepRepository persists ExecutionStep rows.
type StepRepository interface {
	Create(ctx context.Context, step *domain.ExecutionStep) error
	Update(ctx context.Context, step *domain.ExecutionStep) error
	ListByExecution(ctx context.Context, executionID string) ([]domain.ExecutionStep, error)
}

// ApprovalRepository persists Approval rows.
type ApprovalRepository interface {
	Create(ctx context.Context, approval *domain.Approval) error
	Get(ctx context.Context, approvalID string) (*domain.Approval, error)
	GetByExecution(ctx context.Context, executionID string) (*domain.Approval, error)
	Decide(ctx context.Context, approvalID string, state domain.ApprovalState, decidedBy, reason string, at time.Time) error
}

// EventRepository persists the append-only ExecutionEvent stream.
type EventRepository interface {
	Append(ctx context.Context, event *domain.ExecutionEvent) error
	Since(ctx context.Context, executionID string, cursor string, limit int) ([]domain.ExecutionEvent, string, error)
}

// QueueRepository implements the durable priority queue's storage layer.
// Implementations must provide the "pick the lowest-priority, unleased,
// available row and mark it leased" atomicity SPEC_FULL.md §4.3 requires
// (e.g. via `SELECT ... FOR UPDATE SKIP LOCKED`).
type QueueRepository interface {
	Enqueue(ctx context.Context, item *domain.QueueItem) error
	Dequeue(ctx context.Context, workerID string, leaseDuration time.Duration, now time.Time) (*domain.QueueItem, error)
	RenewLease(ctx context.Context, itemID, workerID string, newDuration time.Duration, now time.Time) error
	Complete(ctx context.Context, itemID string) error
	Fail(ctx context.Context, itemID string, reason string, now time.Time, backoff func(attempt int) time.Duration) (movedToDLQ bool, err error)
	ReapStaleLeases(ctx context.Context, now time.Time) (int, error)
	Get(ctx context.Context, itemID string) (*domain.QueueItem, error)
	GetByExecution(ctx context.Context, executionID string) (*domain.QueueItem, error)
	DepthBySLA(ctx context.Context) (map[domain.SLAClass]int, error)
}

// DLQRepository implements the dead-letter handler's storage.
type DLQRepository interface {
	List(ctx context.Context, offset, limit int) ([]domain.DeadLetterItem, int, error)
	Requeue(ctx context.Context, itemID string, resetAttempt bool) error
	Archive(ctx context.Context, itemID string, at time.Time) error
	FailureStats(ctx context.Context) (map[string]int, error)
}

// LockRepository implements the MutexGuard's lease storage.
type LockRepository interface {
	TryAcquire(ctx context.Context, lockKey, holderID string, ttl time.Duration, now time.Time) (bool, error)
	Heartbeat(ctx context.Context, lockKey, holderID string, ttl time.Duration, now time.Time) error
	Release(ctx context.Context, lockKey, holderID string) error
	ReapExpired(ctx context.Context, now time.Time) (int, error)
	Get(ctx context.Context, lockKey string) (*domain.Lock, error)
}

// CatalogRepository persists versioned ToolSpec rows.
type CatalogRepository interface {
	Upsert(ctx context.Context, spec *domain.ToolSpec) error
	GetLatest(ctx context.Context, toolName string) (*domain.ToolSpec, error)
	GetVersion(ctx context.Context, toolName string, version int) (*domain.ToolSpec, error)
	ListLatest(ctx context.Context) ([]domain.ToolSpec, error)
	ListByCapability(ctx context.Context, platform domain.Platform, capability string) ([]domain.ToolSpec, error)
	SetLatest(ctx context.Context, toolName string, version int) error
}

// CredentialRepository persists encrypted Credential rows for the secrets
// broker.
type CredentialRepository interface {
	Upsert(ctx context.Context, cred *domain.Credential) error
	Get(ctx context.Context, host, purpose string) (*domain.Credential, error)
	Delete(ctx context.Context, host, purpose string) error
}

// AuditRepository persists the secrets broker's append-only audit log.
type AuditRepository interface {
	Append(ctx context.Context, entry AuditEntry) error
}

// AuditEntry is one append-only secrets-broker audit record.
type AuditEntry struct {
	Actor     string
	Host      string
	Purpose   string
	Action    string
	Outcome   string
	Timestamp time.Time
}
