package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

func newMockStore(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(mockDB, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestExecutionStoreCreateWrapsUniqueViolationAsConflict(t *testing.T) {
	db, mock := newMockStore(t)
	store := NewExecutionStore(db)
	ctx := context.Background()

	exec := &domain.Execution{
		ExecutionID:    "exec-1",
		TenantID:       "tenant-a",
		ActorID:        "actor-1",
		IdempotencyKey: "key-1",
		SLAClass:       domain.SLAMedium,
		Mode:           domain.ModeImmediate,
		ActionClass:    domain.ActionMutate,
		Status:         domain.StatusPending,
	}

	mock.ExpectExec(`INSERT INTO executions`).WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.Create(ctx, exec))

	mock.ExpectExec(`INSERT INTO executions`).WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})
	err := store.Create(ctx, exec)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionStoreGetNotFound(t *testing.T) {
	db, mock := newMockStore(t)
	store := NewExecutionStore(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT \* FROM executions WHERE execution_id = \$1 AND tenant_id = \$2`).
		WithArgs("exec-1", "tenant-a").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := store.Get(ctx, "tenant-a", "exec-1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionStoreGetScansRow(t *testing.T) {
	db, mock := newMockStore(t)
	store := NewExecutionStore(db)
	ctx := context.Background()

	now := time.Now()
	cols := []string{
		"execution_id", "tenant_id", "actor_id", "idempotency_key", "retry_of",
		"sla_class", "mode", "action_class", "priority", "status",
		"plan", "target", "results", "started_at", "ended_at",
		"attempt_count", "created_at", "updated_at",
	}
	rows := sqlmock.NewRows(cols).AddRow(
		"exec-1", "tenant-a", "actor-1", "key-1", nil,
		"MEDIUM", "IMMEDIATE", "MUTATE", 5, "PENDING",
		[]byte(`{"steps":[]}`), []byte(`{}`), []byte(`[]`), nil, nil,
		0, now, now,
	)
	mock.ExpectQuery(`SELECT \* FROM executions WHERE execution_id = \$1 AND tenant_id = \$2`).
		WithArgs("exec-1", "tenant-a").
		WillReturnRows(rows)

	got, err := store.Get(ctx, "tenant-a", "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "exec-1", got.ExecutionID)
	assert.Equal(t, domain.SLAMedium, got.SLAClass)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionStoreUpdateStatusNotFound(t *testing.T) {
	db, mock := newMockStore(t)
	store := NewExecutionStore(db)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE executions SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.UpdateStatus(ctx, "tenant-a", "missing", domain.StatusRunning, time.Now())
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}
