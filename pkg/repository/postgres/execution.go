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

// ExecutionStore is the pgx-backed repository.ExecutionRepository.
type ExecutionStore struct {
	db *sqlx.DB
}

// NewExecutionStore constructs an ExecutionStore over an open connection.
func NewExecutionStore(db *sqlx.DB) *ExecutionStore { return &ExecutionStore{db: db} }

type executionRow struct {
	ExecutionID    string         `db:"execution_id"`
	TenantID       string         `db:"tenant_id"`
	ActorID        string         `db:"actor_id"`
	IdempotencyKey string         `db:"idempotency_key"`
	RetryOf        sql.NullString `db:"retry_of"`
	SLAClass       string         `db:"sla_class"`
	Mode           string         `db:"mode"`
	ActionClass    string         `db:"action_class"`
	Priority       int            `db:"priority"`
	Status         string         `db:"status"`
	Plan           []byte         `db:"plan"`
	Target         []byte         `db:"target"`
	Results        []byte         `db:"results"`
	StartedAt      sql.NullTime   `db:"started_at"`
	EndedAt        sql.NullTime   `db:"ended_at"`
	AttemptCount   int            `db:"attempt_count"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r executionRow) toDomain() (*domain.Execution, error) {
	var plan domain.Plan
	if err := unmarshalInto(r.Plan, &plan); err != nil {
		return nil, err
	}
	var target domain.Target
	if err := unmarshalInto(r.Target, &target); err != nil {
		return nil, err
	}
	var results []domain.StepResult
	if err := unmarshalInto(r.Results, &results); err != nil {
		return nil, err
	}
	return &domain.Execution{
		ExecutionID:    r.ExecutionID,
		TenantID:       r.TenantID,
		ActorID:        r.ActorID,
		IdempotencyKey: r.IdempotencyKey,
		RetryOf:        r.RetryOf.String,
		SLAClass:       domain.SLAClass(r.SLAClass),
		Mode:           domain.Mode(r.Mode),
		ActionClass:    domain.ActionClass(r.ActionClass),
		Priority:       r.Priority,
		Status:         domain.Status(r.Status),
		Plan:           plan,
		Target:         target,
		Results:        results,
		StartedAt:      sqlutil.FromNullTime(r.StartedAt),
		EndedAt:        sqlutil.FromNullTime(r.EndedAt),
		AttemptCount:   r.AttemptCount,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}, nil
}

func (s *ExecutionStore) Create(ctx context.Context, exec *domain.Execution) error {
	planJSON, err := sqlutil.ToJSON(exec.Plan)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "marshal plan")
	}
	targetJSON, err := sqlutil.ToJSON(exec.Target)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "marshal target")
	}
	resultsJSON, err := sqlutil.ToJSON(exec.Results)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "marshal results")
	}

	const q = `
		INSERT INTO executions (
			execution_id, tenant_id, actor_id, idempotency_key, retry_of,
			sla_class, mode, action_class, priority, status,
			plan, target, results, attempt_count
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)`
	_, err = s.db.ExecContext(ctx, q,
		exec.ExecutionID, exec.TenantID, exec.ActorID, exec.IdempotencyKey, sqlutil.ToNullString(exec.RetryOf),
		exec.SLAClass, exec.Mode, exec.ActionClass, exec.Priority, exec.Status,
		planJSON, targetJSON, resultsJSON, exec.AttemptCount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(err, apperr.KindConflict, "execution already exists")
		}
		return apperr.Wrap(err, apperr.KindInternal, "insert execution")
	}
	return nil
}

func (s *ExecutionStore) Get(ctx context.Context, tenantID, executionID string) (*domain.Execution, error) {
	const q = `SELECT * FROM executions WHERE execution_id = $1 AND tenant_id = $2`
	var row executionRow
	if err := s.db.GetContext(ctx, &row, q, executionID, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "execution not found")
		}
		return nil, apperr.Wrap(err, apperr.KindInternal, "get execution")
	}
	return row.toDomain()
}

func (s *ExecutionStore) GetByID(ctx context.Context, executionID string) (*domain.Execution, error) {
	const q = `SELECT * FROM executions WHERE execution_id = $1`
	var row executionRow
	if err := s.db.GetContext(ctx, &row, q, executionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "execution not found")
		}
		return nil, apperr.Wrap(err, apperr.KindInternal, "get execution")
	}
	return row.toDomain()
}

func (s *ExecutionStore) FindByIdempotencyKey(ctx context.Context, tenantID, key string, within time.Duration) (*domain.Execution, error) {
	const q = `
		SELECT * FROM executions
		WHERE tenant_id = $1 AND idempotency_key = $2
		ORDER BY created_at DESC
		LIMIT 1`
	var row executionRow
	if err := s.db.GetContext(ctx, &row, q, tenantID, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Wrap(err, apperr.KindInternal, "find execution by idempotency key")
	}
	if within > 0 && time.Since(row.CreatedAt) > within {
		return nil, nil
	}
	return row.toDomain()
}

func (s *ExecutionStore) UpdateStatus(ctx context.Context, tenantID, executionID string, status domain.Status, at time.Time) error {
	const q = `
		UPDATE executions SET
			status = $3,
			updated_at = $4,
			ended_at = CASE WHEN $5 THEN $4 ELSE ended_at END,
			started_at = CASE WHEN $6 AND started_at IS NULL THEN $4 ELSE started_at END
		WHERE execution_id = $1 AND tenant_id = $2`
	res, err := s.db.ExecContext(ctx, q, executionID, tenantID, status, at, status.Terminal(), status == domain.StatusRunning)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "update execution status")
	}
	return requireRowsAffected(res, "execution not found")
}

func (s *ExecutionStore) Update(ctx context.Context, exec *domain.Execution) error {
	planJSON, err := sqlutil.ToJSON(exec.Plan)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "marshal plan")
	}
	resultsJSON, err := sqlutil.ToJSON(exec.Results)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "marshal results")
	}
	const q = `
		UPDATE executions SET
			status = $2, results = $3, plan = $4, attempt_count = $5,
			started_at = $6, ended_at = $7, updated_at = now()
		WHERE execution_id = $1`
	res, err := s.db.ExecContext(ctx, q,
		exec.ExecutionID, exec.Status, resultsJSON, planJSON, exec.AttemptCount,
		sqlutil.ToNullTime(exec.StartedAt), sqlutil.ToNullTime(exec.EndedAt),
	)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "update execution")
	}
	return requireRowsAffected(res, "execution not found")
}
