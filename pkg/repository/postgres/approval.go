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

// ApprovalStore is the pgx-backed repository.ApprovalRepository.
type ApprovalStore struct {
	db *sqlx.DB
}

func NewApprovalStore(db *sqlx.DB) *ApprovalStore { return &ApprovalStore{db: db} }

type approvalRow struct {
	ApprovalID         string       `db:"approval_id"`
	ExecutionID        string       `db:"execution_id"`
	RequestedBy        string       `db:"requested_by"`
	RequiredPermission string       `db:"required_permission"`
	State              string       `db:"state"`
	Reason             string       `db:"reason"`
	DecidedBy          string       `db:"decided_by"`
	DecidedAt          sql.NullTime `db:"decided_at"`
	RunbookURL         string       `db:"runbook_url"`
	CreatedAt          time.Time    `db:"created_at"`
}

func (r approvalRow) toDomain() *domain.Approval {
	return &domain.Approval{
		ApprovalID:         r.ApprovalID,
		ExecutionID:        r.ExecutionID,
		RequestedBy:        r.RequestedBy,
		RequiredPermission: r.RequiredPermission,
		State:              domain.ApprovalState(r.State),
		Reason:             r.Reason,
		DecidedBy:          r.DecidedBy,
		DecidedAt:          sqlutil.FromNullTime(r.DecidedAt),
		RunbookURL:         r.RunbookURL,
		CreatedAt:          r.CreatedAt,
	}
}

func (s *ApprovalStore) Create(ctx context.Context, approval *domain.Approval) error {
	const q = `
		INSERT INTO approvals (
			approval_id, execution_id, requested_by, required_permission,
			state, reason, runbook_url
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.ExecContext(ctx, q,
		approval.ApprovalID, approval.ExecutionID, approval.RequestedBy, approval.RequiredPermission,
		approval.State, approval.Reason, approval.RunbookURL,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(err, apperr.KindConflict, "approval already exists for execution")
		}
		return apperr.Wrap(err, apperr.KindInternal, "insert approval")
	}
	return nil
}

func (s *ApprovalStore) Get(ctx context.Context, approvalID string) (*domain.Approval, error) {
	const q = `SELECT * FROM approvals WHERE approval_id = $1`
	var row approvalRow
	if err := s.db.GetContext(ctx, &row, q, approvalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "approval not found")
		}
		return nil, apperr.Wrap(err, apperr.KindInternal, "get approval")
	}
	return row.toDomain(), nil
}

func (s *ApprovalStore) GetByExecution(ctx context.Context, executionID string) (*domain.Approval, error) {
	const q = `SELECT * FROM approvals WHERE execution_id = $1`
	var row approvalRow
	if err := s.db.GetContext(ctx, &row, q, executionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "approval not found")
		}
		return nil, apperr.Wrap(err, apperr.KindInternal, "get approval by execution")
	}
	return row.toDomain(), nil
}

func (s *ApprovalStore) Decide(ctx context.Context, approvalID string, state domain.ApprovalState, decidedBy, reason string, at time.Time) error {
	const q = `
		UPDATE approvals SET state = $2, decided_by = $3, reason = $4, decided_at = $5
		WHERE approval_id = $1`
	res, err := s.db.ExecContext(ctx, q, approvalID, state, decidedBy, reason, at)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "decide approval")
	}
	return requireRowsAffected(res, "approval not found")
}
