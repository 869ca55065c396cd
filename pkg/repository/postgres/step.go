package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/repository/postgres/sqlutil"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// StepStore is the pgx-backed repository.StepRepository.
type StepStore struct {
	db *sqlx.DB
}

func NewStepStore(db *sqlx.DB) *StepStore { return &StepStore{db: db} }

type stepRow struct {
	StepID      string       `db:"step_id"`
	ExecutionID string       `db:"execution_id"`
	Ordinal     int          `db:"ordinal"`
	ToolName    string       `db:"tool_name"`
	Inputs      []byte       `db:"inputs"`
	Status      string       `db:"status"`
	Result      []byte       `db:"result"`
	Error       string       `db:"error"`
	StartedAt   sql.NullTime `db:"started_at"`
	EndedAt     sql.NullTime `db:"ended_at"`
	Attempt     int          `db:"attempt"`
}

func (r stepRow) toDomain() (*domain.ExecutionStep, error) {
	inputs, err := sqlutil.FromJSON(r.Inputs)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "unmarshal step inputs")
	}
	result, err := sqlutil.FromJSON(r.Result)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "unmarshal step result")
	}
	return &domain.ExecutionStep{
		StepID:      r.StepID,
		ExecutionID: r.ExecutionID,
		Ordinal:     r.Ordinal,
		ToolName:    r.ToolName,
		Inputs:      inputs,
		Status:      domain.Status(r.Status),
		Result:      result,
		Error:       r.Error,
		StartedAt:   sqlutil.FromNullTime(r.StartedAt),
		EndedAt:     sqlutil.FromNullTime(r.EndedAt),
		Attempt:     r.Attempt,
	}, nil
}

func (s *StepStore) Create(ctx context.Context, step *domain.ExecutionStep) error {
	inputsJSON, err := sqlutil.ToJSON(step.Inputs)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "marshal step inputs")
	}
	resultJSON, err := sqlutil.ToJSON(step.Result)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "marshal step result")
	}
	const q = `
		INSERT INTO execution_steps (
			step_id, execution_id, ordinal, tool_name, inputs, status, result,
			error, started_at, ended_at, attempt
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = s.db.ExecContext(ctx, q,
		step.StepID, step.ExecutionID, step.Ordinal, step.ToolName, inputsJSON, step.Status, resultJSON,
		step.Error, sqlutil.ToNullTime(step.StartedAt), sqlutil.ToNullTime(step.EndedAt), step.Attempt,
	)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "insert execution step")
	}
	return nil
}

func (s *StepStore) Update(ctx context.Context, step *domain.ExecutionStep) error {
	resultJSON, err := sqlutil.ToJSON(step.Result)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "marshal step result")
	}
	const q = `
		UPDATE execution_steps SET
			status = $2, result = $3, error = $4,
			started_at = $5, ended_at = $6, attempt = $7
		WHERE step_id = $1`
	res, err := s.db.ExecContext(ctx, q,
		step.StepID, step.Status, resultJSON, step.Error,
		sqlutil.ToNullTime(step.StartedAt), sqlutil.ToNullTime(step.EndedAt), step.Attempt,
	)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "update execution step")
	}
	return requireRowsAffected(res, "step not found")
}

func (s *StepStore) ListByExecution(ctx context.Context, executionID string) ([]domain.ExecutionStep, error) {
	const q = `SELECT * FROM execution_steps WHERE execution_id = $1 ORDER BY ordinal ASC`
	var rows []stepRow
	if err := s.db.SelectContext(ctx, &rows, q, executionID); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "list execution steps")
	}
	out := make([]domain.ExecutionStep, 0, len(rows))
	for _, r := range rows {
		d, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}
