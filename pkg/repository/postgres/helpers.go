package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// pgUniqueViolation is Postgres' SQLSTATE for a unique_violation.
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func unmarshalInto(raw []byte, out any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "unmarshal jsonb column")
	}
	return nil
}

func requireRowsAffected(res sql.Result, notFoundMsg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "read rows affected")
	}
	if n == 0 {
		return apperr.New(apperr.KindNotFound, notFoundMsg)
	}
	return nil
}
