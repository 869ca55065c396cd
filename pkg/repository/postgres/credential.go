package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/repository"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// CredentialStore is the pgx-backed repository.CredentialRepository. It
// stores only what the secrets broker already encrypted — ciphertext, not
// plaintext.
type CredentialStore struct {
	db *sqlx.DB
}

func NewCredentialStore(db *sqlx.DB) *CredentialStore { return &CredentialStore{db: db} }

type credentialRow struct {
	Host       string `db:"host"`
	Purpose    string `db:"purpose"`
	Username   string `db:"username"`
	Ciphertext []byte `db:"ciphertext"`
	Domain     string `db:"domain"`
}

func (s *CredentialStore) Upsert(ctx context.Context, cred *domain.Credential) error {
	const q = `
		INSERT INTO credentials (host, purpose, username, ciphertext, domain, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (host, purpose) DO UPDATE SET
			username = EXCLUDED.username, ciphertext = EXCLUDED.ciphertext,
			domain = EXCLUDED.domain, updated_at = now()`
	_, err := s.db.ExecContext(ctx, q, cred.Host, cred.Purpose, cred.Username, cred.Ciphertext, cred.Domain)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "upsert credential")
	}
	return nil
}

func (s *CredentialStore) Get(ctx context.Context, host, purpose string) (*domain.Credential, error) {
	const q = `SELECT host, purpose, username, ciphertext, domain, created_at, updated_at FROM credentials WHERE host = $1 AND purpose = $2`
	var row struct {
		credentialRow
		CreatedAt sql.NullTime `db:"created_at"`
		UpdatedAt sql.NullTime `db:"updated_at"`
	}
	if err := s.db.GetContext(ctx, &row, q, host, purpose); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "credential not found")
		}
		return nil, apperr.Wrap(err, apperr.KindInternal, "get credential")
	}
	return &domain.Credential{
		Host:       row.Host,
		Purpose:    row.Purpose,
		Username:   row.Username,
		Ciphertext: row.Ciphertext,
		Domain:     row.Domain,
		CreatedAt:  row.CreatedAt.Time,
		UpdatedAt:  row.UpdatedAt.Time,
	}, nil
}

func (s *CredentialStore) Delete(ctx context.Context, host, purpose string) error {
	const q = `DELETE FROM credentials WHERE host = $1 AND purpose = $2`
	res, err := s.db.ExecContext(ctx, q, host, purpose)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "delete credential")
	}
	return requireRowsAffected(res, "credential not found")
}

// AuditStore is the pgx-backed repository.AuditRepository for the secrets
// broker's append-only access log.
type AuditStore struct {
	db *sqlx.DB
}

func NewAuditStore(db *sqlx.DB) *AuditStore { return &AuditStore{db: db} }

func (s *AuditStore) Append(ctx context.Context, entry repository.AuditEntry) error {
	const q = `
		INSERT INTO secret_audit_log (actor, host, purpose, action, outcome, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, q, entry.Actor, entry.Host, entry.Purpose, entry.Action, entry.Outcome, entry.Timestamp)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "append secret audit entry")
	}
	return nil
}
