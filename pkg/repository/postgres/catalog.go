package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/repository/postgres/sqlutil"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// CatalogStore is the pgx-backed repository.CatalogRepository: every
// version of every tool is kept, with a separate latest-pointer table so
// SetLatest (a version rollback) never rewrites history.
type CatalogStore struct {
	db *sqlx.DB
}

func NewCatalogStore(db *sqlx.DB) *CatalogStore { return &CatalogStore{db: db} }

type toolSpecRow struct {
	ToolName     string `db:"tool_name"`
	Version      int    `db:"version"`
	Platform     string `db:"platform"`
	Category     string `db:"category"`
	Capabilities []byte `db:"capabilities"`
	Patterns     []byte `db:"patterns"`
	Policy       []byte `db:"policy"`
	Enabled      bool   `db:"enabled"`
}

func (r toolSpecRow) toDomain() (*domain.ToolSpec, error) {
	capabilities, err := sqlutil.ParseStringSlice(r.Capabilities)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "unmarshal tool capabilities")
	}
	var patterns []domain.PerformancePattern
	if err := unmarshalInto(r.Patterns, &patterns); err != nil {
		return nil, err
	}
	var policy domain.Policy
	if err := unmarshalInto(r.Policy, &policy); err != nil {
		return nil, err
	}
	return &domain.ToolSpec{
		ToolName:     r.ToolName,
		Version:      r.Version,
		Platform:     domain.Platform(r.Platform),
		Category:     r.Category,
		Capabilities: capabilities,
		Patterns:     patterns,
		Policy:       policy,
		Enabled:      r.Enabled,
	}, nil
}

func (s *CatalogStore) Upsert(ctx context.Context, spec *domain.ToolSpec) error {
	capabilitiesJSON, err := sqlutil.StringSlice(spec.Capabilities)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "marshal tool capabilities")
	}
	patternsJSON, err := sqlutil.ToJSON(spec.Patterns)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "marshal tool patterns")
	}
	policyJSON, err := sqlutil.ToJSON(spec.Policy)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "marshal tool policy")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "begin upsert transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	const upsertQ = `
		INSERT INTO tool_catalog (tool_name, version, platform, category, capabilities, patterns, policy, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tool_name, version) DO UPDATE SET
			platform = EXCLUDED.platform, category = EXCLUDED.category,
			capabilities = EXCLUDED.capabilities, patterns = EXCLUDED.patterns,
			policy = EXCLUDED.policy, enabled = EXCLUDED.enabled`
	if _, err := tx.ExecContext(ctx, upsertQ, spec.ToolName, spec.Version, spec.Platform, spec.Category, capabilitiesJSON, patternsJSON, policyJSON, spec.Enabled); err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "upsert tool spec")
	}

	const latestQ = `
		INSERT INTO tool_catalog_latest (tool_name, version) VALUES ($1, $2)
		ON CONFLICT (tool_name) DO UPDATE SET version = $2
		WHERE tool_catalog_latest.version < $2`
	if _, err := tx.ExecContext(ctx, latestQ, spec.ToolName, spec.Version); err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "advance latest pointer")
	}
	return tx.Commit()
}

func (s *CatalogStore) GetLatest(ctx context.Context, toolName string) (*domain.ToolSpec, error) {
	const q = `
		SELECT c.* FROM tool_catalog c
		JOIN tool_catalog_latest l ON l.tool_name = c.tool_name AND l.version = c.version
		WHERE c.tool_name = $1`
	var row toolSpecRow
	if err := s.db.GetContext(ctx, &row, q, toolName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "tool not found")
		}
		return nil, apperr.Wrap(err, apperr.KindInternal, "get latest tool spec")
	}
	return row.toDomain()
}

func (s *CatalogStore) GetVersion(ctx context.Context, toolName string, version int) (*domain.ToolSpec, error) {
	const q = `SELECT * FROM tool_catalog WHERE tool_name = $1 AND version = $2`
	var row toolSpecRow
	if err := s.db.GetContext(ctx, &row, q, toolName, version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "tool version not found")
		}
		return nil, apperr.Wrap(err, apperr.KindInternal, "get tool version")
	}
	return row.toDomain()
}

func (s *CatalogStore) ListLatest(ctx context.Context) ([]domain.ToolSpec, error) {
	const q = `
		SELECT c.* FROM tool_catalog c
		JOIN tool_catalog_latest l ON l.tool_name = c.tool_name AND l.version = c.version
		ORDER BY c.tool_name ASC`
	return s.queryList(ctx, q)
}

func (s *CatalogStore) ListByCapability(ctx context.Context, platform domain.Platform, capability string) ([]domain.ToolSpec, error) {
	const q = `
		SELECT c.* FROM tool_catalog c
		JOIN tool_catalog_latest l ON l.tool_name = c.tool_name AND l.version = c.version
		WHERE c.enabled = true
		  AND (c.platform = $1 OR c.platform = 'cross')
		  AND c.capabilities @> to_jsonb($2::text)
		ORDER BY c.tool_name ASC`
	return s.queryList(ctx, q, platform, capability)
}

func (s *CatalogStore) queryList(ctx context.Context, q string, args ...any) ([]domain.ToolSpec, error) {
	var rows []toolSpecRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "list tool specs")
	}
	out := make([]domain.ToolSpec, 0, len(rows))
	for _, r := range rows {
		d, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

func (s *CatalogStore) SetLatest(ctx context.Context, toolName string, version int) error {
	var exists bool
	const checkQ = `SELECT EXISTS(SELECT 1 FROM tool_catalog WHERE tool_name = $1 AND version = $2)`
	if err := s.db.GetContext(ctx, &exists, checkQ, toolName, version); err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "check tool version")
	}
	if !exists {
		return apperr.New(apperr.KindNotFound, "tool version not found")
	}
	const q = `
		INSERT INTO tool_catalog_latest (tool_name, version) VALUES ($1, $2)
		ON CONFLICT (tool_name) DO UPDATE SET version = $2`
	if _, err := s.db.ExecContext(ctx, q, toolName, version); err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "set latest tool version")
	}
	return nil
}
