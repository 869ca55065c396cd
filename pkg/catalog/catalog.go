// Package catalog implements the Tool Catalog Service from spec.md §4.4:
// lookup by name/capability, version rollback, and a hot-reload path
// that invalidates a bounded in-memory cache sized by CATALOG_CACHE_SIZE
// with a CATALOG_CACHE_TTL_SECONDS expiry tracked alongside each entry.
package catalog

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/repository"
)

// DefaultCacheSize and DefaultCacheTTL back CATALOG_CACHE_SIZE and
// CATALOG_CACHE_TTL_SECONDS when the caller passes a zero value.
const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = 300 * time.Second
)

type cacheEntry struct {
	spec      domain.ToolSpec
	expiresAt time.Time
}

// Service is the Tool Catalog's public API.
type Service struct {
	repo repository.CatalogRepository
	ttl  time.Duration

	mu    sync.Mutex
	cache *lru.Cache[string, cacheEntry]
}

// NewService constructs a Service with an LRU cache of cacheSize entries
// (defaulting to DefaultCacheSize) and the given TTL (defaulting to
// DefaultCacheTTL).
func NewService(repo repository.CatalogRepository, cacheSize int, ttl time.Duration) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c, err := lru.New[string, cacheEntry](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{repo: repo, ttl: ttl, cache: c}, nil
}

// Upsert writes a new tool version and invalidates any cached entry for
// that tool name, since GetToolByName would otherwise serve a stale
// version until the TTL lapses.
func (s *Service) Upsert(ctx context.Context, spec *domain.ToolSpec) error {
	if err := s.repo.Upsert(ctx, spec); err != nil {
		return err
	}
	s.invalidate(spec.ToolName)
	return nil
}

// GetToolByName returns the latest enabled version of a tool, serving
// from cache when the entry hasn't expired.
func (s *Service) GetToolByName(ctx context.Context, toolName string) (domain.ToolSpec, error) {
	if cached, ok := s.fromCache(toolName); ok {
		return cached, nil
	}
	spec, err := s.repo.GetLatest(ctx, toolName)
	if err != nil {
		return domain.ToolSpec{}, err
	}
	s.storeCache(toolName, *spec)
	return *spec, nil
}

// GetToolVersion fetches a specific historical version, bypassing the
// cache (rollback callers want the exact row, not whatever's cached).
func (s *Service) GetToolVersion(ctx context.Context, toolName string, version int) (domain.ToolSpec, error) {
	spec, err := s.repo.GetVersion(ctx, toolName, version)
	if err != nil {
		return domain.ToolSpec{}, err
	}
	return *spec, nil
}

// ListTools returns the latest version of every known tool.
func (s *Service) ListTools(ctx context.Context) ([]domain.ToolSpec, error) {
	return s.repo.ListLatest(ctx)
}

// GetToolsByCapability returns every enabled, platform-matching tool
// advertising the given capability — the input to Stage B selection.
func (s *Service) GetToolsByCapability(ctx context.Context, platform domain.Platform, capability string) ([]domain.ToolSpec, error) {
	return s.repo.ListByCapability(ctx, platform, capability)
}

// Rollback repoints a tool's latest pointer at an earlier version and
// invalidates the cache entry.
func (s *Service) Rollback(ctx context.Context, toolName string, version int) error {
	if err := s.repo.SetLatest(ctx, toolName, version); err != nil {
		return err
	}
	s.invalidate(toolName)
	return nil
}

// Reload drops every cached entry, forcing the next lookup of each tool
// to go to the repository. This backs the /tools/reload hot-reload
// endpoint so a catalog edit made out-of-band (e.g. a direct DB write)
// takes effect without a process restart.
func (s *Service) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
}

func (s *Service) fromCache(toolName string) (domain.ToolSpec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache.Get(toolName)
	if !ok {
		return domain.ToolSpec{}, false
	}
	if time.Now().After(entry.expiresAt) {
		s.cache.Remove(toolName)
		return domain.ToolSpec{}, false
	}
	return entry.spec, true
}

func (s *Service) storeCache(toolName string, spec domain.ToolSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(toolName, cacheEntry{spec: spec, expiresAt: time.Now().Add(s.ttl)})
}

func (s *Service) invalidate(toolName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(toolName)
}
