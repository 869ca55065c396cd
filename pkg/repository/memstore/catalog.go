package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// CatalogStore is an in-memory CatalogRepository keeping every version of
// every tool, plus a latest-version pointer per tool name.
type CatalogStore struct {
	mu       sync.Mutex
	versions map[string]map[int]*domain.ToolSpec // toolName -> version -> spec
	latest   map[string]int                      // toolName -> latest version
}

func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		versions: make(map[string]map[int]*domain.ToolSpec),
		latest:   make(map[string]int),
	}
}

// Upsert writes a version row and, if it is the highest version seen for
// this tool, advances the latest pointer.
func (s *CatalogStore) Upsert(ctx context.Context, spec *domain.ToolSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.versions[spec.ToolName]; !ok {
		s.versions[spec.ToolName] = make(map[int]*domain.ToolSpec)
	}
	cp := *spec
	s.versions[spec.ToolName][spec.Version] = &cp
	if cur, ok := s.latest[spec.ToolName]; !ok || spec.Version > cur {
		s.latest[spec.ToolName] = spec.Version
	}
	return nil
}

func (s *CatalogStore) GetLatest(ctx context.Context, toolName string) (*domain.ToolSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.latest[toolName]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "tool not found")
	}
	cp := *s.versions[toolName][v]
	return &cp, nil
}

func (s *CatalogStore) GetVersion(ctx context.Context, toolName string, version int) (*domain.ToolSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byVersion, ok := s.versions[toolName]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "tool not found")
	}
	spec, ok := byVersion[version]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "tool version not found")
	}
	cp := *spec
	return &cp, nil
}

func (s *CatalogStore) ListLatest(ctx context.Context) ([]domain.ToolSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ToolSpec, 0, len(s.latest))
	for name, v := range s.latest {
		out = append(out, *s.versions[name][v])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolName < out[j].ToolName })
	return out, nil
}

func (s *CatalogStore) ListByCapability(ctx context.Context, platform domain.Platform, capability string) ([]domain.ToolSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ToolSpec
	for name, v := range s.latest {
		spec := s.versions[name][v]
		if !spec.Enabled {
			continue
		}
		if spec.Platform != platform && spec.Platform != domain.PlatformCross {
			continue
		}
		if spec.HasCapability(capability) {
			out = append(out, *spec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolName < out[j].ToolName })
	return out, nil
}

// SetLatest repoints the latest pointer, e.g. to roll back to a prior
// version.
func (s *CatalogStore) SetLatest(ctx context.Context, toolName string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byVersion, ok := s.versions[toolName]
	if !ok {
		return apperr.New(apperr.KindNotFound, "tool not found")
	}
	if _, ok := byVersion[version]; !ok {
		return apperr.New(apperr.KindNotFound, "tool version not found")
	}
	s.latest[toolName] = version
	return nil
}
