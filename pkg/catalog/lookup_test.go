package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/repository/memstore"
)

func newTestLookup(t *testing.T) (*ToolLookup, *Service) {
	t.Helper()
	svc, err := NewService(memstore.NewCatalogStore(), 16, time.Minute)
	require.NoError(t, err)
	return NewToolLookup(svc, nil), svc
}

func TestToolLookupRequiresApprovalReflectsPolicy(t *testing.T) {
	ctx := context.Background()
	lookup, svc := newTestLookup(t)

	require.NoError(t, svc.Upsert(ctx, &domain.ToolSpec{
		ToolName: "restart_service", Version: 1, IsLatest: true, Enabled: true,
		Policy: domain.Policy{RequiresApproval: true},
	}))
	require.NoError(t, svc.Upsert(ctx, &domain.ToolSpec{
		ToolName: "list_processes", Version: 1, IsLatest: true, Enabled: true,
		Policy: domain.Policy{RequiresApproval: false},
	}))

	assert.True(t, lookup.RequiresApproval("restart_service"))
	assert.False(t, lookup.RequiresApproval("list_processes"))
}

func TestToolLookupClassifiesByCategory(t *testing.T) {
	ctx := context.Background()
	lookup, svc := newTestLookup(t)

	require.NoError(t, svc.Upsert(ctx, &domain.ToolSpec{
		ToolName: "delete_volume", Version: 1, IsLatest: true, Enabled: true, Category: "destructive",
	}))
	require.NoError(t, svc.Upsert(ctx, &domain.ToolSpec{
		ToolName: "restart_service", Version: 1, IsLatest: true, Enabled: true, Category: "mutate",
	}))
	require.NoError(t, svc.Upsert(ctx, &domain.ToolSpec{
		ToolName: "list_processes", Version: 1, IsLatest: true, Enabled: true, Category: "read",
	}))

	assert.True(t, lookup.IsDestructive("delete_volume"))
	assert.False(t, lookup.IsWrite("delete_volume"))

	assert.True(t, lookup.IsWrite("restart_service"))
	assert.False(t, lookup.IsDestructive("restart_service"))

	assert.False(t, lookup.IsWrite("list_processes"))
	assert.False(t, lookup.IsDestructive("list_processes"))
}

func TestToolLookupDefaultsToSafeForUnknownTool(t *testing.T) {
	lookup, _ := newTestLookup(t)

	assert.True(t, lookup.RequiresApproval("ghost_tool"))
	assert.False(t, lookup.IsWrite("ghost_tool"))
	assert.False(t, lookup.IsDestructive("ghost_tool"))
}
