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

func TestServiceGetToolByNameCachesUntilTTLExpires(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewCatalogStore()
	svc, err := NewService(store, 16, 20*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, svc.Upsert(ctx, &domain.ToolSpec{ToolName: "restart_service", Version: 1, IsLatest: true, Enabled: true}))

	spec, err := svc.GetToolByName(ctx, "restart_service")
	require.NoError(t, err)
	assert.Equal(t, 1, spec.Version)

	time.Sleep(30 * time.Millisecond)
	spec, err = svc.GetToolByName(ctx, "restart_service")
	require.NoError(t, err)
	assert.Equal(t, 1, spec.Version)
}

func TestServiceUpsertInvalidatesCachedVersion(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewCatalogStore()
	svc, err := NewService(store, 16, time.Minute)
	require.NoError(t, err)

	require.NoError(t, svc.Upsert(ctx, &domain.ToolSpec{ToolName: "restart_service", Version: 1, IsLatest: true, Enabled: true}))
	_, err = svc.GetToolByName(ctx, "restart_service")
	require.NoError(t, err)

	require.NoError(t, svc.Upsert(ctx, &domain.ToolSpec{ToolName: "restart_service", Version: 2, IsLatest: true, Enabled: true}))
	spec, err := svc.GetToolByName(ctx, "restart_service")
	require.NoError(t, err)
	assert.Equal(t, 2, spec.Version)
}

func TestServiceRollbackRepointsLatest(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewCatalogStore()
	svc, err := NewService(store, 16, time.Minute)
	require.NoError(t, err)

	require.NoError(t, svc.Upsert(ctx, &domain.ToolSpec{ToolName: "restart_service", Version: 1, IsLatest: true, Enabled: true}))
	require.NoError(t, svc.Upsert(ctx, &domain.ToolSpec{ToolName: "restart_service", Version: 2, IsLatest: true, Enabled: true}))

	require.NoError(t, svc.Rollback(ctx, "restart_service", 1))

	spec, err := svc.GetToolByName(ctx, "restart_service")
	require.NoError(t, err)
	assert.Equal(t, 1, spec.Version)
}

func TestServiceGetToolsByCapabilityFiltersPlatformAndCapability(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewCatalogStore()
	svc, err := NewService(store, 16, time.Minute)
	require.NoError(t, err)

	require.NoError(t, svc.Upsert(ctx, &domain.ToolSpec{
		ToolName: "restart_service", Version: 1, IsLatest: true, Enabled: true,
		Platform: domain.PlatformLinux, Capabilities: []string{"restart"},
	}))
	require.NoError(t, svc.Upsert(ctx, &domain.ToolSpec{
		ToolName: "reboot_host", Version: 1, IsLatest: true, Enabled: true,
		Platform: domain.PlatformWindows, Capabilities: []string{"restart"},
	}))

	tools, err := svc.GetToolsByCapability(ctx, domain.PlatformLinux, "restart")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "restart_service", tools[0].ToolName)
}
