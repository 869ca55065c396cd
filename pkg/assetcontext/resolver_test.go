package assetcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

type fakeInventory struct {
	byID    map[string]*domain.AssetRecord
	search  []domain.AssetRecord
	calls   int
	failing bool
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{byID: map[string]*domain.AssetRecord{}}
}

func (f *fakeInventory) FindByAssetID(ctx context.Context, tenantID, assetID string) (*domain.AssetRecord, error) {
	f.calls++
	if f.failing {
		return nil, assertErr("inventory down")
	}
	return f.byID[assetID], nil
}

func (f *fakeInventory) Search(ctx context.Context, tenantID string, mode LookupMode, value string, filter Filter) ([]domain.AssetRecord, error) {
	f.calls++
	if f.failing {
		return nil, assertErr("inventory down")
	}
	return f.search, nil
}

func (f *fakeInventory) ConnectionProfile(ctx context.Context, tenantID, host string) (*domain.ConnectionProfile, error) {
	f.calls++
	if f.failing {
		return nil, assertErr("inventory down")
	}
	return &domain.ConnectionProfile{Host: host, Port: 22, Protocol: "ssh"}, nil
}

func TestResolveSingleAssetByID(t *testing.T) {
	inv := newFakeInventory()
	inv.byID["asset-1"] = &domain.AssetRecord{AssetID: "asset-1", Name: "web-1", Hostname: "web-prod-01"}

	r, err := NewResolver(inv, 16, time.Minute, DefaultBreakerConfig())
	require.NoError(t, err)

	result, err := r.Resolve(context.Background(), Query{TenantID: "t", Mode: LookupByAssetID, Value: "asset-1"})
	require.NoError(t, err)
	assert.Equal(t, ShapeSingle, result.Shape)
	require.Len(t, result.Assets, 1)
	assert.Equal(t, "web-prod-01", result.Assets[0].Hostname)
}

func TestResolveCachesSecondLookup(t *testing.T) {
	inv := newFakeInventory()
	inv.byID["asset-1"] = &domain.AssetRecord{AssetID: "asset-1", Name: "web-1", Hostname: "web-prod-01"}

	r, err := NewResolver(inv, 16, time.Minute, DefaultBreakerConfig())
	require.NoError(t, err)

	q := Query{TenantID: "t", Mode: LookupByAssetID, Value: "asset-1"}
	_, err = r.Resolve(context.Background(), q)
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.calls)
}

func TestResolveNoResultsReturnsGuidance(t *testing.T) {
	inv := newFakeInventory()
	r, err := NewResolver(inv, 16, time.Minute, DefaultBreakerConfig())
	require.NoError(t, err)

	result, err := r.Resolve(context.Background(), Query{TenantID: "t", Mode: LookupByHostname, Value: "missing"})
	require.NoError(t, err)
	assert.Equal(t, ShapeNone, result.Shape)
	assert.NotEmpty(t, result.Guidance)
}

func TestResolveOverFiveResultsAggregatesByEnvironment(t *testing.T) {
	inv := newFakeInventory()
	for i := 0; i < 6; i++ {
		inv.search = append(inv.search, domain.AssetRecord{
			AssetID: "a", Name: "n", Hostname: "h", Environment: "prod",
		})
	}
	r, err := NewResolver(inv, 16, time.Minute, DefaultBreakerConfig())
	require.NoError(t, err)

	result, err := r.Resolve(context.Background(), Query{TenantID: "t", Mode: LookupByFilter, Filter: Filter{Environment: "prod"}})
	require.NoError(t, err)
	assert.Equal(t, ShapeAggregate, result.Shape)
	assert.Equal(t, 6, result.Aggregates["prod"])
	assert.NotEmpty(t, result.NarrowHints)
}

func TestResolveOpensCircuitAfterConsecutiveFailures(t *testing.T) {
	inv := newFakeInventory()
	inv.failing = true

	r, err := NewResolver(inv, 16, time.Minute, BreakerConfig{ConsecutiveFailures: 2, OpenDuration: time.Minute})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := r.Resolve(context.Background(), Query{TenantID: "t", Mode: LookupByAssetID, Value: "x"})
		assert.Error(t, err)
	}

	_, err = r.Resolve(context.Background(), Query{TenantID: "t", Mode: LookupByAssetID, Value: "y"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindCircuitOpen, apperr.KindOf(err))
	assert.Equal(t, 2, inv.calls)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
