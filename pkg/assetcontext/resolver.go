package assetcontext

import (
	"context"
	"sort"
	"time"

	"github.com/sony/gobreaker"

	"github.com/opsforge/execcore/pkg/domain"
)

// BreakerConfig controls the circuit breaker's trip/recovery timing.
type BreakerConfig struct {
	ConsecutiveFailures uint32
	OpenDuration        time.Duration
}

// DefaultBreakerConfig matches spec.md §4.5: open after 3 consecutive
// failures, half-open after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{ConsecutiveFailures: 3, OpenDuration: 30 * time.Second}
}

// Resolver is the Asset-Context Resolver's public API.
type Resolver struct {
	client  InventoryClient
	cache   *resultCache
	breaker *gobreaker.CircuitBreaker[any]
}

// NewResolver builds a Resolver wrapping client with the given cache and
// breaker tuning (zero values take the package defaults).
func NewResolver(client InventoryClient, cacheCapacity int, cacheTTL time.Duration, breakerCfg BreakerConfig) (*Resolver, error) {
	cache, err := newResultCache(cacheCapacity, cacheTTL)
	if err != nil {
		return nil, err
	}
	if breakerCfg.ConsecutiveFailures == 0 {
		breakerCfg = DefaultBreakerConfig()
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "asset-inventory",
		MaxRequests: 1,
		Timeout:     breakerCfg.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerCfg.ConsecutiveFailures
		},
	})
	return &Resolver{client: client, cache: cache, breaker: cb}, nil
}

// Resolve runs one lookup through the cache and circuit breaker,
// shaping the response per the disambiguation contract.
func (r *Resolver) Resolve(ctx context.Context, q Query) (Result, error) {
	key := cacheKey(q)
	if cached, ok := r.cache.get(key); ok {
		return cached, nil
	}

	assets, err := r.fetch(ctx, q)
	if err != nil {
		return Result{}, err
	}
	for _, a := range assets {
		if verr := validateSchema(a); verr != nil {
			return Result{}, verr
		}
	}

	result := shape(assets)
	r.cache.put(key, result)
	return result, nil
}

func (r *Resolver) fetch(ctx context.Context, q Query) ([]domain.AssetRecord, error) {
	out, err := r.breaker.Execute(func() (any, error) {
		if q.Mode == LookupByAssetID {
			asset, ferr := r.client.FindByAssetID(ctx, q.TenantID, q.Value)
			if ferr != nil {
				return nil, ferr
			}
			if asset == nil {
				return []domain.AssetRecord{}, nil
			}
			return []domain.AssetRecord{*asset}, nil
		}
		return r.client.Search(ctx, q.TenantID, q.Mode, q.Value, q.Filter)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errCircuitOpen()
		}
		return nil, err
	}
	return out.([]domain.AssetRecord), nil
}

// ConnectionProfile looks up how to reach host, through the same
// breaker as Resolve (but not the result cache — connection profiles
// are looked up far less often and change more frequently).
func (r *Resolver) ConnectionProfile(ctx context.Context, q ConnectionProfileQuery) (*domain.ConnectionProfile, error) {
	out, err := r.breaker.Execute(func() (any, error) {
		return r.client.ConnectionProfile(ctx, q.TenantID, q.Host)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errCircuitOpen()
		}
		return nil, err
	}
	return out.(*domain.ConnectionProfile), nil
}

// InvalidateCache drops every cached lookup, e.g. after an inventory
// webhook signals a bulk asset change.
func (r *Resolver) InvalidateCache() {
	r.cache.purge()
}

// shape applies the disambiguation contract from spec.md §4.5.
func shape(assets []domain.AssetRecord) Result {
	switch {
	case len(assets) == 0:
		return Result{Shape: ShapeNone, Guidance: "no matching assets found; try a more specific hostname or asset id"}
	case len(assets) == 1:
		return Result{Shape: ShapeSingle, Assets: assets}
	case len(assets) <= 5:
		ranked := append([]domain.AssetRecord(nil), assets...)
		sort.Slice(ranked, func(i, j int) bool {
			if !ranked[i].UpdatedAt.Equal(ranked[j].UpdatedAt) {
				return ranked[i].UpdatedAt.After(ranked[j].UpdatedAt)
			}
			if ranked[i].Environment != ranked[j].Environment {
				return ranked[i].Environment < ranked[j].Environment
			}
			return ranked[i].Hostname < ranked[j].Hostname
		})
		return Result{Shape: ShapeTable, Assets: ranked}
	default:
		aggregates := make(map[string]int)
		for _, a := range assets {
			aggregates[a.Environment]++
		}
		return Result{
			Shape:      ShapeAggregate,
			Aggregates: aggregates,
			NarrowHints: []string{
				"narrow by environment", "narrow by service_type", "narrow by hostname prefix",
			},
		}
	}
}

// Field projection: the resolver always returns full AssetRecord values,
// and pkg/api serializes them whole. Query.Projection (defaulting to
// DefaultProjection) only takes part in the cache key; no layer trims a
// record to the projected fields.
