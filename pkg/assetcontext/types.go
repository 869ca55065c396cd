// Package assetcontext implements the Asset-Context Resolver from
// spec.md §4.5: it turns a loose reference ("web-prod-01") into
// enriched, tenant-scoped asset context, behind a circuit breaker and a
// bounded LRU+TTL cache.
package assetcontext

import "github.com/opsforge/execcore/pkg/domain"

// LookupMode selects how Query.Value is interpreted.
type LookupMode string

const (
	LookupByAssetID LookupMode = "asset_id"
	LookupByHostname LookupMode = "hostname"
	LookupByName     LookupMode = "name"
	LookupByIP       LookupMode = "ip"
	LookupByFilter   LookupMode = "filter"
)

// DefaultProjection is the field set used in the cache key when the
// caller doesn't request a subset. Records are not trimmed to it.
var DefaultProjection = []string{"id", "name", "hostname", "ip_address", "environment", "status", "updated_at"}

// Filter narrows a LookupByFilter query.
type Filter struct {
	OSType      string
	ServiceType string
	Environment string
	IsActive    *bool
}

// Query is one resolution request.
type Query struct {
	TenantID   string
	Mode       LookupMode
	Value      string
	Filter     Filter
	Projection []string
}

// Shape classifies the disambiguation contract's four response shapes.
type Shape string

const (
	ShapeNone       Shape = "none"
	ShapeSingle     Shape = "single"
	ShapeTable      Shape = "table"
	ShapeAggregate  Shape = "aggregate"
)

// Result is the resolver's disambiguation-shaped response.
type Result struct {
	Shape       Shape
	Assets      []domain.AssetRecord // populated for single/table
	Guidance    string                // populated for none
	Aggregates  map[string]int        // environment -> count, for aggregate
	NarrowHints []string              // populated for aggregate
}

// ConnectionProfileQuery looks up how to reach a host.
type ConnectionProfileQuery struct {
	TenantID string
	Host     string
}
