package assetcontext

import (
	"context"

	"github.com/opsforge/execcore/pkg/domain"
)

// InventoryClient is the outbound dependency the resolver wraps in a
// circuit breaker and cache — an HTTP client against the asset
// inventory service in production, a fake in tests.
type InventoryClient interface {
	FindByAssetID(ctx context.Context, tenantID, assetID string) (*domain.AssetRecord, error)
	Search(ctx context.Context, tenantID string, mode LookupMode, value string, filter Filter) ([]domain.AssetRecord, error)
	ConnectionProfile(ctx context.Context, tenantID, host string) (*domain.ConnectionProfile, error)
}

// validateSchema checks the fields every caller of this resolver relies
// on; a record missing any of these fails fast rather than propagating
// a partially-populated asset downstream.
func validateSchema(a domain.AssetRecord) error {
	if a.AssetID == "" {
		return errMissingField("AssetID")
	}
	if a.Name == "" {
		return errMissingField("Name")
	}
	if a.Hostname == "" {
		return errMissingField("Hostname")
	}
	return nil
}
