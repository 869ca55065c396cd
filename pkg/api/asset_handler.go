package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opsforge/execcore/pkg/assetcontext"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// AssetHandler serves the public, read-only Asset-Context façade.
type AssetHandler struct {
	resolver *assetcontext.Resolver
}

func NewAssetHandler(resolver *assetcontext.Resolver) *AssetHandler {
	return &AssetHandler{resolver: resolver}
}

// Mount registers this handler's routes on r.
func (h *AssetHandler) Mount(r chi.Router) {
	r.Get("/assets/count", h.count)
	r.Get("/assets/search", h.search)
	r.Get("/assets/connection-profile", h.connectionProfile)
}

func (h *AssetHandler) queryFromFilters(r *http.Request) assetcontext.Query {
	q := r.URL.Query()
	var isActive *bool
	if v := q.Get("is_active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			isActive = &b
		}
	}
	return assetcontext.Query{
		TenantID: tenantID(r),
		Mode:     assetcontext.LookupByFilter,
		Filter: assetcontext.Filter{
			OSType:      q.Get("os_type"),
			ServiceType: q.Get("service_type"),
			Environment: q.Get("environment"),
			IsActive:    isActive,
		},
	}
}

func (h *AssetHandler) count(w http.ResponseWriter, r *http.Request) {
	result, err := h.resolver.Resolve(r.Context(), h.queryFromFilters(r))
	if err != nil {
		writeError(w, err)
		return
	}
	switch result.Shape {
	case assetcontext.ShapeAggregate:
		writeJSON(w, http.StatusOK, map[string]any{"count": sumCounts(result.Aggregates), "by_environment": result.Aggregates})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"count": len(result.Assets)})
	}
}

func (h *AssetHandler) search(w http.ResponseWriter, r *http.Request) {
	q := h.queryFromFilters(r)
	if v := r.URL.Query().Get("hostname"); v != "" {
		q.Mode, q.Value = assetcontext.LookupByHostname, v
	} else if v := r.URL.Query().Get("name"); v != "" {
		q.Mode, q.Value = assetcontext.LookupByName, v
	} else if v := r.URL.Query().Get("ip"); v != "" {
		q.Mode, q.Value = assetcontext.LookupByIP, v
	} else if v := r.URL.Query().Get("asset_id"); v != "" {
		q.Mode, q.Value = assetcontext.LookupByAssetID, v
	}

	result, err := h.resolver.Resolve(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AssetHandler) connectionProfile(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	if host == "" {
		writeError(w, apperr.New(apperr.KindValidation, "host is required"))
		return
	}
	profile, err := h.resolver.ConnectionProfile(r.Context(), assetcontext.ConnectionProfileQuery{
		TenantID: tenantID(r),
		Host:     host,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func sumCounts(byEnv map[string]int) int {
	total := 0
	for _, n := range byEnv {
		total += n
	}
	return total
}
