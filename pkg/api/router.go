// Package api builds the chi routers for the four binaries in
// cmd/engine, cmd/catalog, and cmd/secrets (cmd/worker has no HTTP
// surface), rendering every handler error through the shared
// VALIDATION|POLICY|NOT_FOUND|... envelope at the HTTP boundary only.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/opsforge/execcore/pkg/observability"
)

func baseRouter(log *zap.Logger, m *observability.Metrics) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(log))
	if m != nil {
		r.Use(HTTPMetrics(m))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Content-Type", "X-Tenant-ID", "X-Actor-ID", "X-Environment", "X-Internal-Key"},
	}))
	return r
}

// NewEngineRouter builds cmd/engine's router: the public Execution API
// and the Stage B explain endpoint, plus the read-only Asset façade
// (there is no separate asset-context binary in the process topology).
func NewEngineRouter(log *zap.Logger, m *observability.Metrics, execH *ExecutionHandler, selH *SelectorHandler, assetH *AssetHandler) *chi.Mux {
	r := baseRouter(log, m)
	execH.Mount(r)
	selH.Mount(r)
	assetH.Mount(r)
	return r
}

// NewCatalogRouter builds cmd/catalog's router.
func NewCatalogRouter(log *zap.Logger, m *observability.Metrics, catH *CatalogHandler) *chi.Mux {
	r := baseRouter(log, m)
	catH.Mount(r)
	return r
}

// NewSecretsRouter builds cmd/secrets's router. It carries no CORS
// exposure beyond loopback/service-mesh traffic in practice, but shares
// the same base middleware stack for consistent logging and metrics.
func NewSecretsRouter(log *zap.Logger, m *observability.Metrics, secH *SecretsHandler) *chi.Mux {
	r := baseRouter(log, m)
	secH.Mount(r)
	return r
}
