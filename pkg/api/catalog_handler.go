package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opsforge/execcore/pkg/catalog"
	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// CatalogHandler serves the internal Tool Catalog HTTP surface.
type CatalogHandler struct {
	catalog *catalog.Service
}

func NewCatalogHandler(c *catalog.Service) *CatalogHandler {
	return &CatalogHandler{catalog: c}
}

// Mount registers this handler's routes on r, including /health and the
// Prometheus /metrics scrape endpoint cmd/catalog hosts alongside it.
func (h *CatalogHandler) Mount(r chi.Router) {
	r.Get("/tools", h.list)
	r.Get("/tools/{name}", h.get)
	r.Put("/tools/{name}", h.upsert)
	r.Post("/tools/reload", h.reload)
	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())
}

func (h *CatalogHandler) list(w http.ResponseWriter, r *http.Request) {
	if capability := r.URL.Query().Get("capability"); capability != "" {
		platform := domain.Platform(r.URL.Query().Get("platform"))
		tools, err := h.catalog.GetToolsByCapability(r.Context(), platform, capability)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tools)
		return
	}
	tools, err := h.catalog.ListTools(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tools)
}

func (h *CatalogHandler) get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tool, err := h.catalog.GetToolByName(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tool)
}

func (h *CatalogHandler) upsert(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var spec domain.ToolSpec
	if err := decodeJSON(r, &spec); err != nil {
		writeError(w, err)
		return
	}
	if spec.ToolName == "" {
		spec.ToolName = name
	}
	if spec.ToolName != name {
		writeError(w, apperr.Newf(apperr.KindValidation, "body tool_name %q does not match path %q", spec.ToolName, name))
		return
	}
	if err := h.catalog.Upsert(r.Context(), &spec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

func (h *CatalogHandler) reload(w http.ResponseWriter, r *http.Request) {
	h.catalog.Reload()
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
