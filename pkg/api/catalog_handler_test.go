package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/execcore/pkg/catalog"
	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/repository/memstore"
)

func newTestCatalogRouter(t *testing.T) (*chi.Mux, *catalog.Service) {
	t.Helper()
	svc, err := catalog.NewService(memstore.NewCatalogStore(), 16, 500*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, svc.Upsert(context.Background(), &domain.ToolSpec{
		ToolName: "restart_service", Version: 1, IsLatest: true, Enabled: true,
		Platform: domain.PlatformLinux, Capabilities: []string{"restart"},
	}))
	r := chi.NewRouter()
	NewCatalogHandler(svc).Mount(r)
	return r, svc
}

func TestCatalogGetToolByNameReturns200(t *testing.T) {
	r, _ := newTestCatalogRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/tools/restart_service", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "restart_service")
}

func TestCatalogGetUnknownToolReturns404(t *testing.T) {
	r, _ := newTestCatalogRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/tools/missing", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCatalogUpsertRejectsToolNameMismatch(t *testing.T) {
	r, _ := newTestCatalogRouter(t)
	body := `{"ToolName":"other_tool","Version":1}`
	req := httptest.NewRequest(http.MethodPut, "/tools/restart_service", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCatalogHealthReturnsOK(t *testing.T) {
	r, _ := newTestCatalogRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}
