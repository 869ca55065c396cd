package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/execution"
	"github.com/opsforge/execcore/pkg/observability"
	"github.com/opsforge/execcore/pkg/repository/memstore"
	"github.com/opsforge/execcore/pkg/safety"
)

type fakeToolLookup struct{}

func (fakeToolLookup) RequiresApproval(string) bool { return false }
func (fakeToolLookup) IsWrite(string) bool          { return false }
func (fakeToolLookup) IsDestructive(string) bool    { return false }

type fakeAutomationClient struct{}

func (fakeAutomationClient) Execute(ctx context.Context, toolName, pattern string, inputs map[string]any, target domain.Target) (map[string]any, error) {
	return map[string]any{"ok": true}, nil
}

func newTestRouter(t *testing.T) (*chi.Mux, *memstore.EventStore) {
	t.Helper()
	events := memstore.NewEventStore()
	engine := execution.NewEngine(execution.Deps{
		Executions: memstore.NewExecutionStore(),
		Steps:      memstore.NewStepStore(),
		Approvals:  memstore.NewApprovalStore(),
		Events:     events,
		Queue:      memstore.NewQueueStore(),
		Tools:      fakeToolLookup{},
		Handlers:   execution.NewHandlerTable(execution.NewAutomationStepHandler(fakeAutomationClient{})),
		Chain:      safety.NewChain(),
	})
	h := NewExecutionHandler(engine, observability.NewEventFeed(events))
	r := chi.NewRouter()
	h.Mount(r)
	return r, events
}

func TestCreateExecutionReturns201AndQueuesExecution(t *testing.T) {
	r, _ := newTestRouter(t)
	body := `{"plan":{"steps":[{"Ordinal":0,"ToolName":"restart_service","Pattern":"default"}]},"target":{"AssetID":"asset-1"},"actor":"alice"}`
	req := httptest.NewRequest(http.MethodPost, "/executions", bytes.NewBufferString(body))
	req.Header.Set("X-Tenant-ID", "tenant-1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), "execution_id")
	assert.Contains(t, rr.Body.String(), "QUEUED")
}

func TestCreateExecutionRejectsMissingActor(t *testing.T) {
	r, _ := newTestRouter(t)
	body := `{"plan":{"steps":[{"Ordinal":0,"ToolName":"restart_service","Pattern":"default"}]},"target":{"AssetID":"asset-1"}}`
	req := httptest.NewRequest(http.MethodPost, "/executions", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "VALIDATION")
}

func TestGetExecutionReturns404ForUnknownID(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/executions/does-not-exist", nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDecideRejectsInvalidDecisionValue(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/approvals/some-id/decide", bytes.NewBufferString(`{"decision":"MAYBE"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
