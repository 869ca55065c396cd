package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opsforge/execcore/pkg/catalog"
	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/selector"
	"github.com/opsforge/execcore/pkg/selector/tiebreak"
)

// SelectorHandler serves the read-only Stage B explain endpoint.
type SelectorHandler struct {
	catalog    *catalog.Service
	tiebreaker tiebreak.Client
	llmTimeout time.Duration
	events     selector.FallbackSink
}

// NewSelectorHandler builds a handler. llmTimeout bounds every
// tiebreaker.Break call (SELECTOR_LLM_TIMEOUT_MS); events, if non-nil,
// is notified on every tie-break fallback.
func NewSelectorHandler(c *catalog.Service, tb tiebreak.Client, llmTimeout time.Duration, events selector.FallbackSink) *SelectorHandler {
	return &SelectorHandler{catalog: c, tiebreaker: tb, llmTimeout: llmTimeout, events: events}
}

// Mount registers this handler's routes on r.
func (h *SelectorHandler) Mount(r chi.Router) {
	r.Post("/selector/explain", h.Explain)
}

type explainRequest struct {
	Mode                 selector.Mode      `json:"mode" validate:"required,oneof=FAST ACCURATE THOROUGH CHEAP SIMPLE BALANCED"`
	Environment          string             `json:"environment"`
	Platform             domain.Platform    `json:"platform"`
	RequiredCapabilities []string           `json:"required_capabilities" validate:"required,min=1"`
	AvailablePermissions []string           `json:"available_permissions"`
	Vars                 map[string]float64 `json:"vars"`
	MaxCostOverride      float64            `json:"max_cost_override,omitempty"`
	DecisionIntent       string             `json:"decision_intent,omitempty"`
	ExecutionID          string             `json:"execution_id,omitempty"`
}

func (h *SelectorHandler) Explain(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	candidates, err := h.candidatesFor(r.Context(), req.Platform, req.RequiredCapabilities)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := selector.Select(r.Context(), selector.Request{
		Mode:            req.Mode,
		Environment:     req.Environment,
		AvailablePerms:  req.AvailablePermissions,
		Vars:            req.Vars,
		MaxCostOverride: req.MaxCostOverride,
		ExecutionID:     req.ExecutionID,
	}, candidates, req.RequiredCapabilities, h.tiebreaker, req.DecisionIntent, h.llmTimeout, h.events)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// candidatesFor merges every pattern of every tool advertising any one
// of requiredCapabilities into the candidate set Select filters down.
func (h *SelectorHandler) candidatesFor(ctx context.Context, platform domain.Platform, requiredCapabilities []string) ([]selector.Candidate, error) {
	seen := map[string]bool{}
	var candidates []selector.Candidate
	for _, capability := range requiredCapabilities {
		tools, err := h.catalog.GetToolsByCapability(ctx, platform, capability)
		if err != nil {
			return nil, err
		}
		for _, tool := range tools {
			if seen[tool.ToolName] {
				continue
			}
			seen[tool.ToolName] = true
			for _, pattern := range tool.Patterns {
				candidates = append(candidates, selector.Candidate{Tool: tool, Pattern: pattern})
			}
		}
	}
	return candidates, nil
}
