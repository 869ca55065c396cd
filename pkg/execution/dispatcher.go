package execution

import (
	"context"

	"github.com/opsforge/execcore/pkg/domain"
)

// AutomationClient executes one resolved step against the target asset.
// Implementations live outside this module (the automation worker is an
// out-of-scope collaborator per spec.md); this interface is the seam the
// engine dispatches through.
type AutomationClient interface {
	Execute(ctx context.Context, toolName, pattern string, inputs map[string]any, target domain.Target) (map[string]any, error)
}

// StepHandler drives one step to completion given its resolved,
// secret-substituted inputs. Handlers are looked up from a small
// table keyed by pattern so new step kinds can be added without
// touching the engine's step loop.
type StepHandler interface {
	Handle(ctx context.Context, step domain.Step, resolvedInputs map[string]any, target domain.Target) (map[string]any, error)
}

// AutomationStepHandler is the default StepHandler: it forwards directly
// to an AutomationClient.
type AutomationStepHandler struct {
	client AutomationClient
}

func NewAutomationStepHandler(client AutomationClient) *AutomationStepHandler {
	return &AutomationStepHandler{client: client}
}

func (h *AutomationStepHandler) Handle(ctx context.Context, step domain.Step, resolvedInputs map[string]any, target domain.Target) (map[string]any, error) {
	return h.client.Execute(ctx, step.ToolName, step.Pattern, resolvedInputs, target)
}

// HandlerTable dispatches by pattern, falling back to a default handler
// for patterns with no dedicated entry.
type HandlerTable struct {
	byPattern map[string]StepHandler
	fallback  StepHandler
}

func NewHandlerTable(fallback StepHandler) *HandlerTable {
	return &HandlerTable{byPattern: make(map[string]StepHandler), fallback: fallback}
}

// Register installs a handler for a specific pattern, overriding the
// fallback for that pattern only.
func (t *HandlerTable) Register(pattern string, handler StepHandler) {
	t.byPattern[pattern] = handler
}

func (t *HandlerTable) Handle(ctx context.Context, step domain.Step, resolvedInputs map[string]any, target domain.Target) (map[string]any, error) {
	if handler, ok := t.byPattern[step.Pattern]; ok {
		return handler.Handle(ctx, step, resolvedInputs, target)
	}
	return t.fallback.Handle(ctx, step, resolvedInputs, target)
}
