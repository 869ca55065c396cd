package safety

import (
	"context"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/safety/cancellation"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// CancellationGuard rejects a step whose execution-level token has
// already fired before the step even starts, so a step never begins
// against an execution that is mid-cancellation.
type CancellationGuard struct {
	tokens TokenLookup
}

// TokenLookup resolves the live cancellation.Token for an execution.
// Implemented by the engine, which owns token lifetime.
type TokenLookup interface {
	TokenFor(executionID string) (*cancellation.Token, bool)
}

func NewCancellationGuard(tokens TokenLookup) *CancellationGuard {
	return &CancellationGuard{tokens: tokens}
}

func (g *CancellationGuard) Name() string { return "cancellation" }

func (g *CancellationGuard) Before(ctx context.Context, sc *StepContext) error {
	token, ok := g.tokens.TokenFor(sc.ExecutionID)
	if !ok {
		return nil
	}
	select {
	case <-token.Done():
		reason := token.Reason()
		if reason == "" {
			reason = domain.ReasonUser
		}
		return apperr.Newf(apperr.KindConflict, "execution %s already cancelled (%s)", sc.ExecutionID, reason)
	default:
		return nil
	}
}

func (g *CancellationGuard) After(ctx context.Context, sc *StepContext, stepErr error) error { return nil }
