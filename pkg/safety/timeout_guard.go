package safety

import (
	"context"
	"time"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/safety/cancellation"
)

// TimeoutPolicyLookup resolves the (sla_class, action_class) timeout row
// a step is governed by.
type TimeoutPolicyLookup interface {
	PolicyFor(sla domain.SLAClass, action domain.ActionClass) (domain.TimeoutPolicy, bool)
}

// TimeoutGuard looks up the TimeoutPolicy row for the (sla, action) pair
// fixed at construction and triggers the execution's cancellation.Token with
// STEP_TIMEOUT if the step budget elapses, per spec.md §4.2.6. Budgets
// tick against wall time regardless of retries: each step gets a fresh
// per-step budget, but the execution-level deadline (set once by the
// engine when the token is created) is never extended here.
type TimeoutGuard struct {
	policies TimeoutPolicyLookup
	tokens   TokenLookup
	sla      domain.SLAClass
	action   domain.ActionClass
}

func NewTimeoutGuard(policies TimeoutPolicyLookup, tokens TokenLookup, sla domain.SLAClass, action domain.ActionClass) *TimeoutGuard {
	return &TimeoutGuard{policies: policies, tokens: tokens, sla: sla, action: action}
}

func (g *TimeoutGuard) Name() string { return "timeout" }

func (g *TimeoutGuard) Before(ctx context.Context, sc *StepContext) error {
	policy, ok := g.policies.PolicyFor(g.sla, g.action)
	if !ok {
		return nil
	}
	token, ok := g.tokens.TokenFor(sc.ExecutionID)
	if !ok {
		return nil
	}
	go watchStepBudget(token, policy.StepTimeout)
	return nil
}

// watchStepBudget fires STEP_TIMEOUT if the step budget elapses before
// the token is otherwise cancelled/completed (its Done() channel closing
// either way stops the goroutine).
func watchStepBudget(token *cancellation.Token, budget time.Duration) {
	if budget <= 0 {
		return
	}
	timer := time.NewTimer(budget)
	defer timer.Stop()
	select {
	case <-timer.C:
		token.Cancel(domain.ReasonStepTimeout)
	case <-token.Done():
	}
}

func (g *TimeoutGuard) After(ctx context.Context, sc *StepContext, stepErr error) error { return nil }
