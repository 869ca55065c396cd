// Package safety composes the seven ordered guards that wrap every
// execution step: idempotency, approval, mutex, secrets, RBAC, timeout,
// cancellation, with log-masking applied to every sink regardless of
// which guard is active. Guards are values, not a decorator hierarchy:
// each implements Guard and is composed into a Chain built once at
// startup and shared (read-only) across workers.
package safety

import "context"

// StepContext carries everything a guard needs to evaluate a step,
// threaded through Before/After without any guard holding its own
// per-execution state.
type StepContext struct {
	TenantID    string
	ActorID     string
	ExecutionID string
	Environment string

	ToolName     string
	MutexPurpose string
	AssetID      string
	Writes       bool
	Destructive  bool

	ApprovalID string

	Inputs map[string]any

	// Resolved is populated by SecretsGuard.Before with the
	// secret-resolved copy of Inputs; step handlers read from here
	// rather than Inputs directly.
	Resolved map[string]any

	// acquired mutex keys this step's MutexGuard.Before took, released by
	// MutexGuard.After regardless of step outcome.
	acquiredLocks []string

	// mutexHeartbeatCancel stops the lease-renewal goroutine MutexGuard.Before
	// started; MutexGuard.After cancels it before releasing the locks.
	mutexHeartbeatCancel context.CancelFunc
}

// Guard is one composable safety check. Before runs prior to step
// dispatch and may reject the step outright; After runs for every guard
// whose Before succeeded, whether a later guard rejected the step or the
// step itself failed, so cleanup guards (mutex release, secret
// zeroization) still fire. A guard whose Before rejected the step gets no
// After call.
type Guard interface {
	Name() string
	Before(ctx context.Context, sc *StepContext) error
	After(ctx context.Context, sc *StepContext, stepErr error) error
}

// Chain runs guards in the fixed order they were constructed with. The
// order is an invariant of the safety layer, not a runtime choice:
// idempotency, approval, mutex, secrets, RBAC, timeout, cancellation.
type Chain struct {
	guards []Guard
}

// NewChain builds a Chain from guards in the order they must run.
func NewChain(guards ...Guard) *Chain {
	return &Chain{guards: guards}
}

// Run executes Before on every guard in order, stopping at the first
// error; it then runs After on every guard whose Before already ran, in
// reverse order, regardless of outcome, collecting the first non-nil
// After error only if step itself succeeded (an After failure must never
// mask a real step error).
func (c *Chain) Run(ctx context.Context, sc *StepContext, step func(context.Context, *StepContext) error) error {
	ran := make([]Guard, 0, len(c.guards))
	var beforeErr error
	for _, g := range c.guards {
		if err := g.Before(ctx, sc); err != nil {
			beforeErr = err
			break
		}
		ran = append(ran, g)
	}

	var stepErr error
	if beforeErr == nil {
		stepErr = step(ctx, sc)
	} else {
		stepErr = beforeErr
	}

	var afterErr error
	for i := len(ran) - 1; i >= 0; i-- {
		if err := ran[i].After(ctx, sc, stepErr); err != nil && afterErr == nil {
			afterErr = err
		}
	}

	if stepErr != nil {
		return stepErr
	}
	return afterErr
}
