package safety

import (
	"context"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/repository"
	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// IdempotencyGuard rejects a step dispatch if the execution it belongs to
// has already reached a terminal status — the engine's own idempotent
// lookup at submission time (pkg/execution.IdempotencyKey) prevents
// duplicate executions from being created in the first place; this guard
// is the second line of defense against a stale worker re-dispatching a
// step after the execution was already finished by a faster lease
// holder.
type IdempotencyGuard struct {
	executions repository.ExecutionRepository
}

func NewIdempotencyGuard(executions repository.ExecutionRepository) *IdempotencyGuard {
	return &IdempotencyGuard{executions: executions}
}

func (g *IdempotencyGuard) Name() string { return "idempotency" }

func (g *IdempotencyGuard) Before(ctx context.Context, sc *StepContext) error {
	exec, err := g.executions.Get(ctx, sc.TenantID, sc.ExecutionID)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		return apperr.Newf(apperr.KindConflict, "execution %s already reached terminal status %s", sc.ExecutionID, exec.Status)
	}
	return nil
}

func (g *IdempotencyGuard) After(ctx context.Context, sc *StepContext, stepErr error) error { return nil }

// ApprovalGuard rejects a step that carries an ApprovalID unless that
// approval is APPROVED. A step with an empty ApprovalID passes without a
// lookup; the guard does not consult the execution's mode.
type ApprovalGuard struct {
	approvals repository.ApprovalRepository
}

func NewApprovalGuard(approvals repository.ApprovalRepository) *ApprovalGuard {
	return &ApprovalGuard{approvals: approvals}
}

func (g *ApprovalGuard) Name() string { return "approval" }

func (g *ApprovalGuard) Before(ctx context.Context, sc *StepContext) error {
	if sc.ApprovalID == "" {
		return nil
	}
	approval, err := g.approvals.Get(ctx, sc.ApprovalID)
	if err != nil {
		return err
	}
	if approval.State != domain.ApprovalApproved {
		return apperr.Newf(apperr.KindPolicy, "execution %s is not approved (state=%s)", sc.ExecutionID, approval.State)
	}
	return nil
}

func (g *ApprovalGuard) After(ctx context.Context, sc *StepContext, stepErr error) error { return nil }
