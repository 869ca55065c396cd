// Package execution implements the Execution Engine from spec.md §4.1:
// idempotent submission, classification, the execution FSM, and the
// per-step safety-guarded dispatch loop driven by the worker pool.
package execution

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/masking"
	"github.com/opsforge/execcore/pkg/repository"
	"github.com/opsforge/execcore/pkg/safety"
	"github.com/opsforge/execcore/pkg/safety/cancellation"
	"github.com/opsforge/execcore/pkg/shared/apperr"
	"github.com/opsforge/execcore/pkg/shared/logging"
)

// DefaultDedupWindow is the idempotency window spec.md §4.1 names.
const DefaultDedupWindow = 24 * time.Hour

// SubmitRequest is the engine's Submit input.
type SubmitRequest struct {
	TenantID    string
	ActorID     string
	Plan        domain.Plan
	Target      domain.Target
	Preferences domain.Preferences
	Environment string
}

// SubmitResponse is the engine's Submit output.
type SubmitResponse struct {
	ExecutionID string
	Status      domain.Status
	Mode        domain.Mode
	Duplicate   bool
}

// Engine drives plans to terminal status.
type Engine struct {
	executions repository.ExecutionRepository
	steps      repository.StepRepository
	approvals  repository.ApprovalRepository
	events     repository.EventRepository
	queue      repository.QueueRepository

	tools    ToolLookup
	handlers StepHandler
	chain    *safety.Chain
	tokens   *TokenManager
	policies *TimeoutPolicyTable

	dedupWindow time.Duration
	log         *zap.Logger
	sanitizer   *masking.Sanitizer
}

// Deps bundles Engine's constructor dependencies.
type Deps struct {
	Executions repository.ExecutionRepository
	Steps      repository.StepRepository
	Approvals  repository.ApprovalRepository
	Events     repository.EventRepository
	Queue      repository.QueueRepository

	Tools    ToolLookup
	Handlers StepHandler
	Chain    *safety.Chain
	Tokens   *TokenManager
	Policies *TimeoutPolicyTable

	DedupWindow time.Duration
	Logger      *zap.Logger
}

func NewEngine(d Deps) *Engine {
	if d.DedupWindow <= 0 {
		d.DedupWindow = DefaultDedupWindow
	}
	if d.Tokens == nil {
		d.Tokens = NewTokenManager()
	}
	if d.Policies == nil {
		d.Policies = NewTimeoutPolicyTable()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Engine{
		executions:  d.Executions,
		steps:       d.Steps,
		approvals:   d.Approvals,
		events:      d.Events,
		queue:       d.Queue,
		tools:       d.Tools,
		handlers:    d.Handlers,
		chain:       d.Chain,
		tokens:      d.Tokens,
		policies:    d.Policies,
		dedupWindow: d.DedupWindow,
		log:         d.Logger,
		sanitizer:   masking.NewSanitizer(),
	}
}

// Submit validates, classifies, and persists a new execution, per
// spec.md §4.1.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	if len(req.Plan.Steps) == 0 {
		return SubmitResponse{}, apperr.New(apperr.KindValidation, "plan must contain at least one step")
	}
	if req.Target.AssetID == "" && req.Target.Hostname == "" {
		return SubmitResponse{}, apperr.New(apperr.KindValidation, "target must identify an asset_id or hostname")
	}

	key := IdempotencyKey(req.TenantID, req.ActorID, req.Plan, req.Target)

	if prior, err := e.executions.FindByIdempotencyKey(ctx, req.TenantID, key, e.dedupWindow); err != nil {
		return SubmitResponse{}, err
	} else if prior != nil && prior.Status == domain.StatusSucceeded {
		return SubmitResponse{ExecutionID: prior.ExecutionID, Status: prior.Status, Mode: prior.Mode, Duplicate: true}, nil
	} else if prior != nil && !prior.Status.Terminal() {
		return SubmitResponse{ExecutionID: prior.ExecutionID, Status: prior.Status, Mode: prior.Mode, Duplicate: true}, nil
	}

	actionClass := ClassifyActionClass(req.Plan, e.tools)
	slaClass := ClassifySLA(req.Preferences.SLAClass)
	mode := ClassifyMode(slaClass, actionClass, req.Plan, e.tools, req.Environment)

	exec := &domain.Execution{
		TenantID:       req.TenantID,
		ActorID:        req.ActorID,
		IdempotencyKey: key,
		SLAClass:       slaClass,
		Mode:           mode,
		ActionClass:    actionClass,
		Status:         domain.StatusPending,
		Plan:           req.Plan,
		Target:         req.Target,
	}
	if err := e.executions.Create(ctx, exec); err != nil {
		return SubmitResponse{}, err
	}

	if mode == domain.ModeApprovalRequired {
		approval := &domain.Approval{
			ExecutionID:        exec.ExecutionID,
			RequestedBy:        req.ActorID,
			RequiredPermission: safety.ProdWriteCapability,
			State:              domain.ApprovalPending,
		}
		if err := e.approvals.Create(ctx, approval); err != nil {
			return SubmitResponse{}, err
		}
		if err := e.transition(ctx, exec, domain.StatusApprovalPending); err != nil {
			return SubmitResponse{}, err
		}
		return SubmitResponse{ExecutionID: exec.ExecutionID, Status: domain.StatusApprovalPending, Mode: mode}, nil
	}

	priority := backgroundPriority
	if mode == domain.ModeImmediate {
		priority = immediatePriority
	}
	if err := e.enqueue(ctx, exec, priority); err != nil {
		return SubmitResponse{}, err
	}
	return SubmitResponse{ExecutionID: exec.ExecutionID, Status: domain.StatusQueued, Mode: mode}, nil
}

const (
	immediatePriority = 0
	backgroundPriority = 5
)

func (e *Engine) enqueue(ctx context.Context, exec *domain.Execution, priority int) error {
	if err := e.transition(ctx, exec, domain.StatusQueued); err != nil {
		return err
	}
	return e.queue.Enqueue(ctx, &domain.QueueItem{
		ExecutionID: exec.ExecutionID,
		Priority:    priority,
		MaxAttempts: domain.MaxAttemptsFor(exec.SLAClass),
		EnqueuedAt:  time.Now(),
	})
}

// Get fetches a tenant-scoped execution for the public status read API.
func (e *Engine) Get(ctx context.Context, tenantID, executionID string) (*domain.Execution, error) {
	return e.executions.Get(ctx, tenantID, executionID)
}

func (e *Engine) transition(ctx context.Context, exec *domain.Execution, to domain.Status) error {
	if !CanTransition(exec.Status, to) {
		return apperr.Newf(apperr.KindConflict, "illegal transition %s -> %s", exec.Status, to)
	}
	now := time.Now()
	if err := e.executions.UpdateStatus(ctx, exec.TenantID, exec.ExecutionID, to, now); err != nil {
		return err
	}
	exec.Status = to
	return e.events.Append(ctx, &domain.ExecutionEvent{
		ExecutionID: exec.ExecutionID,
		Kind:        domain.EventStatusChanged,
		Payload:     map[string]any{"status": string(to)},
	})
}

// Decide resolves a pending approval, moving the execution to QUEUED (on
// approval) or CANCELLED (on rejection), per spec.md §4.1.
func (e *Engine) Decide(ctx context.Context, approvalID, decidedBy string, approved bool, reason string) error {
	approval, err := e.approvals.Get(ctx, approvalID)
	if err != nil {
		return err
	}
	if approval.State != domain.ApprovalPending {
		return apperr.Newf(apperr.KindConflict, "approval %s already decided (%s)", approvalID, approval.State)
	}
	state := domain.ApprovalRejected
	if approved {
		state = domain.ApprovalApproved
	}
	if err := e.approvals.Decide(ctx, approvalID, state, decidedBy, reason, time.Now()); err != nil {
		return err
	}

	exec, err := e.executions.GetByID(ctx, approval.ExecutionID)
	if err != nil {
		return err
	}

	if err := e.events.Append(ctx, &domain.ExecutionEvent{
		ExecutionID: exec.ExecutionID,
		Kind:        domain.EventApprovalDecided,
		Payload:     map[string]any{"state": string(state), "decided_by": decidedBy},
	}); err != nil {
		return err
	}

	if !approved {
		return e.transition(ctx, exec, domain.StatusCancelled)
	}
	priority := backgroundPriority
	if exec.Mode == domain.ModeImmediate {
		priority = immediatePriority
	}
	return e.enqueue(ctx, exec, priority)
}

// Cancel signals the execution's cancellation token and, if the
// execution has not yet reached RUNNING, finalizes it to CANCELLED
// immediately; a RUNNING execution is finalized cooperatively by its
// own step loop once it observes the token.
func (e *Engine) Cancel(ctx context.Context, tenantID, executionID string, reason domain.CancellationReason) error {
	exec, err := e.executions.Get(ctx, tenantID, executionID)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		return apperr.Newf(apperr.KindConflict, "execution %s already terminal (%s)", executionID, exec.Status)
	}
	e.tokens.Cancel(executionID, reason)
	if err := e.events.Append(ctx, &domain.ExecutionEvent{
		ExecutionID: executionID,
		Kind:        domain.EventForcedCancel,
		Payload:     map[string]any{"reason": string(reason)},
	}); err != nil {
		return err
	}
	if exec.Status != domain.StatusRunning {
		return e.transition(ctx, exec, domain.StatusCancelled)
	}
	return nil
}

// RunExecution drives one leased execution's step loop to terminal
// status. It is called by the worker pool once an item is dequeued.
func (e *Engine) RunExecution(ctx context.Context, workerID string, item *domain.QueueItem) error {
	exec, err := e.executions.GetByID(ctx, item.ExecutionID)
	if err != nil {
		return err
	}
	if exec.Status == domain.StatusApprovalPending {
		return apperr.Newf(apperr.KindConflict, "execution %s still awaiting approval", exec.ExecutionID)
	}
	if exec.Status != domain.StatusRunning {
		if err := e.transition(ctx, exec, domain.StatusRunning); err != nil {
			return err
		}
	}

	policy, _ := e.policies.PolicyFor(exec.SLAClass, exec.ActionClass)
	var deadline time.Time
	if policy.TotalTimeout > 0 {
		deadline = time.Now().Add(policy.TotalTimeout)
	}
	token := e.tokens.Start(ctx, exec.ExecutionID, deadline)
	defer e.tokens.Release(exec.ExecutionID)

	steps := append([]domain.Step(nil), exec.Plan.Steps...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Ordinal < steps[j].Ordinal })

	for _, step := range steps {
		select {
		case <-token.Done():
			return e.finalizeFromCancellation(ctx, exec, token)
		default:
		}

		result, stepErr := e.executeStep(token.Context(), exec, step)
		exec.Results = append(exec.Results, result)
		if err := e.executions.Update(ctx, exec); err != nil {
			return err
		}
		if err := e.persistStep(ctx, exec, step, result); err != nil {
			return err
		}
		e.logStep(exec, step, stepErr)

		if stepErr != nil {
			if step.OnFailure == "continue" {
				continue
			}
			return e.transition(ctx, exec, domain.StatusFailed)
		}
	}

	return e.transition(ctx, exec, domain.StatusSucceeded)
}

// persistStep writes the ExecutionStep row backing one step's result,
// distinct from Execution.Results (the engine's own in-band summary):
// downstream consumers (the HTTP steps listing) read the ExecutionStep
// table rather than reaching into the execution row.
func (e *Engine) persistStep(ctx context.Context, exec *domain.Execution, step domain.Step, result domain.StepResult) error {
	maskedResult, _ := e.sanitizer.MaskValue(result.Result).(map[string]any)
	esStep := &domain.ExecutionStep{
		ExecutionID: exec.ExecutionID,
		Ordinal:     step.Ordinal,
		ToolName:    step.ToolName,
		Inputs:      step.Inputs,
		Status:      result.Status,
		Result:      maskedResult,
		Error:       e.sanitizer.Sanitize(result.Error),
		StartedAt:   result.StartedAt,
		EndedAt:     result.EndedAt,
		Attempt:     result.Attempt,
	}
	return e.steps.Create(ctx, esStep)
}

func (e *Engine) finalizeFromCancellation(ctx context.Context, exec *domain.Execution, token *cancellation.Token) error {
	if token.Reason() == domain.ReasonStepTimeout || token.Reason() == domain.ReasonExecutionTimeout {
		return e.transition(ctx, exec, domain.StatusTimedOut)
	}
	return e.transition(ctx, exec, domain.StatusCancelled)
}

func (e *Engine) executeStep(ctx context.Context, exec *domain.Execution, step domain.Step) (domain.StepResult, error) {
	startedAt := time.Now()
	sc := &safety.StepContext{
		TenantID:     exec.TenantID,
		ActorID:      exec.ActorID,
		ExecutionID:  exec.ExecutionID,
		Environment:  "",
		ToolName:     step.ToolName,
		MutexPurpose: step.MutexPurpose,
		AssetID:      exec.Target.AssetID,
		Writes:       step.Writes,
		Destructive:  exec.ActionClass == domain.ActionDestructive,
		Inputs:       step.Inputs,
	}

	var output map[string]any
	err := e.chain.Run(ctx, sc, func(ctx context.Context, sc *safety.StepContext) error {
		out, handlerErr := e.handlers.Handle(ctx, step, sc.Resolved, exec.Target)
		output = out
		return handlerErr
	})

	endedAt := time.Now()
	result := domain.StepResult{
		Ordinal:   step.Ordinal,
		ToolName:  step.ToolName,
		Result:    output,
		StartedAt: &startedAt,
		EndedAt:   &endedAt,
	}
	if err != nil {
		result.Status = domain.StatusFailed
		result.Error = err.Error()
	} else {
		result.Status = domain.StatusSucceeded
	}
	return result, err
}

func (e *Engine) logStep(exec *domain.Execution, step domain.Step, err error) {
	fields := logging.NewFields().Component("execution.Engine").Operation("executeStep").Execution(exec.ExecutionID)
	if err != nil {
		e.log.Error("step failed", fields.Err(err).With("tool_name", step.ToolName).ZapFields()...)
		return
	}
	e.log.Info("step completed", fields.With("tool_name", step.ToolName).ZapFields()...)
}
