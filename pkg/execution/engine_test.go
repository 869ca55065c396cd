package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/repository/memstore"
	"github.com/opsforge/execcore/pkg/safety"
)

type fakeToolLookup struct {
	approval, write, destructive map[string]bool
}

func newFakeToolLookup() *fakeToolLookup {
	return &fakeToolLookup{approval: map[string]bool{}, write: map[string]bool{}, destructive: map[string]bool{}}
}
func (f *fakeToolLookup) RequiresApproval(tool string) bool { return f.approval[tool] }
func (f *fakeToolLookup) IsWrite(tool string) bool          { return f.write[tool] }
func (f *fakeToolLookup) IsDestructive(tool string) bool    { return f.destructive[tool] }

type fakeAutomationClient struct {
	calls int
	fail  bool
}

func (f *fakeAutomationClient) Execute(ctx context.Context, toolName, pattern string, inputs map[string]any, target domain.Target) (map[string]any, error) {
	f.calls++
	if f.fail {
		return nil, assertErr{"boom"}
	}
	return map[string]any{"ok": true}, nil
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func newTestEngine(t *testing.T, tools *fakeToolLookup, automation *fakeAutomationClient) (*Engine, *memstore.ExecutionStore, *memstore.QueueStore) {
	t.Helper()
	execStore := memstore.NewExecutionStore()
	stepStore := memstore.NewStepStore()
	approvalStore := memstore.NewApprovalStore()
	eventStore := memstore.NewEventStore()
	queueStore := memstore.NewQueueStore()

	handlers := NewHandlerTable(NewAutomationStepHandler(automation))
	chain := safety.NewChain() // no guards: exercises the engine's own loop in isolation

	engine := NewEngine(Deps{
		Executions: execStore,
		Steps:      stepStore,
		Approvals:  approvalStore,
		Events:     eventStore,
		Queue:      queueStore,
		Tools:      tools,
		Handlers:   handlers,
		Chain:      chain,
	})
	return engine, execStore, queueStore
}

func testPlan() domain.Plan {
	return domain.Plan{Steps: []domain.Step{{Ordinal: 0, ToolName: "restart_service", Pattern: "default"}}}
}

func TestEngineSubmitBackgroundQueuesExecution(t *testing.T) {
	ctx := context.Background()
	tools := newFakeToolLookup()
	engine, _, queueStore := newTestEngine(t, tools, &fakeAutomationClient{})

	resp, err := engine.Submit(ctx, SubmitRequest{
		TenantID: "t", ActorID: "a", Plan: testPlan(), Target: domain.Target{AssetID: "asset-1"},
		Preferences: domain.Preferences{SLAClass: domain.SLAMedium},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, resp.Status)
	assert.False(t, resp.Duplicate)

	item, err := queueStore.GetByExecution(ctx, resp.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, resp.ExecutionID, item.ExecutionID)
}

func TestEngineSubmitDedupesWithinWindow(t *testing.T) {
	ctx := context.Background()
	tools := newFakeToolLookup()
	engine, _, _ := newTestEngine(t, tools, &fakeAutomationClient{})

	req := SubmitRequest{TenantID: "t", ActorID: "a", Plan: testPlan(), Target: domain.Target{AssetID: "asset-1"}}
	first, err := engine.Submit(ctx, req)
	require.NoError(t, err)

	second, err := engine.Submit(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ExecutionID, second.ExecutionID)
}

func TestEngineSubmitRequiresApprovalForDestructiveProduction(t *testing.T) {
	ctx := context.Background()
	tools := newFakeToolLookup()
	tools.destructive["delete_volume"] = true
	engine, _, _ := newTestEngine(t, tools, &fakeAutomationClient{})

	plan := domain.Plan{Steps: []domain.Step{{Ordinal: 0, ToolName: "delete_volume", Writes: true}}}
	resp, err := engine.Submit(ctx, SubmitRequest{
		TenantID: "t", ActorID: "a", Plan: plan, Target: domain.Target{AssetID: "asset-1"}, Environment: "production",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApprovalPending, resp.Status)
	assert.Equal(t, domain.ModeApprovalRequired, resp.Mode)
}

func TestEngineDecideApprovedQueuesExecution(t *testing.T) {
	ctx := context.Background()
	tools := newFakeToolLookup()
	tools.destructive["delete_volume"] = true
	engine, _, queueStore := newTestEngine(t, tools, &fakeAutomationClient{})

	plan := domain.Plan{Steps: []domain.Step{{Ordinal: 0, ToolName: "delete_volume", Writes: true}}}
	resp, err := engine.Submit(ctx, SubmitRequest{
		TenantID: "t", ActorID: "a", Plan: plan, Target: domain.Target{AssetID: "asset-1"}, Environment: "production",
	})
	require.NoError(t, err)

	approval, err := engine.approvals.GetByExecution(ctx, resp.ExecutionID)
	require.NoError(t, err)

	require.NoError(t, engine.Decide(ctx, approval.ApprovalID, "approver-1", true, "looks fine"))

	item, err := queueStore.GetByExecution(ctx, resp.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, resp.ExecutionID, item.ExecutionID)
}

func TestEngineDecideRejectedCancelsExecution(t *testing.T) {
	ctx := context.Background()
	tools := newFakeToolLookup()
	tools.destructive["delete_volume"] = true
	engine, execStore, _ := newTestEngine(t, tools, &fakeAutomationClient{})

	plan := domain.Plan{Steps: []domain.Step{{Ordinal: 0, ToolName: "delete_volume", Writes: true}}}
	resp, err := engine.Submit(ctx, SubmitRequest{
		TenantID: "t", ActorID: "a", Plan: plan, Target: domain.Target{AssetID: "asset-1"}, Environment: "production",
	})
	require.NoError(t, err)

	approval, err := engine.approvals.GetByExecution(ctx, resp.ExecutionID)
	require.NoError(t, err)
	require.NoError(t, engine.Decide(ctx, approval.ApprovalID, "approver-1", false, "too risky"))

	exec, err := execStore.Get(ctx, "t", resp.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, exec.Status)
}

func TestEngineRunExecutionSucceedsAllSteps(t *testing.T) {
	ctx := context.Background()
	tools := newFakeToolLookup()
	automation := &fakeAutomationClient{}
	engine, execStore, queueStore := newTestEngine(t, tools, automation)

	resp, err := engine.Submit(ctx, SubmitRequest{
		TenantID: "t", ActorID: "a", Plan: testPlan(), Target: domain.Target{AssetID: "asset-1"},
	})
	require.NoError(t, err)

	item, err := queueStore.GetByExecution(ctx, resp.ExecutionID)
	require.NoError(t, err)

	require.NoError(t, engine.RunExecution(ctx, "worker-1", item))
	assert.Equal(t, 1, automation.calls)

	exec, err := execStore.Get(ctx, "t", resp.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, exec.Status)
	require.Len(t, exec.Results, 1)
	assert.Equal(t, domain.StatusSucceeded, exec.Results[0].Status)
}

func TestEngineRunExecutionFailsOnStepError(t *testing.T) {
	ctx := context.Background()
	tools := newFakeToolLookup()
	automation := &fakeAutomationClient{fail: true}
	engine, execStore, queueStore := newTestEngine(t, tools, automation)

	resp, err := engine.Submit(ctx, SubmitRequest{
		TenantID: "t", ActorID: "a", Plan: testPlan(), Target: domain.Target{AssetID: "asset-1"},
	})
	require.NoError(t, err)

	item, err := queueStore.GetByExecution(ctx, resp.ExecutionID)
	require.NoError(t, err)

	require.NoError(t, engine.RunExecution(ctx, "worker-1", item))

	exec, err := execStore.Get(ctx, "t", resp.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, exec.Status)
}

func TestEngineCancelBeforeRunningIsImmediate(t *testing.T) {
	ctx := context.Background()
	tools := newFakeToolLookup()
	engine, execStore, _ := newTestEngine(t, tools, &fakeAutomationClient{})

	resp, err := engine.Submit(ctx, SubmitRequest{
		TenantID: "t", ActorID: "a", Plan: testPlan(), Target: domain.Target{AssetID: "asset-1"},
	})
	require.NoError(t, err)

	require.NoError(t, engine.Cancel(ctx, "t", resp.ExecutionID, domain.ReasonUser))

	exec, err := execStore.Get(ctx, "t", resp.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, exec.Status)
}
