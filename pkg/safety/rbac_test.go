package safety

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEventSink struct {
	decisions []string
}

func (s *recordingEventSink) RecordDecision(ctx context.Context, executionID, actorID, capability string, allowed bool, reason string) {
	verdict := "deny"
	if allowed {
		verdict = "allow"
	}
	s.decisions = append(s.decisions, actorID+":"+capability+":"+verdict)
}

func TestRBACGuardAllowsNonProductionWritesWithoutCapabilityCheck(t *testing.T) {
	policy := NewStaticPolicyProvider(nil, nil)
	guard := NewRBACGuard(policy, nil, nil)

	err := guard.Before(context.Background(), &StepContext{Writes: true, Environment: "staging"})
	assert.NoError(t, err)
}

func TestRBACGuardDeniesProductionWriteWithoutCapability(t *testing.T) {
	policy := NewStaticPolicyProvider(nil, nil)
	sink := &recordingEventSink{}
	guard := NewRBACGuard(policy, sink, nil)

	err := guard.Before(context.Background(), &StepContext{
		TenantID: "t", ActorID: "actor-1", Writes: true, Environment: "production",
	})
	require.Error(t, err)
	assert.Contains(t, sink.decisions, "actor-1:prod.write:deny")
}

func TestRBACGuardRequiresApprovalIDEvenWithCapability(t *testing.T) {
	policy := NewStaticPolicyProvider(
		map[string][]string{"operator": {ProdWriteCapability}},
		map[string][]string{"t:actor-1": {"operator"}},
	)
	sink := &recordingEventSink{}
	guard := NewRBACGuard(policy, sink, nil)

	err := guard.Before(context.Background(), &StepContext{
		TenantID: "t", ActorID: "actor-1", Writes: true, Environment: "production",
	})
	require.Error(t, err, "capability alone is not enough without an approval id")

	err = guard.Before(context.Background(), &StepContext{
		TenantID: "t", ActorID: "actor-1", Writes: true, Environment: "production", ApprovalID: "appr-1",
	})
	require.NoError(t, err)
	assert.Contains(t, sink.decisions, "actor-1:prod.write:allow")
}
