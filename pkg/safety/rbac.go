package safety

import (
	"context"

	"github.com/opsforge/execcore/pkg/shared/apperr"
)

// ProdWriteCapability is the first-class capability spec.md §4.2.3
// requires for any production write: a valid approval id is
// additionally required, enforced by RBACGuard.Before.
const ProdWriteCapability = "prod.write"

// PolicyProvider resolves whether (tenant, actor) holds a capability.
// Deliberately narrow so a future OPA-backed provider can be swapped in
// without the guard itself changing.
type PolicyProvider interface {
	HasCapability(ctx context.Context, tenantID, actorID, capability string) (bool, error)
}

// StaticPolicyProvider is a role->capabilities map supplied to its
// constructor. It is not read from internal/config; the shipped binaries
// construct it with nil maps, so every capability check is denied.
type StaticPolicyProvider struct {
	// RoleCapabilities maps a role name to the capabilities it grants.
	RoleCapabilities map[string][]string
	// ActorRoles maps "tenantID:actorID" to the roles held.
	ActorRoles map[string][]string
}

func NewStaticPolicyProvider(roleCapabilities map[string][]string, actorRoles map[string][]string) *StaticPolicyProvider {
	return &StaticPolicyProvider{RoleCapabilities: roleCapabilities, ActorRoles: actorRoles}
}

func (p *StaticPolicyProvider) HasCapability(ctx context.Context, tenantID, actorID, capability string) (bool, error) {
	for _, role := range p.ActorRoles[tenantID+":"+actorID] {
		for _, cap := range p.RoleCapabilities[role] {
			if cap == capability {
				return true, nil
			}
		}
	}
	return false, nil
}

// RBACGuard is deny-by-default: a step is allowed only if the actor
// holds the required capability for the step's action, and production
// writes additionally require a recorded approval.
type RBACGuard struct {
	policy          PolicyProvider
	events          RBACEventSink
	requiredCapFunc func(sc *StepContext) string
}

// RBACEventSink records allow/deny decisions for audit, per spec.md
// §4.2.3 ("all allow/deny decisions are written as events").
type RBACEventSink interface {
	RecordDecision(ctx context.Context, executionID, actorID, capability string, allowed bool, reason string)
}

// NewRBACGuard builds an RBACGuard. requiredCapFunc lets callers compute
// the capability the step needs (defaults to ProdWriteCapability for
// production writes, "" — no check — otherwise) when nil.
func NewRBACGuard(policy PolicyProvider, events RBACEventSink, requiredCapFunc func(sc *StepContext) string) *RBACGuard {
	if requiredCapFunc == nil {
		requiredCapFunc = defaultRequiredCapability
	}
	return &RBACGuard{policy: policy, events: events, requiredCapFunc: requiredCapFunc}
}

func defaultRequiredCapability(sc *StepContext) string {
	if sc.Writes && sc.Environment == "production" {
		return ProdWriteCapability
	}
	return ""
}

func (g *RBACGuard) Name() string { return "rbac" }

func (g *RBACGuard) Before(ctx context.Context, sc *StepContext) error {
	capability := g.requiredCapFunc(sc)
	if capability == "" {
		return nil
	}
	allowed, err := g.policy.HasCapability(ctx, sc.TenantID, sc.ActorID, capability)
	if err != nil {
		return err
	}
	if !allowed {
		g.recordDecision(ctx, sc, capability, false, "actor lacks required capability")
		return apperr.Newf(apperr.KindPolicy, "actor %s lacks capability %q", sc.ActorID, capability)
	}
	if capability == ProdWriteCapability && sc.ApprovalID == "" {
		g.recordDecision(ctx, sc, capability, false, "production write requires an approval id")
		return apperr.New(apperr.KindPolicy, "production write requires a valid approval id")
	}
	g.recordDecision(ctx, sc, capability, true, "")
	return nil
}

func (g *RBACGuard) recordDecision(ctx context.Context, sc *StepContext, capability string, allowed bool, reason string) {
	if g.events == nil {
		return
	}
	g.events.RecordDecision(ctx, sc.ExecutionID, sc.ActorID, capability, allowed, reason)
}

func (g *RBACGuard) After(ctx context.Context, sc *StepContext, stepErr error) error { return nil }
