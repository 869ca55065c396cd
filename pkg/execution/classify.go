package execution

import "github.com/opsforge/execcore/pkg/domain"

// ToolLookup resolves policy/approval metadata for a step's tool so
// classification can decide mode without the engine reaching into the
// catalog directly.
type ToolLookup interface {
	RequiresApproval(toolName string) bool
	IsWrite(toolName string) bool
	IsDestructive(toolName string) bool
}

// ClassifyActionClass infers the action_class of a plan from its steps,
// per SPEC_FULL.md §4.1: any write/delete step promotes the class to
// MUTATE or DESTRUCTIVE.
func ClassifyActionClass(plan domain.Plan, tools ToolLookup) domain.ActionClass {
	class := domain.ActionRead
	for _, step := range plan.Steps {
		switch {
		case tools.IsDestructive(step.ToolName):
			return domain.ActionDestructive
		case step.Writes || tools.IsWrite(step.ToolName):
			class = domain.ActionMutate
		}
	}
	return class
}

// ClassifySLA caps the caller's preferred SLA class by policy. This module
// does not currently narrow the caller's request (no policy input is
// wired beyond the preference itself), so the preferred class is
// returned unless empty, in which case MEDIUM is the safe default.
func ClassifySLA(pref domain.SLAClass) domain.SLAClass {
	switch pref {
	case domain.SLAFast, domain.SLAMedium, domain.SLALong:
		return pref
	default:
		return domain.SLAMedium
	}
}

// ClassifyMode decides whether an execution runs IMMEDIATE, BACKGROUND, or
// APPROVAL_REQUIRED, per SPEC_FULL.md §4.1.
//
//   - APPROVAL_REQUIRED iff any step's tool requires approval, or the plan
//     is DESTRUCTIVE in a production environment.
//   - IMMEDIATE iff FAST + READ + not production-destructive.
//   - otherwise BACKGROUND.
func ClassifyMode(sla domain.SLAClass, action domain.ActionClass, plan domain.Plan, tools ToolLookup, environment string) domain.Mode {
	for _, step := range plan.Steps {
		if tools.RequiresApproval(step.ToolName) {
			return domain.ModeApprovalRequired
		}
	}
	if action == domain.ActionDestructive && environment == "production" {
		return domain.ModeApprovalRequired
	}
	if sla == domain.SLAFast && action == domain.ActionRead {
		return domain.ModeImmediate
	}
	return domain.ModeBackground
}
