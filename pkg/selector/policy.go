package selector

import (
	"fmt"

	"github.com/opsforge/execcore/pkg/domain"
)

// applyPolicy is the hard, non-bypassable filter from spec.md §4.4 step
// 5: it marks (never silently drops) candidates violating max_cost,
// production_safe, required_permissions, or allowed_environments. The
// LLM tie-breaker never sees a rejected candidate.
func applyPolicy(req Request, sc *ScoredCandidate) {
	policy := sc.Candidate.Tool.Policy

	maxCost := policy.MaxCost
	if req.MaxCostOverride > 0 {
		maxCost = req.MaxCostOverride
	}
	if maxCost > 0 && sc.Raw.Cost > maxCost {
		sc.Rejected = fmt.Sprintf("cost %.2f exceeds max_cost %.2f", sc.Raw.Cost, maxCost)
		return
	}

	if req.Environment == "production" && !policy.ProductionSafe {
		sc.Rejected = "not marked production_safe"
		return
	}

	for _, required := range policy.RequiredPermissions {
		if !contains(req.AvailablePerms, required) {
			sc.Rejected = fmt.Sprintf("missing required permission %q", required)
			return
		}
	}

	if len(policy.AllowedEnvironments) > 0 && req.Environment != "" && !contains(policy.AllowedEnvironments, req.Environment) {
		sc.Rejected = fmt.Sprintf("environment %q not in allowed_environments", req.Environment)
		return
	}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// hasCapabilityIntersection implements step 1: candidate enumeration by
// set intersection between required capabilities and enabled tools for
// the platform/environment (platform/enablement is already applied by
// catalog.Service.GetToolsByCapability; this re-checks capability names
// explicitly so Select never depends on the catalog having filtered
// correctly).
func hasCapabilityIntersection(tool domain.ToolSpec, requiredCapabilities []string) bool {
	for _, cap := range requiredCapabilities {
		if tool.HasCapability(cap) {
			return true
		}
	}
	return len(requiredCapabilities) == 0
}
