package execution

import "github.com/opsforge/execcore/pkg/domain"

// legalTransitions is the FSM from SPEC_FULL.md §4.1 / spec.md §4.1.
var legalTransitions = map[domain.Status]map[domain.Status]bool{
	domain.StatusPending: {
		domain.StatusQueued:          true,
		domain.StatusRunning:         true,
		domain.StatusApprovalPending: true,
		domain.StatusCancelled:       true,
	},
	domain.StatusQueued: {
		domain.StatusRunning:   true,
		domain.StatusCancelled: true,
	},
	domain.StatusApprovalPending: {
		domain.StatusQueued:    true,
		domain.StatusCancelled: true,
	},
	domain.StatusRunning: {
		domain.StatusSucceeded: true,
		domain.StatusFailed:    true,
		domain.StatusCancelled: true,
		domain.StatusTimedOut:  true,
	},
}

// CanTransition reports whether from -> to is a legal FSM edge.
func CanTransition(from, to domain.Status) bool {
	if from == to {
		return false
	}
	edges, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// ValidateWalk reports whether a sequence of observed statuses is a valid
// walk on the legal-transition graph, starting from PENDING. Used by the
// FSM-safety property test.
func ValidateWalk(statuses []domain.Status) bool {
	if len(statuses) == 0 {
		return true
	}
	if statuses[0] != domain.StatusPending {
		return false
	}
	for i := 1; i < len(statuses); i++ {
		if !CanTransition(statuses[i-1], statuses[i]) {
			return false
		}
	}
	return true
}
