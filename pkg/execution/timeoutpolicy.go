package execution

import (
	"time"

	"github.com/opsforge/execcore/pkg/domain"
)

// DefaultTimeoutPolicies is the nine-row (sla_class, action_class) matrix
// spec.md §3 describes as immutable per release.
var DefaultTimeoutPolicies = buildDefaultTimeoutPolicies()

func buildDefaultTimeoutPolicies() map[timeoutPolicyKey]domain.TimeoutPolicy {
	rows := []domain.TimeoutPolicy{
		{SLAClass: domain.SLAFast, ActionClass: domain.ActionRead, StepTimeout: 5 * time.Second, TotalTimeout: 15 * time.Second, HeartbeatMS: 2 * time.Second, MaxOutputBytes: 64 * 1024},
		{SLAClass: domain.SLAFast, ActionClass: domain.ActionMutate, StepTimeout: 10 * time.Second, TotalTimeout: 30 * time.Second, HeartbeatMS: 2 * time.Second, MaxOutputBytes: 64 * 1024},
		{SLAClass: domain.SLAFast, ActionClass: domain.ActionDestructive, StepTimeout: 10 * time.Second, TotalTimeout: 30 * time.Second, HeartbeatMS: 2 * time.Second, MaxOutputBytes: 64 * 1024},
		{SLAClass: domain.SLAMedium, ActionClass: domain.ActionRead, StepTimeout: 30 * time.Second, TotalTimeout: 2 * time.Minute, HeartbeatMS: 5 * time.Second, MaxOutputBytes: 256 * 1024},
		{SLAClass: domain.SLAMedium, ActionClass: domain.ActionMutate, StepTimeout: 60 * time.Second, TotalTimeout: 5 * time.Minute, HeartbeatMS: 5 * time.Second, MaxOutputBytes: 256 * 1024},
		{SLAClass: domain.SLAMedium, ActionClass: domain.ActionDestructive, StepTimeout: 60 * time.Second, TotalTimeout: 5 * time.Minute, HeartbeatMS: 5 * time.Second, MaxOutputBytes: 256 * 1024},
		{SLAClass: domain.SLALong, ActionClass: domain.ActionRead, StepTimeout: 2 * time.Minute, TotalTimeout: 30 * time.Minute, HeartbeatMS: 10 * time.Second, MaxOutputBytes: 1024 * 1024},
		{SLAClass: domain.SLALong, ActionClass: domain.ActionMutate, StepTimeout: 5 * time.Minute, TotalTimeout: 60 * time.Minute, HeartbeatMS: 10 * time.Second, MaxOutputBytes: 1024 * 1024},
		{SLAClass: domain.SLALong, ActionClass: domain.ActionDestructive, StepTimeout: 5 * time.Minute, TotalTimeout: 60 * time.Minute, HeartbeatMS: 10 * time.Second, MaxOutputBytes: 1024 * 1024},
	}
	out := make(map[timeoutPolicyKey]domain.TimeoutPolicy, len(rows))
	for _, row := range rows {
		out[timeoutPolicyKey{row.SLAClass, row.ActionClass}] = row
	}
	return out
}

type timeoutPolicyKey struct {
	sla    domain.SLAClass
	action domain.ActionClass
}

// TimeoutPolicyTable implements safety.TimeoutPolicyLookup over a fixed
// in-memory matrix.
type TimeoutPolicyTable struct {
	rows map[timeoutPolicyKey]domain.TimeoutPolicy
}

func NewTimeoutPolicyTable() *TimeoutPolicyTable {
	return &TimeoutPolicyTable{rows: DefaultTimeoutPolicies}
}

func (t *TimeoutPolicyTable) PolicyFor(sla domain.SLAClass, action domain.ActionClass) (domain.TimeoutPolicy, bool) {
	row, ok := t.rows[timeoutPolicyKey{sla, action}]
	return row, ok
}
