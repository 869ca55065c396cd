package execution

import (
	"testing"

	"github.com/opsforge/execcore/pkg/domain"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to domain.Status
		want     bool
	}{
		{domain.StatusPending, domain.StatusQueued, true},
		{domain.StatusPending, domain.StatusRunning, true},
		{domain.StatusPending, domain.StatusApprovalPending, true},
		{domain.StatusPending, domain.StatusCancelled, true},
		{domain.StatusPending, domain.StatusSucceeded, false},
		{domain.StatusQueued, domain.StatusRunning, true},
		{domain.StatusQueued, domain.StatusCancelled, true},
		{domain.StatusQueued, domain.StatusApprovalPending, false},
		{domain.StatusApprovalPending, domain.StatusQueued, true},
		{domain.StatusApprovalPending, domain.StatusRunning, false},
		{domain.StatusRunning, domain.StatusSucceeded, true},
		{domain.StatusRunning, domain.StatusFailed, true},
		{domain.StatusRunning, domain.StatusCancelled, true},
		{domain.StatusRunning, domain.StatusTimedOut, true},
		{domain.StatusSucceeded, domain.StatusRunning, false},
		{domain.StatusFailed, domain.StatusQueued, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestValidateWalk(t *testing.T) {
	tests := []struct {
		name string
		walk []domain.Status
		want bool
	}{
		{"empty", nil, true},
		{"happy path", []domain.Status{domain.StatusPending, domain.StatusQueued, domain.StatusRunning, domain.StatusSucceeded}, true},
		{"approval path", []domain.Status{domain.StatusPending, domain.StatusApprovalPending, domain.StatusQueued, domain.StatusRunning, domain.StatusFailed}, true},
		{"does not start at pending", []domain.Status{domain.StatusRunning, domain.StatusSucceeded}, false},
		{"illegal jump", []domain.Status{domain.StatusPending, domain.StatusSucceeded}, false},
		{"terminal re-entry", []domain.Status{domain.StatusPending, domain.StatusRunning, domain.StatusSucceeded, domain.StatusRunning}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateWalk(tt.walk); got != tt.want {
				t.Errorf("ValidateWalk(%v) = %v, want %v", tt.walk, got, tt.want)
			}
		})
	}
}
