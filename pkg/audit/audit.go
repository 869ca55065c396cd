// Package audit is a thin wrapper around repository.AuditRepository
// giving its caller (the secrets broker) one consistent entry point for
// the append-only audit log spec.md §4.6 mandates, instead of
// constructing repository.AuditEntry values by hand.
package audit

import (
	"context"
	"time"

	"github.com/opsforge/execcore/pkg/repository"
)

// Log is the audit trail's public API.
type Log struct {
	repo repository.AuditRepository
}

func NewLog(repo repository.AuditRepository) *Log {
	return &Log{repo: repo}
}

// Record appends one audit entry, timestamped with the current time.
func (l *Log) Record(ctx context.Context, actor, host, purpose, action, outcome string) error {
	return l.repo.Append(ctx, repository.AuditEntry{
		Actor: actor, Host: host, Purpose: purpose, Action: action, Outcome: outcome, Timestamp: time.Now(),
	})
}
