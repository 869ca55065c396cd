package observability

import (
	"context"

	"go.uber.org/zap"

	"github.com/opsforge/execcore/pkg/domain"
)

// RBACEventSink publishes every RBAC allow/deny decision onto the
// execution's event feed, satisfying safety.RBACEventSink.
type RBACEventSink struct {
	feed *EventFeed
	log  *zap.Logger
}

func NewRBACEventSink(feed *EventFeed, log *zap.Logger) *RBACEventSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &RBACEventSink{feed: feed, log: log}
}

func (s *RBACEventSink) RecordDecision(ctx context.Context, executionID, actorID, capability string, allowed bool, reason string) {
	payload := map[string]any{
		"actor_id":   actorID,
		"capability": capability,
		"allowed":    allowed,
	}
	if reason != "" {
		payload["reason"] = reason
	}
	if err := s.feed.Publish(ctx, executionID, domain.EventRBACDecision, 0, payload); err != nil {
		s.log.Warn("failed to publish rbac decision event", zap.String("execution_id", executionID), zap.Error(err))
	}
}
