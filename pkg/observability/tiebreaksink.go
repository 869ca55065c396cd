package observability

import (
	"context"

	"go.uber.org/zap"

	"github.com/opsforge/execcore/pkg/domain"
)

// TieBreakEventSink publishes TIE_BREAK_FALLBACK onto the execution's
// event feed whenever Stage B's LLM tie-breaker errors or times out,
// satisfying selector.FallbackSink.
type TieBreakEventSink struct {
	feed *EventFeed
	log  *zap.Logger
}

func NewTieBreakEventSink(feed *EventFeed, log *zap.Logger) *TieBreakEventSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &TieBreakEventSink{feed: feed, log: log}
}

func (s *TieBreakEventSink) RecordFallback(ctx context.Context, executionID, decisionIntent, reason string) {
	payload := map[string]any{
		"decision_intent": decisionIntent,
		"reason":          reason,
	}
	if err := s.feed.Publish(ctx, executionID, domain.EventTieBreakFallback, 0, payload); err != nil {
		s.log.Warn("failed to publish tie-break fallback event", zap.String("execution_id", executionID), zap.Error(err))
	}
}
