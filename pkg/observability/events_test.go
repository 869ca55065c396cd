package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/repository/memstore"
)

func TestEventFeedPublishAndSincePaginates(t *testing.T) {
	ctx := context.Background()
	feed := NewEventFeed(memstore.NewEventStore())

	require.NoError(t, feed.Publish(ctx, "exec-1", domain.EventStatusChanged, 10, map[string]any{"to": "RUNNING"}))
	require.NoError(t, feed.Publish(ctx, "exec-1", domain.EventStepCompleted, 50, map[string]any{"step": 0}))

	events, cursor, err := feed.Since(ctx, "exec-1", "", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventStatusChanged, events[0].Kind)
	assert.NotEmpty(t, cursor)

	rest, _, err := feed.Since(ctx, "exec-1", cursor, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, domain.EventStepCompleted, rest[0].Kind)
}
