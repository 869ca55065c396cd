package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/execcore/pkg/repository/memstore"
)

func TestManagerEnqueueDequeueCompleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewQueueStore()
	mgr := NewManager(store, time.Minute, nil)

	require.NoError(t, mgr.Enqueue(ctx, "exec-1", 1, 3, time.Time{}))

	item, err := mgr.Dequeue(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "exec-1", item.ExecutionID)

	require.NoError(t, mgr.Complete(ctx, item.ItemID))

	again, err := mgr.Dequeue(ctx, "worker-1")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestManagerFailMovesToDeadLetterAtMaxAttempts(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewQueueStore()
	mgr := NewManager(store, time.Minute, func(int) time.Duration { return time.Millisecond })

	require.NoError(t, mgr.Enqueue(ctx, "exec-1", 1, 1, time.Time{}))
	item, err := mgr.Dequeue(ctx, "worker-1")
	require.NoError(t, err)

	moved, err := mgr.Fail(ctx, item.ItemID, "timeout")
	require.NoError(t, err)
	assert.True(t, moved)
}
