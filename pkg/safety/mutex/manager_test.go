package mutex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/execcore/pkg/repository/memstore"
)

func TestSortKeysIsDeterministicRegardlessOfInputOrder(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortKeys([]string{"c", "a", "b"}))
	assert.Equal(t, []string{"a", "b", "c"}, SortKeys([]string{"b", "c", "a"}))
}

func TestPostgresManagerAcquireReleaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewLockStore()
	mgr := NewPostgresManager(store)

	acquired, err := mgr.Acquire(ctx, []string{"asset-2", "asset-1"}, "holder-a", time.Minute, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{"asset-1", "asset-2"}, acquired, "acquired in sorted order")

	require.NoError(t, mgr.Release(ctx, acquired, "holder-a"))

	// After release, a different holder can acquire the same keys.
	acquired2, err := mgr.Acquire(ctx, []string{"asset-1", "asset-2"}, "holder-b", time.Minute, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, acquired2, 2)
}

func TestPostgresManagerAcquireFailsPartiallyReleasesWhatItTook(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewLockStore()
	mgr := NewPostgresManager(store)

	// holder-a takes asset-2 first, so when mgr (holder-b) tries
	// [asset-1, asset-2] in sorted order it acquires asset-1 then fails
	// on asset-2, and must release asset-1 before returning.
	ok, err := store.TryAcquire(ctx, "asset-2", "holder-a", time.Minute, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = mgr.Acquire(ctx, []string{"asset-2", "asset-1"}, "holder-b", time.Minute, time.Now().Add(50*time.Millisecond))
	require.Error(t, err)

	// asset-1 must have been released again since the overall acquire failed.
	acquired, err := mgr.Acquire(ctx, []string{"asset-1"}, "holder-c", time.Minute, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{"asset-1"}, acquired)
}
