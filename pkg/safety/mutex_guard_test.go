package safety

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMutexManager is a minimal in-memory mutex.Manager stand-in that
// counts Heartbeat calls, so tests can assert the guard's background
// renewal loop actually fires rather than just acquiring once.
type fakeMutexManager struct {
	acquireErr error
	heartbeats atomic.Int64
	releaseErr error
	released   atomic.Bool
}

func (m *fakeMutexManager) Acquire(ctx context.Context, keys []string, holderID string, ttl time.Duration, deadline time.Time) ([]string, error) {
	if m.acquireErr != nil {
		return nil, m.acquireErr
	}
	return keys, nil
}

func (m *fakeMutexManager) Release(ctx context.Context, keys []string, holderID string) error {
	m.released.Store(true)
	return m.releaseErr
}

func (m *fakeMutexManager) Heartbeat(ctx context.Context, keys []string, holderID string, ttl time.Duration) error {
	m.heartbeats.Add(1)
	return nil
}

func TestMutexGuardHeartbeatsWhileLockIsHeld(t *testing.T) {
	mgr := &fakeMutexManager{}
	guard := NewMutexGuard(mgr, 20*time.Millisecond, time.Second, nil)
	sc := &StepContext{ExecutionID: "exec-1", AssetID: "asset-1", Writes: true}

	require.NoError(t, guard.Before(context.Background(), sc))
	assert.NotNil(t, sc.mutexHeartbeatCancel, "Before must start the heartbeat loop")

	// ttl/2 == 10ms; give the loop several intervals to fire.
	time.Sleep(80 * time.Millisecond)
	require.NoError(t, guard.After(context.Background(), sc, nil))

	assert.GreaterOrEqual(t, mgr.heartbeats.Load(), int64(2), "heartbeat loop should have renewed the lease at least twice")
	assert.True(t, mgr.released.Load())
	assert.Nil(t, sc.mutexHeartbeatCancel, "After must clear the cancel func")
}

func TestMutexGuardStopsHeartbeatingOnceAfterRuns(t *testing.T) {
	mgr := &fakeMutexManager{}
	guard := NewMutexGuard(mgr, 10*time.Millisecond, time.Second, nil)
	sc := &StepContext{ExecutionID: "exec-1", AssetID: "asset-1", Writes: true}

	require.NoError(t, guard.Before(context.Background(), sc))
	require.NoError(t, guard.After(context.Background(), sc, nil))

	countAtStop := mgr.heartbeats.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, countAtStop, mgr.heartbeats.Load(), "no further heartbeats once After has cancelled the loop")
}

func TestMutexGuardSkipsNonWritingSteps(t *testing.T) {
	mgr := &fakeMutexManager{}
	guard := NewMutexGuard(mgr, time.Minute, time.Second, nil)
	sc := &StepContext{ExecutionID: "exec-1", AssetID: "asset-1", Writes: false}

	require.NoError(t, guard.Before(context.Background(), sc))
	assert.Nil(t, sc.mutexHeartbeatCancel)
	assert.Equal(t, int64(0), mgr.heartbeats.Load())
}
