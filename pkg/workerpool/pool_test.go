package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/queue"
	"github.com/opsforge/execcore/pkg/repository/memstore"
)

type countingRunner struct {
	calls atomic.Int32
	fail  bool
}

func (r *countingRunner) RunExecution(ctx context.Context, workerID string, item *domain.QueueItem) error {
	r.calls.Add(1)
	if r.fail {
		return assertErr{"boom"}
	}
	return nil
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func TestPoolProcessesQueuedItemAndCompletesIt(t *testing.T) {
	store := memstore.NewQueueStore()
	mgr := queue.NewManager(store, 50*time.Millisecond, nil)
	runner := &countingRunner{}

	cfg := DefaultConfig()
	cfg.WorkersMin = 1
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ReaperInterval = 20 * time.Millisecond
	cfg.DrainWindow = 100 * time.Millisecond

	pool := NewPool(cfg, mgr, runner, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, mgr.Enqueue(context.Background(), "exec-1", 1, 3, time.Time{}))

	done := make(chan error, 1)
	go func() { done <- pool.Start(ctx) }()

	<-ctx.Done()
	<-done

	assert.GreaterOrEqual(t, runner.calls.Load(), int32(1))
	_, err := store.GetByExecution(context.Background(), "exec-1")
	assert.Error(t, err)
}

func TestPoolRetriesFailedExecutionUntilDeadLetter(t *testing.T) {
	store := memstore.NewQueueStore()
	mgr := queue.NewManager(store, 50*time.Millisecond, func(int) time.Duration { return time.Millisecond })
	runner := &countingRunner{fail: true}

	cfg := DefaultConfig()
	cfg.WorkersMin = 1
	cfg.PollInterval = 5 * time.Millisecond
	cfg.ReaperInterval = 20 * time.Millisecond
	cfg.DrainWindow = 50 * time.Millisecond

	pool := NewPool(cfg, mgr, runner, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, mgr.Enqueue(context.Background(), "exec-2", 1, 1, time.Time{}))

	done := make(chan error, 1)
	go func() { done <- pool.Start(ctx) }()

	<-ctx.Done()
	<-done

	assert.GreaterOrEqual(t, runner.calls.Load(), int32(1))
}
