package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/queue"
	"github.com/opsforge/execcore/pkg/shared/logging"
)

// worker owns one dequeue loop. It polls the queue for an item, leases
// it, runs a heartbeat loop at leaseTTL/2 alongside the runner, and
// renews the lease until the runner returns.
type worker struct {
	id     int
	cfg    Config
	mgr    *queue.Manager
	runner Runner
	log    *zap.Logger

	lastHeartbeat atomic.Int64 // unix nanos
	busyFlag      atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newWorker(id int, cfg Config, mgr *queue.Manager, runner Runner, log *zap.Logger) *worker {
	w := &worker{id: id, cfg: cfg, mgr: mgr, runner: runner, log: log, stopCh: make(chan struct{})}
	w.lastHeartbeat.Store(time.Now().UnixNano())
	return w
}

func (w *worker) name() string { return fmt.Sprintf("worker-%d", w.id) }

func (w *worker) stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *worker) busy() bool { return w.busyFlag.Load() }

func (w *worker) isStale(maxSilence time.Duration) bool {
	last := time.Unix(0, w.lastHeartbeat.Load())
	return time.Since(last) > maxSilence
}

func (w *worker) touch() {
	w.lastHeartbeat.Store(time.Now().UnixNano())
}

// run is the dequeue loop: poll, lease, drive to completion, repeat
// until ctx is cancelled or stop() is called.
func (w *worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.touch()
			item, err := w.mgr.Dequeue(ctx, w.name())
			if err != nil {
				w.log.Warn("dequeue failed", logging.NewFields().Component("workerpool.worker").Err(err).ZapFields()...)
				continue
			}
			if item == nil {
				continue
			}
			w.process(ctx, item)
		}
	}
}

// process drives one leased item: spins a heartbeat loop that renews
// the lease at leaseTTL/2, runs the item through the Runner, and on
// completion either completes or fails it depending on the outcome.
func (w *worker) process(ctx context.Context, item *domain.QueueItem) {
	w.busyFlag.Store(true)
	defer w.busyFlag.Store(false)

	hbCtx, cancelHB := context.WithCancel(ctx)
	defer cancelHB()
	go w.heartbeat(hbCtx, item.ItemID)

	err := w.runner.RunExecution(ctx, w.name(), item)
	if err != nil {
		w.log.Error("execution run failed",
			logging.NewFields().Component("workerpool.worker").Execution(item.ExecutionID).Err(err).ZapFields()...)
		if _, failErr := w.mgr.Fail(ctx, item.ItemID, err.Error()); failErr != nil {
			w.log.Error("failed to record queue failure", logging.NewFields().Component("workerpool.worker").Err(failErr).ZapFields()...)
		}
		return
	}
	if completeErr := w.mgr.Complete(ctx, item.ItemID); completeErr != nil {
		w.log.Error("failed to complete queue item", logging.NewFields().Component("workerpool.worker").Err(completeErr).ZapFields()...)
	}
}

func (w *worker) heartbeat(ctx context.Context, itemID string) {
	interval := w.leaseHalf()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.touch()
			if err := w.mgr.RenewLease(ctx, itemID, w.name()); err != nil {
				w.log.Warn("lease renewal failed", logging.NewFields().Component("workerpool.worker").Err(err).ZapFields()...)
				return
			}
		}
	}
}

func (w *worker) leaseHalf() time.Duration {
	half := queue.DefaultLeaseDuration / 2
	if half <= 0 {
		half = 5 * time.Second
	}
	return half
}
