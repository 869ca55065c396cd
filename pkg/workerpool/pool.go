// Package workerpool implements the dynamic worker pool from spec.md
// §4.3: each worker owns a dequeue loop, a heartbeat loop that renews
// the lease of whatever item it's currently processing, and a
// cancellation-aware step driver delegated to execution.Engine. A
// supervisor goroutine restarts workers that stop heartbeating and
// scales the pool between WORKERS_MIN and WORKERS_MAX on queue depth.
package workerpool

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/queue"
	"github.com/opsforge/execcore/pkg/shared/logging"
)

// Runner drives one leased queue item to completion. execution.Engine
// satisfies this.
type Runner interface {
	RunExecution(ctx context.Context, workerID string, item *domain.QueueItem) error
}

// Config bounds the pool's size and polling/scaling cadence.
type Config struct {
	WorkersMin          int
	WorkersMax          int
	PollInterval        time.Duration
	ReaperInterval       time.Duration
	DrainWindow         time.Duration
	ScaleUpQueueDepth    int // add a worker when observed depth exceeds this
	ScaleDownIdleRounds  int // retire a worker after this many empty-poll rounds
}

// DefaultConfig matches the conservative defaults spec.md implies:
// small pools, frequent polling, a bounded drain window.
func DefaultConfig() Config {
	return Config{
		WorkersMin:          2,
		WorkersMax:          10,
		PollInterval:        500 * time.Millisecond,
		ReaperInterval:       10 * time.Second,
		DrainWindow:         30 * time.Second,
		ScaleUpQueueDepth:    20,
		ScaleDownIdleRounds:  10,
	}
}

// Pool owns a dynamic set of workers pulling from the queue.
type Pool struct {
	cfg     Config
	mgr     *queue.Manager
	runner  Runner
	log     *zap.Logger

	mu      sync.Mutex
	workers map[int]*worker
	nextID  int
}

func NewPool(cfg Config, mgr *queue.Manager, runner Runner, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{cfg: cfg, mgr: mgr, runner: runner, log: log, workers: make(map[int]*worker)}
}

// Start spawns WorkersMin workers plus a supervisor, and blocks until
// ctx is cancelled (SIGINT/SIGTERM upstream), at which point it performs
// a graceful shutdown: stop accepting new items, let in-flight steps run
// up to DrainWindow, then return.
func (p *Pool) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < p.cfg.WorkersMin; i++ {
		p.spawnWorker(g, gctx)
	}
	g.Go(func() error { return p.supervise(gctx) })
	g.Go(func() error { return p.reapStaleLeases(gctx) })

	err := g.Wait()
	p.drain()
	return err
}

func (p *Pool) spawnWorker(g *errgroup.Group, ctx context.Context) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	w := newWorker(id, p.cfg, p.mgr, p.runner, p.log)
	p.workers[id] = w
	p.mu.Unlock()

	g.Go(func() error {
		w.run(ctx)
		p.mu.Lock()
		delete(p.workers, id)
		p.mu.Unlock()
		return nil
	})
}

// supervise samples queue depth every ReaperInterval and scales the pool
// between WorkersMin and WorkersMax using a simple high/low watermark,
// also restarting any worker whose heartbeat has gone stale.
func (p *Pool) supervise(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.ReaperInterval)
	defer ticker.Stop()
	g, gctx := errgroup.WithContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case <-ticker.C:
			p.scale(g, gctx)
			p.restartDeadWorkers(g, gctx)
		}
	}
}

func (p *Pool) scale(g *errgroup.Group, ctx context.Context) {
	depth, err := p.mgr.DepthBySLA(ctx)
	if err != nil {
		p.log.Warn("queue depth sample failed", logging.NewFields().Component("workerpool.Pool").Err(err).ZapFields()...)
		return
	}
	total := 0
	for _, d := range depth {
		total += d
	}

	p.mu.Lock()
	current := len(p.workers)
	p.mu.Unlock()

	if total > p.cfg.ScaleUpQueueDepth && current < p.cfg.WorkersMax {
		p.spawnWorker(g, ctx)
		return
	}
	if total == 0 && current > p.cfg.WorkersMin {
		p.retireOne()
	}
}

func (p *Pool) retireOne() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, w := range p.workers {
		w.stop()
		delete(p.workers, id)
		return
	}
}

func (p *Pool) restartDeadWorkers(g *errgroup.Group, ctx context.Context) {
	p.mu.Lock()
	var dead []int
	for id, w := range p.workers {
		if w.isStale(p.cfg.ReaperInterval * 3) {
			dead = append(dead, id)
		}
	}
	p.mu.Unlock()

	for _, id := range dead {
		p.mu.Lock()
		w := p.workers[id]
		delete(p.workers, id)
		p.mu.Unlock()
		if w != nil {
			w.stop()
		}
		p.spawnWorker(g, ctx)
	}
}

// reapStaleLeases periodically clears leases abandoned by workers that
// died without a clean stop, so another worker can pick the item up.
func (p *Pool) reapStaleLeases(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.ReaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.mgr.ReapStaleLeases(ctx); err != nil {
				p.log.Warn("reap stale leases failed", logging.NewFields().Component("workerpool.Pool").Err(err).ZapFields()...)
			}
		}
	}
}

// drain waits up to DrainWindow for any worker still marked busy, then
// returns regardless — a worker exceeding the window is abandoned and
// its item reappears once the lease expires.
func (p *Pool) drain() {
	deadline := time.Now().Add(p.cfg.DrainWindow)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		anyBusy := false
		for _, w := range p.workers {
			if w.busy() {
				anyBusy = true
				break
			}
		}
		p.mu.Unlock()
		if !anyBusy {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}
