package safety

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/opsforge/execcore/pkg/safety/mutex"
	"github.com/opsforge/execcore/pkg/shared/logging"
)

// MutexGuard acquires the step's mutex key(s) in Before and releases
// them in After regardless of step outcome, per spec.md §4.2.2. While
// held, a heartbeat loop renews the lease at ttl/2 so a step that runs
// longer than ttl never loses exclusivity mid-flight.
type MutexGuard struct {
	manager  mutex.Manager
	ttl      time.Duration
	deadline time.Duration
	log      *zap.Logger
}

func NewMutexGuard(manager mutex.Manager, ttl, acquireDeadline time.Duration, log *zap.Logger) *MutexGuard {
	if log == nil {
		log = zap.NewNop()
	}
	return &MutexGuard{manager: manager, ttl: ttl, deadline: acquireDeadline, log: log}
}

func (g *MutexGuard) Name() string { return "mutex" }

func (g *MutexGuard) Before(ctx context.Context, sc *StepContext) error {
	if !sc.Writes || sc.AssetID == "" {
		return nil
	}
	keys := []string{lockKey(sc.AssetID, sc.MutexPurpose)}
	deadline := time.Now().Add(g.deadline)
	acquired, err := g.manager.Acquire(ctx, keys, sc.ExecutionID, g.ttl, deadline)
	if err != nil {
		return err
	}
	sc.acquiredLocks = acquired

	hbCtx, cancel := context.WithCancel(ctx)
	sc.mutexHeartbeatCancel = cancel
	go g.heartbeat(hbCtx, acquired, sc.ExecutionID)
	return nil
}

func (g *MutexGuard) After(ctx context.Context, sc *StepContext, stepErr error) error {
	if sc.mutexHeartbeatCancel != nil {
		sc.mutexHeartbeatCancel()
		sc.mutexHeartbeatCancel = nil
	}
	if len(sc.acquiredLocks) == 0 {
		return nil
	}
	err := g.manager.Release(ctx, sc.acquiredLocks, sc.ExecutionID)
	sc.acquiredLocks = nil
	return err
}

// heartbeat renews every key this step holds at ttl/2 until ctx is
// cancelled by After, mirroring the queue-lease heartbeat loop
// workerpool.worker runs alongside a leased item.
func (g *MutexGuard) heartbeat(ctx context.Context, keys []string, holderID string) {
	interval := g.ttl / 2
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.manager.Heartbeat(ctx, keys, holderID, g.ttl); err != nil {
				g.log.Warn("mutex heartbeat failed",
					logging.NewFields().Component("safety.MutexGuard").With("holder_id", holderID).Err(err).ZapFields()...)
				return
			}
		}
	}
}

func lockKey(assetID, purpose string) string {
	if purpose == "" {
		return assetID
	}
	return assetID + ":" + purpose
}
