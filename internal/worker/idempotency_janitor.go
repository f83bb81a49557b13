package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/backoffice-ledger/internal/observability"
	"go.uber.org/zap"
)

// Sweeper deletes idempotency records last touched before the cutoff.
type Sweeper interface {
	Sweep(ctx context.Context, before time.Time) (int64, error)
}

// IdempotencyJanitor periodically removes completed idempotency keys older
// than the retention window. In-flight reservations are never removed.
type IdempotencyJanitor struct {
	store     Sweeper
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func NewIdempotencyJanitor(store Sweeper, retention time.Duration) *IdempotencyJanitor {
	return &IdempotencyJanitor{
		store:     store,
		interval:  10 * time.Minute,
		retention: retention,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// WithInterval updates the sweep interval.
func (j *IdempotencyJanitor) WithInterval(interval time.Duration) *IdempotencyJanitor {
	if interval > 0 {
		j.interval = interval
	}
	return j
}

// Start blocks and sweeps at the configured interval.
func (j *IdempotencyJanitor) Start(ctx context.Context) {
	zap.L().Info("idempotency janitor starting",
		zap.Duration("interval", j.interval),
		zap.Duration("retention", j.retention),
	)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("idempotency janitor context canceled")
			return
		case <-j.stopCh:
			zap.L().Info("idempotency janitor stop signal received")
			return
		case <-ticker.C:
			j.SweepOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (j *IdempotencyJanitor) Stop() {
	j.stopOnce.Do(func() {
		close(j.stopCh)
	})
}

// Run starts the janitor in a goroutine and returns a stop function.
func (j *IdempotencyJanitor) Run(ctx context.Context) func() {
	go j.Start(ctx)
	return j.Stop
}

// SweepOnce deletes expired keys and returns how many were removed.
func (j *IdempotencyJanitor) SweepOnce(ctx context.Context) int64 {
	if j.retention <= 0 {
		return 0
	}
	deleted, err := j.store.Sweep(ctx, j.now().Add(-j.retention))
	if err != nil {
		observability.IncrementWorkerRun("idempotency_janitor", "failed")
		zap.L().Error("idempotency sweep failed", zap.Error(err))
		return 0
	}
	observability.IncrementWorkerRun("idempotency_janitor", "success")
	if deleted > 0 {
		zap.L().Info("idempotency keys swept", zap.Int64("deleted", deleted))
	}
	return deleted
}
