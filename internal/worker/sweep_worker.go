package worker

import (
	"context"
	"sync"
	"time"

	"github.com/platefare/restaurant-payouts/internal/observability"
	"github.com/platefare/restaurant-payouts/internal/service"
	"go.uber.org/zap"
)

// SweepWorker runs the payout sweep at a fixed interval. Safe to run on
// multiple instances: sweeps are serialized by the sweep lock and the
// claim step, so an overlapping run simply finds nothing due.
type SweepWorker struct {
	payoutSvc    *service.PayoutService
	pollInterval time.Duration
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func NewSweepWorker(payoutSvc *service.PayoutService) *SweepWorker {
	return &SweepWorker{
		payoutSvc:    payoutSvc,
		pollInterval: time.Minute,
		stopCh:       make(chan struct{}),
	}
}

// WithPollInterval sets the sweep interval.
func (w *SweepWorker) WithPollInterval(interval time.Duration) *SweepWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// Start blocks and sweeps until Stop is called or the context ends.
func (w *SweepWorker) Start(ctx context.Context) {
	zap.L().Info("sweep worker starting", zap.Duration("interval", w.pollInterval))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("sweep worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("sweep worker stop signal received")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// Stop signals the worker to stop.
func (w *SweepWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Run starts the worker in a goroutine and returns its stop function.
func (w *SweepWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// SweepOnce runs a single sweep immediately. Used by the ops trigger
// endpoint and tests.
func (w *SweepWorker) SweepOnce(ctx context.Context) error {
	return w.payoutSvc.ProcessScheduledPayouts(ctx)
}

func (w *SweepWorker) sweep(ctx context.Context) {
	if err := w.payoutSvc.ProcessScheduledPayouts(ctx); err != nil {
		observability.IncrementSweepRun("ticker", "error")
		zap.L().Error("sweep failed", zap.Error(err))
		return
	}
	observability.IncrementSweepRun("ticker", "ok")
}
