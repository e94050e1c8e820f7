package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/platefare/restaurant-payouts/internal/observability"
	"github.com/platefare/restaurant-payouts/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CronRunner drives sweeps from a cron expression instead of a fixed
// ticker, for deployments that want payouts at specific wall-clock
// times (e.g. "0 9 * * *").
type CronRunner struct {
	cron      *cron.Cron
	payoutSvc *service.PayoutService
	spec      string
}

func NewCronRunner(payoutSvc *service.PayoutService, spec string) *CronRunner {
	logger := cron.PrintfLogger(zap.NewStdLog(zap.L()))
	return &CronRunner{
		cron:      cron.New(cron.WithChain(cron.Recover(logger))),
		payoutSvc: payoutSvc,
		spec:      spec,
	}
}

// Start registers the sweep job and starts the scheduler.
func (r *CronRunner) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.spec, func() {
		sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()
		if err := r.payoutSvc.ProcessScheduledPayouts(sweepCtx); err != nil {
			observability.IncrementSweepRun("cron", "error")
			zap.L().Error("cron sweep failed", zap.Error(err))
			return
		}
		observability.IncrementSweepRun("cron", "ok")
	})
	if err != nil {
		return fmt.Errorf("schedule sweep job %q: %w", r.spec, err)
	}
	r.cron.Start()
	zap.L().Info("cron sweep scheduled", zap.String("spec", r.spec))
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (r *CronRunner) Stop() {
	<-r.cron.Stop().Done()
}
