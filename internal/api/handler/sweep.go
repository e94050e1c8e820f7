package handler

import (
	"net/http"

	"github.com/platefare/restaurant-payouts/internal/observability"
	"github.com/platefare/restaurant-payouts/internal/service"
	"go.uber.org/zap"
)

// SweepHandler lets operators trigger a payout sweep outside the
// regular ticker or cron cadence.
type SweepHandler struct {
	payoutSvc *service.PayoutService
}

func NewSweepHandler(payoutSvc *service.PayoutService) *SweepHandler {
	return &SweepHandler{payoutSvc: payoutSvc}
}

// TriggerSweep handles POST /v1/sweeps
// The sweep runs synchronously; a concurrent sweep elsewhere makes this
// a no-op thanks to the distributed lock.
func (h *SweepHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	if err := h.payoutSvc.ProcessScheduledPayouts(r.Context()); err != nil {
		observability.IncrementSweepRun("manual", "error")
		zap.L().Error("manual sweep failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "sweep/failed", "Sweep failed")
		return
	}

	observability.IncrementSweepRun("manual", "ok")
	RespondJSON(w, http.StatusAccepted, map[string]string{"status": "swept"})
}
