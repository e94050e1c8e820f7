package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/platefare/restaurant-payouts/internal/service"
	"go.uber.org/zap"
)

// PayoutHandler handles HTTP requests for payout records, dashboard
// reads, manual payouts and schedule configuration.
type PayoutHandler struct {
	payoutSvc *service.PayoutService
}

// NewPayoutHandler creates a new PayoutHandler instance.
func NewPayoutHandler(payoutSvc *service.PayoutService) *PayoutHandler {
	return &PayoutHandler{payoutSvc: payoutSvc}
}

// ListPayouts handles GET /v1/restaurants/{id}/payouts
// It returns the restaurant's payout history, newest first.
func (h *PayoutHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := pathRestaurantID(r, chi.URLParam(r, "id"))
	if err != nil {
		writeActorError(w, r, err)
		return
	}

	var limit int32
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed < 0 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-limit", "limit must be a non-negative integer")
			return
		}
		limit = int32(parsed)
	}

	records, err := h.payoutSvc.GetRestaurantPayoutHistory(r.Context(), restaurantID, limit)
	if err != nil {
		zap.L().Error("list payouts failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "payout/list-failed", "Failed to list payouts")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"restaurant_id": restaurantID,
		"payouts":       records,
		"count":         len(records),
	})
}

// PendingEarnings handles GET /v1/restaurants/{id}/earnings/pending
// It returns the sum of the restaurant's pending payout records.
func (h *PayoutHandler) PendingEarnings(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := pathRestaurantID(r, chi.URLParam(r, "id"))
	if err != nil {
		writeActorError(w, r, err)
		return
	}

	sum, err := h.payoutSvc.GetRestaurantPendingEarnings(r.Context(), restaurantID)
	if err != nil {
		zap.L().Error("pending earnings failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "payout/pending-earnings-failed", "Failed to sum pending earnings")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"restaurant_id":    restaurantID,
		"pending_earnings": sum,
	})
}

// EstimatePayoutDate handles GET /v1/restaurants/{id}/payouts/estimate
// It projects the restaurant's next payout date.
func (h *PayoutHandler) EstimatePayoutDate(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := pathRestaurantID(r, chi.URLParam(r, "id"))
	if err != nil {
		writeActorError(w, r, err)
		return
	}

	estimate, err := h.payoutSvc.EstimatedPayoutDate(r.Context(), restaurantID)
	if err != nil {
		zap.L().Error("estimate payout date failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "payout/estimate-failed", "Failed to estimate payout date")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"restaurant_id":  restaurantID,
		"estimated_date": estimate.Format(time.RFC3339),
	})
}

// GetPayout handles GET /v1/payouts/{id}
// It returns a single payout record.
func (h *PayoutHandler) GetPayout(w http.ResponseWriter, r *http.Request) {
	payoutID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-payout-id", "Invalid payout ID")
		return
	}

	record, err := h.payoutSvc.GetPayout(r.Context(), payoutID)
	if err != nil {
		if errors.Is(err, service.ErrPayoutNotFound) {
			RespondError(w, r, http.StatusNotFound, "payout/not-found", "Payout not found")
			return
		}
		zap.L().Error("get payout failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "payout/get-failed", "Failed to get payout")
		return
	}

	actorID, operator, actorErr := requestActor(r)
	if actorErr != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	if !operator && record.RestaurantID != actorID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}

	RespondJSON(w, http.StatusOK, record)
}

// RetryPayout handles POST /v1/payouts/{id}/retry
// Operator-only: it resets a failed payout to pending, due immediately.
func (h *PayoutHandler) RetryPayout(w http.ResponseWriter, r *http.Request) {
	payoutID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-payout-id", "Invalid payout ID")
		return
	}

	record, err := h.payoutSvc.RetryFailedPayout(r.Context(), payoutID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPayoutNotFound):
			RespondError(w, r, http.StatusNotFound, "payout/not-found", "Payout not found")
		case errors.Is(err, service.ErrPayoutNotRetryable):
			RespondError(w, r, http.StatusConflict, "payout/not-retryable", "Only failed payouts can be retried")
		default:
			zap.L().Error("retry payout failed", zap.Error(err))
			RespondError(w, r, http.StatusInternalServerError, "payout/retry-failed", "Failed to retry payout")
		}
		return
	}

	RespondJSON(w, http.StatusOK, record)
}

// ManualPayoutRequest represents the request body for an immediate payout.
type ManualPayoutRequest struct {
	AccountID string `json:"account_id"`
	Amount    *int64 `json:"amount,omitempty"`
}

// CreateManualPayout handles POST /v1/restaurants/{id}/payouts/manual
// It issues one immediate transfer outside the batching path. A missing
// amount pays out the full available balance.
func (h *PayoutHandler) CreateManualPayout(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := pathRestaurantID(r, chi.URLParam(r, "id"))
	if err != nil {
		writeActorError(w, r, err)
		return
	}

	var req ManualPayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if req.AccountID == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-account-id", "account_id is required")
		return
	}
	if req.Amount != nil && *req.Amount <= 0 {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "amount must be greater than zero")
		return
	}

	record, err := h.payoutSvc.CreateManualPayout(r.Context(), service.ManualPayoutRequest{
		RestaurantID: restaurantID,
		AccountID:    req.AccountID,
		Amount:       req.Amount,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBankInfoMissing):
			RespondError(w, r, http.StatusConflict, "payout/bank-info-missing", "Bank information not configured")
		case errors.Is(err, service.ErrBalanceUnavailable):
			RespondError(w, r, http.StatusBadGateway, "payout/balance-unavailable", "Gateway balance unavailable")
		case errors.Is(err, service.ErrAmountExceedsBalance):
			RespondError(w, r, http.StatusBadRequest, "payout/amount-exceeds-balance", err.Error())
		default:
			zap.L().Error("manual payout failed", zap.Error(err))
			RespondError(w, r, http.StatusInternalServerError, "payout/manual-failed", "Failed to create manual payout")
		}
		return
	}

	RespondJSON(w, http.StatusCreated, record)
}

// ConfigureScheduleRequest represents the request body for setting a
// restaurant's payout schedule.
type ConfigureScheduleRequest struct {
	AccountID     string `json:"account_id"`
	Interval      string `json:"interval"`
	WeeklyAnchor  *int   `json:"weekly_anchor,omitempty"`
	MonthlyAnchor *int   `json:"monthly_anchor,omitempty"`
	MinimumAmount *int64 `json:"minimum_amount,omitempty"`
	Enabled       *bool  `json:"enabled,omitempty"`
}

// ConfigureSchedule handles PUT /v1/restaurants/{id}/payout-schedule
func (h *PayoutHandler) ConfigureSchedule(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := pathRestaurantID(r, chi.URLParam(r, "id"))
	if err != nil {
		writeActorError(w, r, err)
		return
	}

	var req ConfigureScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	sched, err := h.payoutSvc.ConfigurePayoutSchedule(r.Context(), service.ConfigureScheduleRequest{
		RestaurantID:  restaurantID,
		AccountID:     req.AccountID,
		Interval:      req.Interval,
		WeeklyAnchor:  req.WeeklyAnchor,
		MonthlyAnchor: req.MonthlyAnchor,
		MinimumAmount: req.MinimumAmount,
		Enabled:       req.Enabled,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidSchedule) {
			RespondError(w, r, http.StatusBadRequest, "schedule/invalid", err.Error())
			return
		}
		zap.L().Error("configure schedule failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "schedule/save-failed", "Failed to save payout schedule")
		return
	}

	RespondJSON(w, http.StatusOK, sched)
}

// ListSchedules handles GET /v1/payout-schedules
// Operator-only overview of every enabled payout schedule.
func (h *PayoutHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.payoutSvc.ListPayoutSchedules(r.Context())
	if err != nil {
		zap.L().Error("list payout schedules failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "schedule/list-failed", "Failed to list payout schedules")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"schedules": schedules,
		"count":     len(schedules),
	})
}

func writeActorError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errForbidden):
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
	case errors.Is(err, errInvalidRestaurantID):
		RespondError(w, r, http.StatusBadRequest, "request/invalid-restaurant-id", "Invalid restaurant ID")
	default:
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
	}
}
