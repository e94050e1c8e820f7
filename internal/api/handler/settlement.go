package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/platefare/restaurant-payouts/internal/service"
	"go.uber.org/zap"
)

// SettlementHandler receives order-settlement events from the payments
// pipeline and schedules the resulting payouts.
type SettlementHandler struct {
	payoutSvc *service.PayoutService
}

func NewSettlementHandler(payoutSvc *service.PayoutService) *SettlementHandler {
	return &SettlementHandler{payoutSvc: payoutSvc}
}

// CreateSettlementRequest represents the request body for a settled order.
type CreateSettlementRequest struct {
	OrderID         string `json:"order_id"`
	RestaurantID    string `json:"restaurant_id"`
	TotalAmount     int64  `json:"total_amount"`
	PaymentIntentID string `json:"payment_intent_id"`
	Currency        string `json:"currency"`
}

// CreateSettlement handles POST /v1/settlements
// It splits the order total and creates a pending payout record.
func (h *SettlementHandler) CreateSettlement(w http.ResponseWriter, r *http.Request) {
	var req CreateSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	restaurantID, err := uuid.Parse(req.RestaurantID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-restaurant-id", "Invalid restaurant_id")
		return
	}
	if req.TotalAmount <= 0 {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "total_amount must be greater than zero")
		return
	}
	if req.PaymentIntentID == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-payment-intent-id", "payment_intent_id is required")
		return
	}

	svcReq := service.SettlementRequest{
		RestaurantID:    restaurantID,
		TotalAmount:     req.TotalAmount,
		PaymentIntentID: req.PaymentIntentID,
		Currency:        req.Currency,
	}
	if req.OrderID != "" {
		orderID, err := uuid.Parse(req.OrderID)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-order-id", "Invalid order_id")
			return
		}
		svcReq.OrderID = &orderID
	}

	record, err := h.payoutSvc.ProcessPaymentAndSchedulePayout(r.Context(), svcReq)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateSettlement) {
			RespondError(w, r, http.StatusConflict, "settlement/duplicate", "Settlement already processed for this payment intent")
			return
		}
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		zap.L().Error("create settlement failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "settlement/create-failed", "Failed to process settlement")
		return
	}

	RespondJSON(w, http.StatusCreated, record)
}
