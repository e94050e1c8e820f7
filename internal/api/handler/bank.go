package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/platefare/restaurant-payouts/internal/models"
	"github.com/platefare/restaurant-payouts/internal/service"
	"go.uber.org/zap"
)

// BankHandler handles restaurant bank detail reads and writes.
type BankHandler struct {
	bankSvc *service.BankService
}

func NewBankHandler(bankSvc *service.BankService) *BankHandler {
	return &BankHandler{bankSvc: bankSvc}
}

// SaveBankInfoRequest represents the request body for replacing bank details.
type SaveBankInfoRequest struct {
	BankName          string `json:"bank_name"`
	AccountNumber     string `json:"account_number"`
	RoutingNumber     string `json:"routing_number"`
	AccountHolderName string `json:"account_holder_name"`
}

// SaveBankInfo handles PUT /v1/restaurants/{id}/bank-info
// The new record becomes the single active one; prior records are
// deactivated in the same write.
func (h *BankHandler) SaveBankInfo(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := pathRestaurantID(r, chi.URLParam(r, "id"))
	if err != nil {
		writeActorError(w, r, err)
		return
	}

	var req SaveBankInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	svcReq := service.BankInfoRequest{
		RestaurantID:      restaurantID,
		BankName:          req.BankName,
		AccountNumber:     req.AccountNumber,
		RoutingNumber:     req.RoutingNumber,
		AccountHolderName: req.AccountHolderName,
	}
	if err := svcReq.Validate(); err != nil {
		RespondError(w, r, http.StatusBadRequest, "bank-info/invalid", err.Error())
		return
	}

	info, err := h.bankSvc.SaveBankInfo(r.Context(), svcReq)
	if err != nil {
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		zap.L().Error("save bank info failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "bank-info/save-failed", "Failed to save bank info")
		return
	}

	RespondJSON(w, http.StatusOK, redactBankInfo(info))
}

// GetBankInfo handles GET /v1/restaurants/{id}/bank-info
func (h *BankHandler) GetBankInfo(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := pathRestaurantID(r, chi.URLParam(r, "id"))
	if err != nil {
		writeActorError(w, r, err)
		return
	}

	info, err := h.bankSvc.GetActiveBankInfo(r.Context(), restaurantID)
	if err != nil {
		if errors.Is(err, service.ErrBankInfoNotFound) {
			RespondError(w, r, http.StatusNotFound, "bank-info/not-found", "No active bank information")
			return
		}
		zap.L().Error("get bank info failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "bank-info/get-failed", "Failed to get bank info")
		return
	}

	RespondJSON(w, http.StatusOK, redactBankInfo(info))
}

// redactBankInfo masks the account number down to its last four digits
// before it leaves the service.
func redactBankInfo(info *models.BankInfo) *models.BankInfo {
	out := *info
	if n := len(out.AccountNumber); n > 4 {
		out.AccountNumber = "****" + out.AccountNumber[n-4:]
	}
	return &out
}
