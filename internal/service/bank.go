package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/platefare/restaurant-payouts/internal/models"
	"github.com/platefare/restaurant-payouts/internal/repository"
	"go.uber.org/zap"
)

var ErrBankInfoNotFound = errors.New("no active bank information")

// BankService manages restaurant bank details. The restaurant settings
// UI is the sole writer; the payout sweep only reads.
type BankService struct {
	store Store
}

func NewBankService(store Store) *BankService {
	return &BankService{store: store}
}

// BankInfoRequest is a new bank details submission.
type BankInfoRequest struct {
	RestaurantID      uuid.UUID
	BankName          string
	AccountNumber     string
	RoutingNumber     string
	AccountHolderName string
}

func (r BankInfoRequest) Validate() error {
	if r.RestaurantID == uuid.Nil {
		return errors.New("restaurant_id is required")
	}
	if strings.TrimSpace(r.BankName) == "" {
		return errors.New("bank_name is required")
	}
	if strings.TrimSpace(r.AccountNumber) == "" {
		return errors.New("account_number is required")
	}
	routing := strings.TrimSpace(r.RoutingNumber)
	if len(routing) != 9 {
		return errors.New("routing_number must be 9 digits")
	}
	for _, c := range routing {
		if c < '0' || c > '9' {
			return errors.New("routing_number must be 9 digits")
		}
	}
	if strings.TrimSpace(r.AccountHolderName) == "" {
		return errors.New("account_holder_name is required")
	}
	return nil
}

// SaveBankInfo replaces the restaurant's active bank record. Prior
// records are deactivated in the same atomic write, so at most one
// record per restaurant is ever active.
func (s *BankService) SaveBankInfo(ctx context.Context, req BankInfoRequest) (*models.BankInfo, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	info := &models.BankInfo{
		ID:                uuid.New(),
		RestaurantID:      req.RestaurantID,
		BankName:          strings.TrimSpace(req.BankName),
		AccountNumber:     strings.TrimSpace(req.AccountNumber),
		RoutingNumber:     strings.TrimSpace(req.RoutingNumber),
		AccountHolderName: strings.TrimSpace(req.AccountHolderName),
	}
	if err := s.store.SaveBankInfo(ctx, info); err != nil {
		return nil, fmt.Errorf("save bank info: %w", err)
	}

	zap.L().Info("bank info replaced", zap.String("restaurant_id", req.RestaurantID.String()))
	return info, nil
}

// GetActiveBankInfo returns the restaurant's current active record.
func (s *BankService) GetActiveBankInfo(ctx context.Context, restaurantID uuid.UUID) (*models.BankInfo, error) {
	info, err := s.store.GetActiveBankInfo(ctx, restaurantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBankInfoNotFound
		}
		return nil, fmt.Errorf("get active bank info: %w", err)
	}
	return info, nil
}
