package gateway

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/platefare/restaurant-payouts/internal/domain"
	"github.com/platefare/restaurant-payouts/internal/models"
)

// ErrAccountNotFound is returned when the gateway has no balance for an account.
var ErrAccountNotFound = errors.New("gateway account not found")

// Gateway is the external payment rail. The real implementation lives
// outside this service; everything here treats it as opaque.
type Gateway interface {
	// SendTransfer moves amount (minor units) to the restaurant's bank
	// account and returns an opaque transfer reference.
	SendTransfer(ctx context.Context, restaurantID uuid.UUID, bank *models.BankInfo, amount int64, currency string) (string, error)

	// GetBalance returns the available balance (minor units) for a
	// gateway-side account.
	GetBalance(ctx context.Context, accountID string) (int64, error)

	// UpdatePayoutSchedule mirrors the schedule interval to the
	// gateway's native payout configuration.
	UpdatePayoutSchedule(ctx context.Context, accountID string, interval domain.ScheduleInterval) error
}
