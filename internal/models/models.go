package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/platefare/restaurant-payouts/internal/domain"
)

// PayoutRecord is one restaurant settlement awaiting (or past) transfer.
// Records are never deleted; completed and failed rows form the audit trail.
type PayoutRecord struct {
	ID              uuid.UUID           `json:"id"`
	RestaurantID    uuid.UUID           `json:"restaurant_id"`
	Amount          int64               `json:"amount"` // minor units, always > 0
	Currency        string              `json:"currency"`
	Status          domain.PayoutStatus `json:"status"`
	OrderID         *uuid.UUID          `json:"order_id,omitempty"`
	PaymentIntentID string              `json:"payment_intent_id"`
	ScheduledDate   time.Time           `json:"scheduled_date"`
	ProcessedDate   *time.Time          `json:"processed_date,omitempty"`
	TransferID      *string             `json:"transfer_id,omitempty"`
	FailureReason   *string             `json:"failure_reason,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// BankInfo is a restaurant's payout destination. At most one row per
// restaurant is active; saving a new one deactivates the rest.
type BankInfo struct {
	ID                uuid.UUID  `json:"id"`
	RestaurantID      uuid.UUID  `json:"restaurant_id"`
	BankName          string     `json:"bank_name"`
	AccountNumber     string     `json:"account_number"`
	RoutingNumber     string     `json:"routing_number"`
	AccountHolderName string     `json:"account_holder_name"`
	IsActive          bool       `json:"is_active"`
	VerifiedAt        *time.Time `json:"verified_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// PayoutSchedule is a restaurant's recurring payout configuration.
// Exactly one per restaurant; saved via upsert.
type PayoutSchedule struct {
	RestaurantID  uuid.UUID               `json:"restaurant_id"`
	AccountID     string                  `json:"account_id"` // gateway-side account reference
	Interval      domain.ScheduleInterval `json:"interval"`
	WeeklyAnchor  time.Weekday            `json:"weekly_anchor"`            // weekly only
	MonthlyAnchor int                     `json:"monthly_anchor,omitempty"` // 1-31, monthly only
	MinimumAmount int64                   `json:"minimum_amount"`           // minor units; 0 disables the floor
	Enabled       bool                    `json:"enabled"`
	UpdatedAt     time.Time               `json:"updated_at"`
}
