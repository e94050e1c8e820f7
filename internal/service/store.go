package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/platefare/restaurant-payouts/internal/models"
)

// Store is the data access contract required by the payout and bank
// services. The postgres implementation backs every mutation that spans
// multiple rows with a single transaction; the memory implementation
// mirrors those semantics for tests and database-less runs.
type Store interface {
	// Payout records
	CreatePayout(ctx context.Context, payout *models.PayoutRecord) error
	GetPayout(ctx context.Context, id uuid.UUID) (*models.PayoutRecord, error)

	// ClaimDuePayouts atomically transitions all pending records with
	// scheduled_date <= now into processing and returns them. A second
	// concurrent or immediately-following call observes zero records.
	ClaimDuePayouts(ctx context.Context, now time.Time, limit int32) ([]models.PayoutRecord, error)

	// CompletePayouts marks a claimed group completed with a shared
	// transfer reference and processed date, in one atomic write.
	CompletePayouts(ctx context.Context, ids []uuid.UUID, transferID string, processedAt time.Time) error

	// FailPayouts marks a claimed group failed with a shared reason, in
	// one atomic write.
	FailPayouts(ctx context.Context, ids []uuid.UUID, reason string, processedAt time.Time) error

	// ReleasePayouts returns a claimed group to pending untouched, used
	// when the group total is still below the payout minimum.
	ReleasePayouts(ctx context.Context, ids []uuid.UUID) error

	// RetryPayout resets a failed record to pending (operator action).
	RetryPayout(ctx context.Context, id uuid.UUID, scheduledDate time.Time) error

	ListPayoutHistory(ctx context.Context, restaurantID uuid.UUID, limit int32) ([]models.PayoutRecord, error)
	PendingEarnings(ctx context.Context, restaurantID uuid.UUID) (int64, error)

	// Bank info
	SaveBankInfo(ctx context.Context, info *models.BankInfo) error
	GetActiveBankInfo(ctx context.Context, restaurantID uuid.UUID) (*models.BankInfo, error)

	// Schedules
	UpsertSchedule(ctx context.Context, sched *models.PayoutSchedule) error
	GetSchedule(ctx context.Context, restaurantID uuid.UUID) (*models.PayoutSchedule, error)

	// ListEnabledSchedules returns every enabled schedule, ordered by
	// restaurant, for the operator overview.
	ListEnabledSchedules(ctx context.Context) ([]models.PayoutSchedule, error)
}
