package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platefare/restaurant-payouts/internal/domain"
	"github.com/platefare/restaurant-payouts/internal/gateway"
	"github.com/platefare/restaurant-payouts/internal/models"
	"github.com/platefare/restaurant-payouts/internal/observability"
	"github.com/platefare/restaurant-payouts/internal/repository"
	"github.com/platefare/restaurant-payouts/internal/schedule"
	"github.com/platefare/restaurant-payouts/internal/sweeplock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrDuplicateSettlement  = errors.New("settlement already processed")
	ErrPayoutNotFound       = errors.New("payout not found")
	ErrPayoutNotRetryable   = errors.New("payout is not in a failed state")
	ErrBankInfoMissing      = errors.New("bank information not configured")
	ErrBalanceUnavailable   = errors.New("gateway balance unavailable")
	ErrAmountExceedsBalance = errors.New("requested amount exceeds available balance")
	ErrInvalidSchedule      = errors.New("invalid payout schedule")
)

// bankMissingReason is written to every record in a group whose
// restaurant has no active bank info. Terminal until the restaurant
// supplies bank details and an operator retries.
const bankMissingReason = "Bank information not configured"

// PayoutConfig carries the tunables for the payout service.
type PayoutConfig struct {
	FeePercent     decimal.Decimal // platform cut per order, e.g. 5
	DefaultMinimum int64           // payout floor when a schedule sets none
	ClaimBatchSize int32           // max records claimed per sweep
	Currency       string          // default settlement currency
	Now            func() time.Time
}

// PayoutService owns the payout record lifecycle: settlement intake,
// the scheduled sweep, manual payouts and the dashboard reads.
type PayoutService struct {
	store   Store
	gateway gateway.Gateway
	locker  sweeplock.Locker
	cfg     PayoutConfig
}

func NewPayoutService(store Store, gw gateway.Gateway, locker sweeplock.Locker, cfg PayoutConfig) *PayoutService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ClaimBatchSize <= 0 {
		cfg.ClaimBatchSize = 500
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if locker == nil {
		locker = sweeplock.NoopLocker{}
	}
	return &PayoutService{store: store, gateway: gw, locker: locker, cfg: cfg}
}

// SettlementRequest is the inbound order-settlement event.
type SettlementRequest struct {
	OrderID         *uuid.UUID
	RestaurantID    uuid.UUID
	TotalAmount     int64 // full order total, minor units
	PaymentIntentID string
	Currency        string
}

func (r SettlementRequest) Validate() error {
	if r.RestaurantID == uuid.Nil {
		return errors.New("restaurant_id is required")
	}
	if r.TotalAmount <= 0 {
		return fmt.Errorf("invalid order total: %d", r.TotalAmount)
	}
	if r.PaymentIntentID == "" {
		return errors.New("payment_intent_id is required")
	}
	return nil
}

// ProcessPaymentAndSchedulePayout splits a settled order total into the
// platform fee and the restaurant amount, and creates one pending payout
// record scheduled per the restaurant's payout schedule.
func (s *PayoutService) ProcessPaymentAndSchedulePayout(ctx context.Context, req SettlementRequest) (*models.PayoutRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	fee, restaurantAmount, err := domain.SplitOrderTotal(req.TotalAmount, s.cfg.FeePercent)
	if err != nil {
		return nil, fmt.Errorf("split order total: %w", err)
	}

	sched := s.scheduleOrDefault(ctx, req.RestaurantID)
	currency := req.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}

	record := &models.PayoutRecord{
		ID:              uuid.New(),
		RestaurantID:    req.RestaurantID,
		Amount:          restaurantAmount,
		Currency:        currency,
		Status:          domain.PayoutStatusPending,
		OrderID:         req.OrderID,
		PaymentIntentID: req.PaymentIntentID,
		ScheduledDate:   schedule.NextPayoutDate(s.cfg.Now(), sched),
	}
	if err := s.store.CreatePayout(ctx, record); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Replayed settlement event; the first delivery won.
			return nil, fmt.Errorf("%w: payment intent %s", ErrDuplicateSettlement, req.PaymentIntentID)
		}
		return nil, fmt.Errorf("create payout record: %w", err)
	}

	zap.L().Info("payout scheduled",
		zap.String("restaurant_id", req.RestaurantID.String()),
		zap.Int64("platform_fee", fee),
		zap.Int64("restaurant_amount", restaurantAmount),
		zap.Time("scheduled_date", record.ScheduledDate),
	)
	return record, nil
}

// ProcessScheduledPayouts is one sweep: claim all due pending records,
// group them by restaurant and settle each group with a single transfer.
// Groups are processed sequentially; one restaurant's failure never
// aborts the others.
func (s *PayoutService) ProcessScheduledPayouts(ctx context.Context) error {
	release, acquired, err := s.locker.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !acquired {
		zap.L().Info("sweep already running elsewhere, skipping")
		return nil
	}
	defer release()

	now := s.cfg.Now()
	claimed, err := s.store.ClaimDuePayouts(ctx, now, s.cfg.ClaimBatchSize)
	if err != nil {
		return fmt.Errorf("claim due payouts: %w", err)
	}
	observability.SetClaimedRecords(len(claimed))
	if len(claimed) == 0 {
		return nil
	}

	groups := make(map[uuid.UUID][]models.PayoutRecord)
	for _, rec := range claimed {
		groups[rec.RestaurantID] = append(groups[rec.RestaurantID], rec)
	}
	zap.L().Info("sweep claimed due payouts", zap.Int("records", len(claimed)), zap.Int("restaurants", len(groups)))

	for restaurantID, group := range groups {
		if err := ctx.Err(); err != nil {
			// Return unprocessed groups to pending so the next sweep
			// picks them up.
			s.releaseGroups(groups)
			return err
		}
		if err := s.processRestaurantPayouts(ctx, restaurantID, group); err != nil {
			zap.L().Error("restaurant payout group failed",
				zap.Error(err),
				zap.String("restaurant_id", restaurantID.String()),
				zap.Int("records", len(group)),
			)
			s.failGroup(ctx, group, err.Error())
		}
		delete(groups, restaurantID)
	}
	return nil
}

// processRestaurantPayouts settles one restaurant's claimed group: one
// transfer for the summed amount, then one shared outcome written to
// every record atomically.
func (s *PayoutService) processRestaurantPayouts(ctx context.Context, restaurantID uuid.UUID, group []models.PayoutRecord) error {
	ids := make([]uuid.UUID, 0, len(group))
	var total int64
	for _, rec := range group {
		ids = append(ids, rec.ID)
		total += rec.Amount
	}
	now := s.cfg.Now()

	bank, err := s.store.GetActiveBankInfo(ctx, restaurantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if err := s.store.FailPayouts(ctx, ids, bankMissingReason, now); err != nil {
				return fmt.Errorf("mark group failed: %w", err)
			}
			observability.IncrementBatchOutcome("failed_no_bank")
			zap.L().Warn("payout group failed: no active bank info",
				zap.String("restaurant_id", restaurantID.String()), zap.Int("records", len(ids)))
			return nil
		}
		return fmt.Errorf("load bank info: %w", err)
	}

	if minimum := s.minimumFor(ctx, restaurantID); total < minimum {
		// Accumulate until the floor is met; not a failure.
		if err := s.store.ReleasePayouts(ctx, ids); err != nil {
			return fmt.Errorf("release below-minimum group: %w", err)
		}
		observability.IncrementBatchOutcome("released_below_minimum")
		zap.L().Info("payout group below minimum, left pending",
			zap.String("restaurant_id", restaurantID.String()),
			zap.Int64("total", total), zap.Int64("minimum", minimum))
		return nil
	}

	currency := group[0].Currency
	start := time.Now()
	transferID, err := s.gateway.SendTransfer(ctx, restaurantID, bank, total, currency)
	observability.ObserveTransfer(time.Since(start))
	if err != nil {
		if err := s.store.FailPayouts(ctx, ids, err.Error(), s.cfg.Now()); err != nil {
			return fmt.Errorf("mark group failed after transfer error: %w", err)
		}
		observability.IncrementBatchOutcome("failed_transfer")
		zap.L().Warn("payout transfer failed",
			zap.Error(err), zap.String("restaurant_id", restaurantID.String()), zap.Int64("total", total))
		return nil
	}

	if err := s.store.CompletePayouts(ctx, ids, transferID, s.cfg.Now()); err != nil {
		return fmt.Errorf("mark group completed: %w", err)
	}
	observability.IncrementBatchOutcome("completed")
	zap.L().Info("payout group completed",
		zap.String("restaurant_id", restaurantID.String()),
		zap.String("transfer_id", transferID),
		zap.String("total", domain.FormatMinorUnits(total, currency)),
		zap.Int("records", len(ids)))
	return nil
}

// failGroup converts an unexpected processing error into a failed batch
// write so the sweep can carry on with the remaining restaurants.
func (s *PayoutService) failGroup(ctx context.Context, group []models.PayoutRecord, reason string) {
	ids := make([]uuid.UUID, 0, len(group))
	for _, rec := range group {
		ids = append(ids, rec.ID)
	}
	if err := s.store.FailPayouts(ctx, ids, reason, s.cfg.Now()); err != nil {
		zap.L().Error("failed to mark payout group failed", zap.Error(err))
	}
	observability.IncrementBatchOutcome("failed_internal")
}

func (s *PayoutService) releaseGroups(groups map[uuid.UUID][]models.PayoutRecord) {
	var ids []uuid.UUID
	for _, group := range groups {
		for _, rec := range group {
			ids = append(ids, rec.ID)
		}
	}
	if len(ids) == 0 {
		return
	}
	if err := s.store.ReleasePayouts(context.Background(), ids); err != nil {
		zap.L().Error("failed to release claimed payouts on cancellation", zap.Error(err))
	}
}

// GetRestaurantPayoutHistory returns the most recent payout records.
func (s *PayoutService) GetRestaurantPayoutHistory(ctx context.Context, restaurantID uuid.UUID, limit int32) ([]models.PayoutRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	records, err := s.store.ListPayoutHistory(ctx, restaurantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list payout history: %w", err)
	}
	return records, nil
}

// GetRestaurantPendingEarnings sums the restaurant's pending records.
func (s *PayoutService) GetRestaurantPendingEarnings(ctx context.Context, restaurantID uuid.UUID) (int64, error) {
	sum, err := s.store.PendingEarnings(ctx, restaurantID)
	if err != nil {
		return 0, fmt.Errorf("sum pending earnings: %w", err)
	}
	return sum, nil
}

// GetPayout retrieves a single payout record.
func (s *PayoutService) GetPayout(ctx context.Context, id uuid.UUID) (*models.PayoutRecord, error) {
	rec, err := s.store.GetPayout(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPayoutNotFound
		}
		return nil, fmt.Errorf("get payout: %w", err)
	}
	return rec, nil
}

// RetryFailedPayout resets a failed record to pending, due immediately.
// This is the only path out of the failed state; nothing is automatic.
func (s *PayoutService) RetryFailedPayout(ctx context.Context, id uuid.UUID) (*models.PayoutRecord, error) {
	err := s.store.RetryPayout(ctx, id, s.cfg.Now())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrPayoutNotFound
	case errors.Is(err, repository.ErrConflict):
		return nil, ErrPayoutNotRetryable
	case err != nil:
		return nil, fmt.Errorf("retry payout: %w", err)
	}
	return s.GetPayout(ctx, id)
}

// ManualPayoutRequest asks for an immediate transfer outside the
// batching path. A nil Amount pays out the full available balance.
type ManualPayoutRequest struct {
	RestaurantID uuid.UUID
	AccountID    string
	Amount       *int64
}

// CreateManualPayout validates the requested amount against the gateway
// balance and issues one immediate transfer, bypassing scheduling.
func (s *PayoutService) CreateManualPayout(ctx context.Context, req ManualPayoutRequest) (*models.PayoutRecord, error) {
	if req.AccountID == "" {
		return nil, errors.New("account_id is required")
	}

	bank, err := s.store.GetActiveBankInfo(ctx, req.RestaurantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBankInfoMissing
		}
		return nil, fmt.Errorf("load bank info: %w", err)
	}

	balance, err := s.gateway.GetBalance(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, gateway.ErrAccountNotFound) {
			return nil, ErrBalanceUnavailable
		}
		return nil, fmt.Errorf("read gateway balance: %w", err)
	}

	amount := balance
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount <= 0 {
		return nil, fmt.Errorf("invalid payout amount: %d", amount)
	}
	if amount > balance {
		return nil, fmt.Errorf("%w: requested %d, available %d", ErrAmountExceedsBalance, amount, balance)
	}

	now := s.cfg.Now()
	record := &models.PayoutRecord{
		ID:              uuid.New(),
		RestaurantID:    req.RestaurantID,
		Amount:          amount,
		Currency:        s.cfg.Currency,
		Status:          domain.PayoutStatusProcessing,
		PaymentIntentID: "manual-" + uuid.NewString(),
		ScheduledDate:   now,
	}
	if err := s.store.CreatePayout(ctx, record); err != nil {
		return nil, fmt.Errorf("create manual payout record: %w", err)
	}

	start := time.Now()
	transferID, err := s.gateway.SendTransfer(ctx, req.RestaurantID, bank, amount, record.Currency)
	observability.ObserveTransfer(time.Since(start))
	if err != nil {
		if failErr := s.store.FailPayouts(ctx, []uuid.UUID{record.ID}, err.Error(), s.cfg.Now()); failErr != nil {
			zap.L().Error("failed to mark manual payout failed", zap.Error(failErr))
		}
		return nil, fmt.Errorf("manual transfer: %w", err)
	}
	if err := s.store.CompletePayouts(ctx, []uuid.UUID{record.ID}, transferID, s.cfg.Now()); err != nil {
		return nil, fmt.Errorf("mark manual payout completed: %w", err)
	}

	zap.L().Info("manual payout completed",
		zap.String("restaurant_id", req.RestaurantID.String()),
		zap.String("transfer_id", transferID),
		zap.String("amount", domain.FormatMinorUnits(amount, record.Currency)))
	return s.GetPayout(ctx, record.ID)
}

// ConfigureScheduleRequest sets a restaurant's payout schedule.
type ConfigureScheduleRequest struct {
	RestaurantID  uuid.UUID
	AccountID     string
	Interval      string
	WeeklyAnchor  *int // time.Weekday, 0=Sunday
	MonthlyAnchor *int // 1-31
	MinimumAmount *int64
	Enabled       *bool
}

// ConfigurePayoutSchedule persists the schedule and mirrors the interval
// to the gateway's native payout configuration.
func (s *PayoutService) ConfigurePayoutSchedule(ctx context.Context, req ConfigureScheduleRequest) (*models.PayoutSchedule, error) {
	interval, ok := domain.ParseInterval(req.Interval)
	if !ok {
		return nil, fmt.Errorf("%w: unknown interval %q", ErrInvalidSchedule, req.Interval)
	}
	if req.AccountID == "" {
		return nil, fmt.Errorf("%w: account_id is required", ErrInvalidSchedule)
	}

	sched := &models.PayoutSchedule{
		RestaurantID:  req.RestaurantID,
		AccountID:     req.AccountID,
		Interval:      interval,
		WeeklyAnchor:  schedule.DefaultWeeklyAnchor,
		MonthlyAnchor: 1,
		MinimumAmount: s.cfg.DefaultMinimum,
		Enabled:       true,
	}
	if req.WeeklyAnchor != nil {
		if *req.WeeklyAnchor < 0 || *req.WeeklyAnchor > 6 {
			return nil, fmt.Errorf("%w: weekly anchor must be 0-6", ErrInvalidSchedule)
		}
		sched.WeeklyAnchor = time.Weekday(*req.WeeklyAnchor)
	}
	if req.MonthlyAnchor != nil {
		if *req.MonthlyAnchor < 1 || *req.MonthlyAnchor > 31 {
			return nil, fmt.Errorf("%w: monthly anchor must be 1-31", ErrInvalidSchedule)
		}
		sched.MonthlyAnchor = *req.MonthlyAnchor
	}
	if req.MinimumAmount != nil {
		if *req.MinimumAmount < 0 {
			return nil, fmt.Errorf("%w: minimum amount must not be negative", ErrInvalidSchedule)
		}
		sched.MinimumAmount = *req.MinimumAmount
	}
	if req.Enabled != nil {
		sched.Enabled = *req.Enabled
	}

	if err := s.store.UpsertSchedule(ctx, sched); err != nil {
		return nil, fmt.Errorf("save payout schedule: %w", err)
	}
	if err := s.gateway.UpdatePayoutSchedule(ctx, req.AccountID, interval); err != nil {
		return nil, fmt.Errorf("mirror schedule to gateway: %w", err)
	}
	return sched, nil
}

// ListPayoutSchedules returns every enabled schedule for the operator
// overview.
func (s *PayoutService) ListPayoutSchedules(ctx context.Context) ([]models.PayoutSchedule, error) {
	schedules, err := s.store.ListEnabledSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled schedules: %w", err)
	}
	return schedules, nil
}

// EstimatedPayoutDate projects the next payout date for display.
func (s *PayoutService) EstimatedPayoutDate(ctx context.Context, restaurantID uuid.UUID) (time.Time, error) {
	sched := s.scheduleOrDefault(ctx, restaurantID)
	return schedule.EstimatedPayoutDate(s.cfg.Now(), sched), nil
}

// scheduleOrDefault falls back to a daily schedule when the restaurant
// has not configured one.
func (s *PayoutService) scheduleOrDefault(ctx context.Context, restaurantID uuid.UUID) *models.PayoutSchedule {
	sched, err := s.store.GetSchedule(ctx, restaurantID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			zap.L().Warn("schedule lookup failed, using default", zap.Error(err))
		}
		return &models.PayoutSchedule{
			RestaurantID:  restaurantID,
			Interval:      domain.IntervalDaily,
			WeeklyAnchor:  schedule.DefaultWeeklyAnchor,
			MonthlyAnchor: 1,
			MinimumAmount: s.cfg.DefaultMinimum,
			Enabled:       true,
		}
	}
	return sched
}

// minimumFor returns the payout floor for a restaurant.
func (s *PayoutService) minimumFor(ctx context.Context, restaurantID uuid.UUID) int64 {
	sched, err := s.store.GetSchedule(ctx, restaurantID)
	if err != nil {
		return s.cfg.DefaultMinimum
	}
	return sched.MinimumAmount
}
