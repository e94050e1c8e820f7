package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/platefare/restaurant-payouts/internal/domain"
	"github.com/platefare/restaurant-payouts/internal/models"
	"github.com/platefare/restaurant-payouts/internal/repository"
	"github.com/platefare/restaurant-payouts/internal/schedule"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGateway records transfers and returns canned results.
type stubGateway struct {
	mu        sync.Mutex
	ref       string
	err       error
	balance   int64
	transfers []int64
	schedules map[string]domain.ScheduleInterval
}

func (g *stubGateway) SendTransfer(ctx context.Context, restaurantID uuid.UUID, bank *models.BankInfo, amount int64, currency string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.transfers = append(g.transfers, amount)
	return g.ref, nil
}

func (g *stubGateway) GetBalance(ctx context.Context, accountID string) (int64, error) {
	return g.balance, nil
}

func (g *stubGateway) UpdatePayoutSchedule(ctx context.Context, accountID string, interval domain.ScheduleInterval) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.schedules == nil {
		g.schedules = make(map[string]domain.ScheduleInterval)
	}
	g.schedules[accountID] = interval
	return nil
}

func newTestService(t *testing.T, gw *stubGateway) (*PayoutService, *repository.Memory) {
	t.Helper()
	store := repository.NewMemory()
	svc := NewPayoutService(store, gw, nil, PayoutConfig{
		FeePercent: decimal.NewFromInt(5),
		Currency:   "USD",
	})
	return svc, store
}

func saveBankInfo(t *testing.T, store *repository.Memory, restaurantID uuid.UUID) {
	t.Helper()
	require.NoError(t, store.SaveBankInfo(context.Background(), &models.BankInfo{
		ID:                uuid.New(),
		RestaurantID:      restaurantID,
		BankName:          "First Federal",
		AccountNumber:     "000123456",
		RoutingNumber:     "021000021",
		AccountHolderName: "Restaurant LLC",
	}))
}

func TestProcessPaymentAndSchedulePayout(t *testing.T) {
	gw := &stubGateway{ref: "TR-1"}
	svc, _ := newTestService(t, gw)
	ctx := context.Background()

	restaurant := uuid.New()
	orderID := uuid.New()
	rec, err := svc.ProcessPaymentAndSchedulePayout(ctx, SettlementRequest{
		OrderID:         &orderID,
		RestaurantID:    restaurant,
		TotalAmount:     10_000,
		PaymentIntentID: "pi_abc",
	})
	require.NoError(t, err)

	// 5% of 10000 -> fee 500, restaurant amount 9500.
	assert.Equal(t, int64(9_500), rec.Amount)
	assert.Equal(t, domain.PayoutStatusPending, rec.Status)
	assert.Equal(t, "USD", rec.Currency)
	// Default daily schedule: next day at the payout hour.
	assert.Equal(t, schedule.PayoutHour, rec.ScheduledDate.Hour())
	assert.True(t, rec.ScheduledDate.After(time.Now()))
}

func TestProcessPaymentRejectsBadSettlements(t *testing.T) {
	svc, _ := newTestService(t, &stubGateway{})
	ctx := context.Background()

	_, err := svc.ProcessPaymentAndSchedulePayout(ctx, SettlementRequest{
		RestaurantID: uuid.New(), TotalAmount: 0, PaymentIntentID: "pi",
	})
	require.Error(t, err)

	_, err = svc.ProcessPaymentAndSchedulePayout(ctx, SettlementRequest{
		RestaurantID: uuid.New(), TotalAmount: 100,
	})
	require.Error(t, err)

	_, err = svc.ProcessPaymentAndSchedulePayout(ctx, SettlementRequest{
		TotalAmount: 100, PaymentIntentID: "pi",
	})
	require.Error(t, err)
}

func TestProcessPaymentDuplicateIntentCreditsOnce(t *testing.T) {
	svc, _ := newTestService(t, &stubGateway{})
	ctx := context.Background()
	restaurant := uuid.New()

	req := SettlementRequest{
		RestaurantID:    restaurant,
		TotalAmount:     10_000,
		PaymentIntentID: "pi_replayed",
	}
	_, err := svc.ProcessPaymentAndSchedulePayout(ctx, req)
	require.NoError(t, err)

	// A redelivered settlement event must not credit the restaurant twice.
	_, err = svc.ProcessPaymentAndSchedulePayout(ctx, req)
	require.ErrorIs(t, err, ErrDuplicateSettlement)

	pending, err := svc.GetRestaurantPendingEarnings(ctx, restaurant)
	require.NoError(t, err)
	assert.Equal(t, int64(9_500), pending)
}

func TestListPayoutSchedules(t *testing.T) {
	gw := &stubGateway{}
	svc, _ := newTestService(t, gw)
	ctx := context.Background()

	enabled := uuid.New()
	disabled := uuid.New()
	off := false

	_, err := svc.ConfigurePayoutSchedule(ctx, ConfigureScheduleRequest{
		RestaurantID: enabled, AccountID: "acct_on", Interval: "weekly",
	})
	require.NoError(t, err)
	_, err = svc.ConfigurePayoutSchedule(ctx, ConfigureScheduleRequest{
		RestaurantID: disabled, AccountID: "acct_off", Interval: "daily", Enabled: &off,
	})
	require.NoError(t, err)

	schedules, err := svc.ListPayoutSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, enabled, schedules[0].RestaurantID)
	assert.Equal(t, domain.IntervalWeekly, schedules[0].Interval)
}

// seedDuePayout creates a pending record already past its scheduled date.
func seedDuePayout(t *testing.T, store *repository.Memory, restaurantID uuid.UUID, amount int64) *models.PayoutRecord {
	t.Helper()
	rec := &models.PayoutRecord{
		ID:              uuid.New(),
		RestaurantID:    restaurantID,
		Amount:          amount,
		Currency:        "USD",
		Status:          domain.PayoutStatusPending,
		PaymentIntentID: "pi_" + uuid.NewString(),
		ScheduledDate:   time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.CreatePayout(context.Background(), rec))
	return rec
}

func TestSweepCompletesDueGroup(t *testing.T) {
	gw := &stubGateway{ref: "TR-OK"}
	svc, store := newTestService(t, gw)
	ctx := context.Background()
	restaurant := uuid.New()
	saveBankInfo(t, store, restaurant)

	a := seedDuePayout(t, store, restaurant, 9_500)
	b := seedDuePayout(t, store, restaurant, 4_200)

	require.NoError(t, svc.ProcessScheduledPayouts(ctx))

	// One combined transfer for the group total.
	require.Len(t, gw.transfers, 1)
	assert.Equal(t, int64(13_700), gw.transfers[0])

	var processedDates []time.Time
	for _, id := range []uuid.UUID{a.ID, b.ID} {
		rec, err := store.GetPayout(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.PayoutStatusCompleted, rec.Status)
		require.NotNil(t, rec.TransferID)
		assert.Equal(t, "TR-OK", *rec.TransferID)
		require.NotNil(t, rec.ProcessedDate)
		processedDates = append(processedDates, *rec.ProcessedDate)
	}
	// Shared processed date across the group.
	assert.True(t, processedDates[0].Equal(processedDates[1]))
}

func TestSweepIsIdempotent(t *testing.T) {
	gw := &stubGateway{ref: "TR-ONCE"}
	svc, store := newTestService(t, gw)
	ctx := context.Background()
	restaurant := uuid.New()
	saveBankInfo(t, store, restaurant)
	seedDuePayout(t, store, restaurant, 5_000)

	require.NoError(t, svc.ProcessScheduledPayouts(ctx))
	require.NoError(t, svc.ProcessScheduledPayouts(ctx))

	// Second sweep found zero eligible records: exactly one transfer.
	assert.Len(t, gw.transfers, 1)
}

func TestSweepNoBankInfoFailsGroup(t *testing.T) {
	gw := &stubGateway{ref: "TR-X"}
	svc, store := newTestService(t, gw)
	ctx := context.Background()
	restaurant := uuid.New()

	rec := seedDuePayout(t, store, restaurant, 5_000)

	require.NoError(t, svc.ProcessScheduledPayouts(ctx))

	got, err := store.GetPayout(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "Bank information not configured", *got.FailureReason)
	assert.Empty(t, gw.transfers)
}

func TestSweepBelowMinimumLeavesPending(t *testing.T) {
	gw := &stubGateway{ref: "TR-MIN"}
	store := repository.NewMemory()
	svc := NewPayoutService(store, gw, nil, PayoutConfig{
		FeePercent: decimal.NewFromInt(5),
		Currency:   "USD",
	})
	ctx := context.Background()
	restaurant := uuid.New()
	saveBankInfo(t, store, restaurant)

	// Schedule with a 3000 minimum.
	require.NoError(t, store.UpsertSchedule(ctx, &models.PayoutSchedule{
		RestaurantID:  restaurant,
		AccountID:     "acct_1",
		Interval:      domain.IntervalDaily,
		MinimumAmount: 3_000,
		Enabled:       true,
	}))

	a := seedDuePayout(t, store, restaurant, 1_000)
	b := seedDuePayout(t, store, restaurant, 1_500)

	require.NoError(t, svc.ProcessScheduledPayouts(ctx))

	// 2500 < 3000: both stay pending, no transfer.
	assert.Empty(t, gw.transfers)
	for _, id := range []uuid.UUID{a.ID, b.ID} {
		rec, err := store.GetPayout(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.PayoutStatusPending, rec.Status)
	}

	// Accumulate past the floor; next sweep pays everything out.
	seedDuePayout(t, store, restaurant, 2_000)
	require.NoError(t, svc.ProcessScheduledPayouts(ctx))
	require.Len(t, gw.transfers, 1)
	assert.Equal(t, int64(4_500), gw.transfers[0])
}

func TestSweepTransferFailureFailsGroup(t *testing.T) {
	gw := &stubGateway{err: errors.New("gateway down")}
	svc, store := newTestService(t, gw)
	ctx := context.Background()
	restaurant := uuid.New()
	saveBankInfo(t, store, restaurant)

	rec := seedDuePayout(t, store, restaurant, 5_000)

	require.NoError(t, svc.ProcessScheduledPayouts(ctx))

	got, err := store.GetPayout(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Contains(t, *got.FailureReason, "gateway down")
}

func TestSweepOneGroupFailureDoesNotAbortOthers(t *testing.T) {
	// Restaurant A has no bank info; restaurant B should still be paid.
	gw := &stubGateway{ref: "TR-B"}
	svc, store := newTestService(t, gw)
	ctx := context.Background()

	restaurantA := uuid.New()
	restaurantB := uuid.New()
	saveBankInfo(t, store, restaurantB)

	recA := seedDuePayout(t, store, restaurantA, 1_000)
	recB := seedDuePayout(t, store, restaurantB, 2_000)

	require.NoError(t, svc.ProcessScheduledPayouts(ctx))

	gotA, err := store.GetPayout(ctx, recA.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusFailed, gotA.Status)

	gotB, err := store.GetPayout(ctx, recB.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusCompleted, gotB.Status)
}

func TestRetryFailedPayout(t *testing.T) {
	gw := &stubGateway{err: errors.New("gateway down")}
	svc, store := newTestService(t, gw)
	ctx := context.Background()
	restaurant := uuid.New()
	saveBankInfo(t, store, restaurant)
	rec := seedDuePayout(t, store, restaurant, 5_000)

	require.NoError(t, svc.ProcessScheduledPayouts(ctx))

	retried, err := svc.RetryFailedPayout(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusPending, retried.Status)

	// Gateway recovers; the retried record settles on the next sweep.
	gw.mu.Lock()
	gw.err = nil
	gw.ref = "TR-RETRY"
	gw.mu.Unlock()
	require.NoError(t, svc.ProcessScheduledPayouts(ctx))

	got, err := store.GetPayout(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusCompleted, got.Status)

	_, err = svc.RetryFailedPayout(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrPayoutNotRetryable)

	_, err = svc.RetryFailedPayout(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrPayoutNotFound)
}

func TestPendingEarningsAndHistory(t *testing.T) {
	svc, store := newTestService(t, &stubGateway{ref: "TR"})
	ctx := context.Background()
	restaurant := uuid.New()

	for i := 0; i < 3; i++ {
		seedDuePayout(t, store, restaurant, int64(1_000*(i+1)))
	}

	sum, err := svc.GetRestaurantPendingEarnings(ctx, restaurant)
	require.NoError(t, err)
	assert.Equal(t, int64(6_000), sum)

	history, err := svc.GetRestaurantPayoutHistory(ctx, restaurant, 2)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestCreateManualPayout(t *testing.T) {
	gw := &stubGateway{ref: "TR-MANUAL", balance: 10_000}
	svc, store := newTestService(t, gw)
	ctx := context.Background()
	restaurant := uuid.New()
	saveBankInfo(t, store, restaurant)

	amount := int64(4_000)
	rec, err := svc.CreateManualPayout(ctx, ManualPayoutRequest{
		RestaurantID: restaurant,
		AccountID:    "acct_1",
		Amount:       &amount,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusCompleted, rec.Status)
	require.NotNil(t, rec.TransferID)
	assert.Equal(t, "TR-MANUAL", *rec.TransferID)
	assert.Equal(t, int64(4_000), rec.Amount)
}

func TestCreateManualPayoutValidation(t *testing.T) {
	gw := &stubGateway{ref: "TR", balance: 1_000}
	svc, store := newTestService(t, gw)
	ctx := context.Background()
	restaurant := uuid.New()

	// No bank info yet.
	_, err := svc.CreateManualPayout(ctx, ManualPayoutRequest{RestaurantID: restaurant, AccountID: "acct_1"})
	assert.ErrorIs(t, err, ErrBankInfoMissing)

	saveBankInfo(t, store, restaurant)

	// Exceeds available balance.
	tooMuch := int64(5_000)
	_, err = svc.CreateManualPayout(ctx, ManualPayoutRequest{RestaurantID: restaurant, AccountID: "acct_1", Amount: &tooMuch})
	assert.ErrorIs(t, err, ErrAmountExceedsBalance)

	// Nil amount pays the full balance.
	rec, err := svc.CreateManualPayout(ctx, ManualPayoutRequest{RestaurantID: restaurant, AccountID: "acct_1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), rec.Amount)
}

func TestConfigurePayoutSchedule(t *testing.T) {
	gw := &stubGateway{ref: "TR"}
	svc, store := newTestService(t, gw)
	ctx := context.Background()
	restaurant := uuid.New()

	anchor := 15
	sched, err := svc.ConfigurePayoutSchedule(ctx, ConfigureScheduleRequest{
		RestaurantID:  restaurant,
		AccountID:     "acct_1",
		Interval:      "monthly",
		MonthlyAnchor: &anchor,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.IntervalMonthly, sched.Interval)
	assert.Equal(t, 15, sched.MonthlyAnchor)

	// Mirrored to the gateway.
	assert.Equal(t, domain.IntervalMonthly, gw.schedules["acct_1"])

	// Persisted locally.
	got, err := store.GetSchedule(ctx, restaurant)
	require.NoError(t, err)
	assert.Equal(t, domain.IntervalMonthly, got.Interval)

	_, err = svc.ConfigurePayoutSchedule(ctx, ConfigureScheduleRequest{
		RestaurantID: restaurant, AccountID: "acct_1", Interval: "hourly",
	})
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	bad := 32
	_, err = svc.ConfigurePayoutSchedule(ctx, ConfigureScheduleRequest{
		RestaurantID: restaurant, AccountID: "acct_1", Interval: "monthly", MonthlyAnchor: &bad,
	})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestEstimatedPayoutDate(t *testing.T) {
	svc, store := newTestService(t, &stubGateway{})
	ctx := context.Background()
	restaurant := uuid.New()

	// Default daily schedule.
	estimate, err := svc.EstimatedPayoutDate(ctx, restaurant)
	require.NoError(t, err)
	assert.True(t, estimate.After(time.Now()))
	assert.LessOrEqual(t, estimate.Sub(time.Now()), 48*time.Hour)

	// Manual schedule: the sentinel, i.e. never automatic.
	require.NoError(t, store.UpsertSchedule(ctx, &models.PayoutSchedule{
		RestaurantID: restaurant, AccountID: "acct_1", Interval: domain.IntervalManual, Enabled: true,
	}))
	estimate, err = svc.EstimatedPayoutDate(ctx, restaurant)
	require.NoError(t, err)
	assert.Equal(t, schedule.SentinelNever, estimate)
}

func TestSweepScenarioFromSettlement(t *testing.T) {
	// Full path: settle 10000 at 5% fee, fast-forward past the
	// scheduled date, sweep with bank info present and zero minimum.
	gw := &stubGateway{ref: "TR-E2E"}
	store := repository.NewMemory()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc := NewPayoutService(store, gw, nil, PayoutConfig{
		FeePercent: decimal.NewFromInt(5),
		Currency:   "USD",
		Now:        clock,
	})
	ctx := context.Background()
	restaurant := uuid.New()
	saveBankInfo(t, store, restaurant)

	rec, err := svc.ProcessPaymentAndSchedulePayout(ctx, SettlementRequest{
		RestaurantID:    restaurant,
		TotalAmount:     10_000,
		PaymentIntentID: "pi_e2e",
	})
	require.NoError(t, err)
	require.Equal(t, int64(9_500), rec.Amount)
	require.Equal(t, time.Date(2026, time.March, 11, schedule.PayoutHour, 0, 0, 0, time.UTC), rec.ScheduledDate)

	// Advance the clock to the scheduled time and sweep.
	now = rec.ScheduledDate
	require.NoError(t, svc.ProcessScheduledPayouts(ctx))

	got, err := store.GetPayout(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusCompleted, got.Status)
	require.NotNil(t, got.TransferID)
	assert.Equal(t, "TR-E2E", *got.TransferID)
	require.NotNil(t, got.ProcessedDate)
}

func TestFeeSplitNeverLosesCents(t *testing.T) {
	svc, _ := newTestService(t, &stubGateway{})
	ctx := context.Background()

	for _, total := range []int64{1, 99, 333, 10_001} {
		rec, err := svc.ProcessPaymentAndSchedulePayout(ctx, SettlementRequest{
			RestaurantID:    uuid.New(),
			TotalAmount:     total,
			PaymentIntentID: fmt.Sprintf("pi_%d", total),
		})
		require.NoError(t, err)
		fee := domain.PlatformFee(total, decimal.NewFromInt(5))
		assert.Equal(t, total, fee+rec.Amount, "fee split must be exact for total %d", total)
	}
}
