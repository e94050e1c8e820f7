package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/platefare/restaurant-payouts/internal/domain"
	"github.com/platefare/restaurant-payouts/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingPayout(t *testing.T, m *Memory, restaurantID uuid.UUID, amount int64, due time.Time) *models.PayoutRecord {
	t.Helper()
	rec := &models.PayoutRecord{
		ID:              uuid.New(),
		RestaurantID:    restaurantID,
		Amount:          amount,
		Currency:        "USD",
		Status:          domain.PayoutStatusPending,
		PaymentIntentID: "pi_" + uuid.NewString(),
		ScheduledDate:   due,
	}
	require.NoError(t, m.CreatePayout(context.Background(), rec))
	return rec
}

func TestMemoryClaimDuePayouts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	restaurant := uuid.New()
	now := time.Now()

	due := newPendingPayout(t, m, restaurant, 1_000, now.Add(-time.Hour))
	newPendingPayout(t, m, restaurant, 2_000, now.Add(time.Hour)) // not due yet

	claimed, err := m.ClaimDuePayouts(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)
	assert.Equal(t, domain.PayoutStatusProcessing, claimed[0].Status)

	// A second claim sees nothing: the first call moved the record out
	// of pending.
	again, err := m.ClaimDuePayouts(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestMemoryCompletePayoutsSharedOutcome(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	restaurant := uuid.New()
	now := time.Now()

	a := newPendingPayout(t, m, restaurant, 1_000, now.Add(-time.Hour))
	b := newPendingPayout(t, m, restaurant, 1_500, now.Add(-time.Minute))

	claimed, err := m.ClaimDuePayouts(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	processedAt := time.Now()
	require.NoError(t, m.CompletePayouts(ctx, []uuid.UUID{a.ID, b.ID}, "TR-1", processedAt))

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		rec, err := m.GetPayout(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.PayoutStatusCompleted, rec.Status)
		require.NotNil(t, rec.TransferID)
		assert.Equal(t, "TR-1", *rec.TransferID)
		require.NotNil(t, rec.ProcessedDate)
		assert.True(t, rec.ProcessedDate.Equal(processedAt))
	}
}

func TestMemoryFinishGroupRejectsUnclaimedRecords(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rec := newPendingPayout(t, m, uuid.New(), 1_000, time.Now())

	// Still pending, never claimed.
	err := m.CompletePayouts(ctx, []uuid.UUID{rec.ID}, "TR-1", time.Now())
	require.Error(t, err)

	got, err := m.GetPayout(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusPending, got.Status)
}

func TestMemoryReleasePayouts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()
	rec := newPendingPayout(t, m, uuid.New(), 500, now.Add(-time.Minute))

	claimed, err := m.ClaimDuePayouts(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, m.ReleasePayouts(ctx, []uuid.UUID{rec.ID}))

	got, err := m.GetPayout(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusPending, got.Status)
	assert.Nil(t, got.ProcessedDate)
}

func TestMemoryRetryPayout(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()
	rec := newPendingPayout(t, m, uuid.New(), 500, now.Add(-time.Minute))

	_, err := m.ClaimDuePayouts(ctx, now, 10)
	require.NoError(t, err)
	require.NoError(t, m.FailPayouts(ctx, []uuid.UUID{rec.ID}, "gateway down", now))

	// Retrying a completed record is a conflict; failed -> pending works.
	next := now.Add(24 * time.Hour)
	require.NoError(t, m.RetryPayout(ctx, rec.ID, next))

	got, err := m.GetPayout(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusPending, got.Status)
	assert.Nil(t, got.FailureReason)
	assert.True(t, got.ScheduledDate.Equal(next))

	err = m.RetryPayout(ctx, rec.ID, next)
	assert.ErrorIs(t, err, ErrConflict)

	err = m.RetryPayout(ctx, uuid.New(), next)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryPendingEarnings(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	restaurant := uuid.New()
	now := time.Now()

	newPendingPayout(t, m, restaurant, 1_000, now.Add(time.Hour))
	newPendingPayout(t, m, restaurant, 2_500, now.Add(time.Hour))
	newPendingPayout(t, m, uuid.New(), 9_999, now.Add(time.Hour)) // other restaurant

	sum, err := m.PendingEarnings(ctx, restaurant)
	require.NoError(t, err)
	assert.Equal(t, int64(3_500), sum)
}

func TestMemoryBankInfoReplacement(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	restaurant := uuid.New()

	first := &models.BankInfo{ID: uuid.New(), RestaurantID: restaurant, BankName: "First Bank", AccountNumber: "111", RoutingNumber: "021000021", AccountHolderName: "Owner"}
	require.NoError(t, m.SaveBankInfo(ctx, first))

	second := &models.BankInfo{ID: uuid.New(), RestaurantID: restaurant, BankName: "Second Bank", AccountNumber: "222", RoutingNumber: "021000021", AccountHolderName: "Owner"}
	require.NoError(t, m.SaveBankInfo(ctx, second))

	total, active := m.BankInfoCount(restaurant)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, active)

	got, err := m.GetActiveBankInfo(ctx, restaurant)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestMemoryScheduleUpsert(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	restaurant := uuid.New()

	sched := &models.PayoutSchedule{
		RestaurantID: restaurant,
		AccountID:    "acct_1",
		Interval:     domain.IntervalDaily,
		Enabled:      true,
	}
	require.NoError(t, m.UpsertSchedule(ctx, sched))

	sched.Interval = domain.IntervalWeekly
	sched.WeeklyAnchor = time.Monday
	require.NoError(t, m.UpsertSchedule(ctx, sched))

	got, err := m.GetSchedule(ctx, restaurant)
	require.NoError(t, err)
	assert.Equal(t, domain.IntervalWeekly, got.Interval)
	assert.Equal(t, time.Monday, got.WeeklyAnchor)
}

func TestMemoryCreatePayoutRejectsDuplicateIntent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	restaurant := uuid.New()

	first := &models.PayoutRecord{
		ID:              uuid.New(),
		RestaurantID:    restaurant,
		Amount:          1_000,
		Currency:        "USD",
		Status:          domain.PayoutStatusPending,
		PaymentIntentID: "pi_once",
		ScheduledDate:   time.Now(),
	}
	require.NoError(t, m.CreatePayout(ctx, first))

	replay := &models.PayoutRecord{
		ID:              uuid.New(),
		RestaurantID:    restaurant,
		Amount:          1_000,
		Currency:        "USD",
		Status:          domain.PayoutStatusPending,
		PaymentIntentID: "pi_once",
		ScheduledDate:   time.Now(),
	}
	require.ErrorIs(t, m.CreatePayout(ctx, replay), ErrConflict)

	sum, err := m.PendingEarnings(ctx, restaurant)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), sum)
}

func TestMemoryListEnabledSchedules(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.UpsertSchedule(ctx, &models.PayoutSchedule{
		RestaurantID: uuid.New(), AccountID: "acct_a", Interval: domain.IntervalDaily, Enabled: true,
	}))
	require.NoError(t, m.UpsertSchedule(ctx, &models.PayoutSchedule{
		RestaurantID: uuid.New(), AccountID: "acct_b", Interval: domain.IntervalWeekly, Enabled: true,
	}))
	require.NoError(t, m.UpsertSchedule(ctx, &models.PayoutSchedule{
		RestaurantID: uuid.New(), AccountID: "acct_c", Interval: domain.IntervalManual, Enabled: false,
	}))

	schedules, err := m.ListEnabledSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, schedules, 2)
	for _, sched := range schedules {
		assert.True(t, sched.Enabled)
		assert.NotEqual(t, "acct_c", sched.AccountID)
	}
}
