package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/platefare/restaurant-payouts/internal/domain"
	"github.com/platefare/restaurant-payouts/internal/models"
)

// Memory is an in-process store with the same semantics as Postgres.
// It backs unit tests and database-less local runs; each mutating method
// holds the lock for its whole unit of work, mirroring the transactional
// batch writes of the SQL store.
type Memory struct {
	mu        sync.Mutex
	payouts   map[uuid.UUID]*models.PayoutRecord
	bankInfo  map[uuid.UUID][]*models.BankInfo // keyed by restaurant
	schedules map[uuid.UUID]*models.PayoutSchedule
}

func NewMemory() *Memory {
	return &Memory{
		payouts:   make(map[uuid.UUID]*models.PayoutRecord),
		bankInfo:  make(map[uuid.UUID][]*models.BankInfo),
		schedules: make(map[uuid.UUID]*models.PayoutSchedule),
	}
}

func (m *Memory) CreatePayout(ctx context.Context, payout *models.PayoutRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.payouts {
		if existing.PaymentIntentID == payout.PaymentIntentID {
			// Same uniqueness the SQL store enforces with its
			// payment_intent_id index.
			return ErrConflict
		}
	}
	now := time.Now()
	payout.CreatedAt = now
	payout.UpdatedAt = now
	clone := *payout
	m.payouts[payout.ID] = &clone
	return nil
}

func (m *Memory) GetPayout(ctx context.Context, id uuid.UUID) (*models.PayoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.payouts[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (m *Memory) ClaimDuePayouts(ctx context.Context, now time.Time, limit int32) ([]models.PayoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*models.PayoutRecord
	for _, rec := range m.payouts {
		if rec.Status == domain.PayoutStatusPending && !rec.ScheduledDate.After(now) {
			due = append(due, rec)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledDate.Before(due[j].ScheduledDate) })
	if limit > 0 && int32(len(due)) > limit {
		due = due[:limit]
	}

	claimed := make([]models.PayoutRecord, 0, len(due))
	for _, rec := range due {
		rec.Status = domain.PayoutStatusProcessing
		rec.UpdatedAt = time.Now()
		claimed = append(claimed, *rec)
	}
	return claimed, nil
}

func (m *Memory) CompletePayouts(ctx context.Context, ids []uuid.UUID, transferID string, processedAt time.Time) error {
	return m.finishGroup(ids, "complete payout group", domain.PayoutStatusCompleted, func(rec *models.PayoutRecord) {
		rec.Status = domain.PayoutStatusCompleted
		ref := transferID
		rec.TransferID = &ref
		ts := processedAt
		rec.ProcessedDate = &ts
		rec.FailureReason = nil
	})
}

func (m *Memory) FailPayouts(ctx context.Context, ids []uuid.UUID, reason string, processedAt time.Time) error {
	return m.finishGroup(ids, "fail payout group", domain.PayoutStatusFailed, func(rec *models.PayoutRecord) {
		rec.Status = domain.PayoutStatusFailed
		msg := reason
		rec.FailureReason = &msg
		ts := processedAt
		rec.ProcessedDate = &ts
	})
}

func (m *Memory) ReleasePayouts(ctx context.Context, ids []uuid.UUID) error {
	return m.finishGroup(ids, "release payout group", domain.PayoutStatusPending, func(rec *models.PayoutRecord) {
		rec.Status = domain.PayoutStatusPending
	})
}

// finishGroup applies mutate to every record in the group, or none of
// them: the whole group is validated before any write. Group outcomes
// only ever move claimed records, so a record must be processing and the
// move to target must be legal per the lifecycle table.
func (m *Memory) finishGroup(ids []uuid.UUID, operation string, target domain.PayoutStatus, mutate func(*models.PayoutRecord)) error {
	if len(ids) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	group := make([]*models.PayoutRecord, 0, len(ids))
	for _, id := range ids {
		rec, ok := m.payouts[id]
		if !ok || rec.Status != domain.PayoutStatusProcessing || !domain.CanTransition(rec.Status, target) {
			return requireAll(int64(len(group)), len(ids), operation)
		}
		group = append(group, rec)
	}
	now := time.Now()
	for _, rec := range group {
		mutate(rec)
		rec.UpdatedAt = now
	}
	return nil
}

func (m *Memory) RetryPayout(ctx context.Context, id uuid.UUID, scheduledDate time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.payouts[id]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != domain.PayoutStatusFailed {
		return ErrConflict
	}
	rec.Status = domain.PayoutStatusPending
	rec.FailureReason = nil
	rec.ProcessedDate = nil
	rec.TransferID = nil
	rec.ScheduledDate = scheduledDate
	rec.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) ListPayoutHistory(ctx context.Context, restaurantID uuid.UUID, limit int32) ([]models.PayoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []models.PayoutRecord
	for _, rec := range m.payouts {
		if rec.RestaurantID == restaurantID {
			records = append(records, *rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.After(records[j].CreatedAt) })
	if limit > 0 && int32(len(records)) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (m *Memory) PendingEarnings(ctx context.Context, restaurantID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sum int64
	for _, rec := range m.payouts {
		if rec.RestaurantID == restaurantID && rec.Status == domain.PayoutStatusPending {
			sum += rec.Amount
		}
	}
	return sum, nil
}

func (m *Memory) SaveBankInfo(ctx context.Context, info *models.BankInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.bankInfo[info.RestaurantID] {
		existing.IsActive = false
	}
	info.IsActive = true
	info.CreatedAt = time.Now()
	clone := *info
	m.bankInfo[info.RestaurantID] = append(m.bankInfo[info.RestaurantID], &clone)
	return nil
}

func (m *Memory) GetActiveBankInfo(ctx context.Context, restaurantID uuid.UUID) (*models.BankInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, info := range m.bankInfo[restaurantID] {
		if info.IsActive {
			clone := *info
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

// BankInfoCount reports total and active record counts for a restaurant.
// Test helper for the replacement invariant.
func (m *Memory) BankInfoCount(restaurantID uuid.UUID) (total, active int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, info := range m.bankInfo[restaurantID] {
		total++
		if info.IsActive {
			active++
		}
	}
	return total, active
}

func (m *Memory) UpsertSchedule(ctx context.Context, sched *models.PayoutSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sched.UpdatedAt = time.Now()
	clone := *sched
	m.schedules[sched.RestaurantID] = &clone
	return nil
}

func (m *Memory) GetSchedule(ctx context.Context, restaurantID uuid.UUID) (*models.PayoutSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sched, ok := m.schedules[restaurantID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *sched
	return &clone, nil
}

func (m *Memory) ListEnabledSchedules(ctx context.Context) ([]models.PayoutSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var schedules []models.PayoutSchedule
	for _, sched := range m.schedules {
		if sched.Enabled {
			schedules = append(schedules, *sched)
		}
	}
	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].RestaurantID.String() < schedules[j].RestaurantID.String()
	})
	return schedules, nil
}
