package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/platefare/restaurant-payouts/internal/domain"
	"github.com/platefare/restaurant-payouts/internal/models"
)

// MockGateway simulates the payment rail for local runs and tests.
// It introduces a small artificial delay and fails a configurable
// fraction of transfers.
type MockGateway struct {
	// FailureRate is the probability of a transfer failing (0.0 to 1.0).
	FailureRate float64
	// Delay is the simulated network latency per call.
	Delay time.Duration

	mu        sync.Mutex
	balances  map[string]int64
	schedules map[string]domain.ScheduleInterval
}

// NewMockGateway creates a gateway with no artificial failures.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Delay:     50 * time.Millisecond,
		balances:  make(map[string]int64),
		schedules: make(map[string]domain.ScheduleInterval),
	}
}

// SeedBalance sets the available balance for a gateway account.
func (g *MockGateway) SeedBalance(accountID string, amount int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[accountID] = amount
}

// ScheduleFor returns the last interval mirrored for an account.
func (g *MockGateway) ScheduleFor(accountID string) (domain.ScheduleInterval, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	interval, ok := g.schedules[accountID]
	return interval, ok
}

func (g *MockGateway) SendTransfer(ctx context.Context, restaurantID uuid.UUID, bank *models.BankInfo, amount int64, currency string) (string, error) {
	if err := g.sleep(ctx); err != nil {
		return "", err
	}
	if rand.Float64() < g.FailureRate {
		return "", fmt.Errorf("gateway temporarily unavailable")
	}
	// Reference format: TR-YYYYMMDD-HHMMSS-XXXXX
	return fmt.Sprintf("TR-%s-%05d", time.Now().Format("20060102-150405"), rand.Intn(100000)), nil
}

func (g *MockGateway) GetBalance(ctx context.Context, accountID string) (int64, error) {
	if err := g.sleep(ctx); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	balance, ok := g.balances[accountID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	return balance, nil
}

func (g *MockGateway) UpdatePayoutSchedule(ctx context.Context, accountID string, interval domain.ScheduleInterval) error {
	if err := g.sleep(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.schedules[accountID] = interval
	return nil
}

func (g *MockGateway) sleep(ctx context.Context) error {
	if g.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(g.Delay):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("gateway call canceled: %w", ctx.Err())
	}
}
