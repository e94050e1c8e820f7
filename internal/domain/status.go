package domain

import "strings"

// PayoutStatus is the lifecycle state of a single payout record.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
)

// Valid reports whether s is a known payout status.
func (s PayoutStatus) Valid() bool {
	switch s {
	case PayoutStatusPending, PayoutStatusProcessing, PayoutStatusCompleted, PayoutStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is an end state for the sweep.
func (s PayoutStatus) Terminal() bool {
	return s == PayoutStatusCompleted || s == PayoutStatusFailed
}

// payoutTransitions is the closed set of allowed forward moves.
// failed -> pending exists only for the explicit operator retry path.
var payoutTransitions = map[PayoutStatus]map[PayoutStatus]struct{}{
	PayoutStatusPending: {
		PayoutStatusProcessing: {},
	},
	PayoutStatusProcessing: {
		PayoutStatusPending:   {},
		PayoutStatusCompleted: {},
		PayoutStatusFailed:    {},
	},
	PayoutStatusFailed: {
		PayoutStatusPending: {},
	},
	PayoutStatusCompleted: {},
}

// CanTransition reports whether a payout may move from current to next.
// Re-applying the same terminal status is allowed so retried batch writes
// stay idempotent.
func CanTransition(current, next PayoutStatus) bool {
	if current == next && current.Terminal() {
		return true
	}
	allowed, ok := payoutTransitions[current]
	if !ok {
		return false
	}
	_, ok = allowed[next]
	return ok
}

// ScheduleInterval is the recurrence of a restaurant's payout schedule.
type ScheduleInterval string

const (
	IntervalDaily   ScheduleInterval = "daily"
	IntervalWeekly  ScheduleInterval = "weekly"
	IntervalMonthly ScheduleInterval = "monthly"
	IntervalManual  ScheduleInterval = "manual"
)

// ParseInterval normalizes and validates a schedule interval string.
func ParseInterval(raw string) (ScheduleInterval, bool) {
	interval := ScheduleInterval(strings.ToLower(strings.TrimSpace(raw)))
	switch interval {
	case IntervalDaily, IntervalWeekly, IntervalMonthly, IntervalManual:
		return interval, true
	}
	return "", false
}
