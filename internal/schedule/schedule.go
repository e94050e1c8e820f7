// Package schedule computes next payout dates for restaurant schedules.
// Everything here is pure: callers pass in "now" so results are
// deterministic and testable.
package schedule

import (
	"time"

	"github.com/platefare/restaurant-payouts/internal/domain"
	"github.com/platefare/restaurant-payouts/internal/models"
)

// PayoutHour is the local hour payouts are scheduled at.
const PayoutHour = 9

// DefaultWeeklyAnchor is used when a weekly schedule has no anchor set.
const DefaultWeeklyAnchor = time.Friday

// SentinelNever marks manual schedules: far enough out that no sweep
// will ever pick the record up automatically.
var SentinelNever = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// NextPayoutDate returns the next payout date strictly after now for the
// given schedule. Disabled schedules behave like manual ones.
func NextPayoutDate(now time.Time, sched *models.PayoutSchedule) time.Time {
	if sched == nil || !sched.Enabled {
		return SentinelNever
	}

	switch sched.Interval {
	case domain.IntervalDaily:
		return atPayoutHour(now.AddDate(0, 0, 1))
	case domain.IntervalWeekly:
		anchor := sched.WeeklyAnchor
		if anchor < time.Sunday || anchor > time.Saturday {
			anchor = DefaultWeeklyAnchor
		}
		days := int(anchor-now.Weekday()+7) % 7
		if days == 0 {
			days = 7
		}
		return atPayoutHour(now.AddDate(0, 0, days))
	case domain.IntervalMonthly:
		anchor := sched.MonthlyAnchor
		if anchor < 1 || anchor > 31 {
			anchor = 1
		}
		// Anchor day of next month, clamped to its last day so a 31
		// anchor pays on Feb 28/29 rather than rolling into March.
		firstOfNext := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
		day := min(anchor, daysInMonth(firstOfNext))
		return time.Date(firstOfNext.Year(), firstOfNext.Month(), day, PayoutHour, 0, 0, 0, now.Location())
	default:
		return SentinelNever
	}
}

// EstimatedPayoutDate is the read-only projection shown on the dashboard.
// Same arithmetic as NextPayoutDate; it never touches stored state.
func EstimatedPayoutDate(now time.Time, sched *models.PayoutSchedule) time.Time {
	return NextPayoutDate(now, sched)
}

func atPayoutHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), PayoutHour, 0, 0, 0, t.Location())
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, -1).Day()
}
