package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amounts are integer minor currency units (cents) throughout; decimal is
// only used at the fee boundary to avoid float rounding.

// PlatformFee returns the platform's cut of an order total, rounded half-up.
func PlatformFee(total int64, feePercent decimal.Decimal) int64 {
	fee := decimal.NewFromInt(total).Mul(feePercent).Div(decimal.NewFromInt(100))
	return fee.Round(0).IntPart()
}

// RestaurantAmount returns the remainder credited to the restaurant.
// PlatformFee + RestaurantAmount always equals the order total exactly.
func RestaurantAmount(total int64, feePercent decimal.Decimal) int64 {
	return total - PlatformFee(total, feePercent)
}

// SplitOrderTotal splits an order total into the platform fee and the
// restaurant's payout amount.
func SplitOrderTotal(total int64, feePercent decimal.Decimal) (fee, restaurant int64, err error) {
	if total <= 0 {
		return 0, 0, fmt.Errorf("order total must be positive, got %d", total)
	}
	if feePercent.IsNegative() || feePercent.GreaterThan(decimal.NewFromInt(100)) {
		return 0, 0, fmt.Errorf("fee percent out of range: %s", feePercent)
	}
	fee = PlatformFee(total, feePercent)
	return fee, total - fee, nil
}

// FormatMinorUnits renders minor units as a major-unit string, e.g. 9500 -> "95.00".
func FormatMinorUnits(amount int64, currency string) string {
	return fmt.Sprintf("%s %s", decimal.NewFromInt(amount).Div(decimal.NewFromInt(100)).StringFixed(2), currency)
}
