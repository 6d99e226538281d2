package domain

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

const minorUnitExponent = 2

var (
	ErrNonPositiveAmount = errors.New("amount must be positive")
	ErrAmountTooLarge    = errors.New("amount exceeds the largest representable value")
)

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// ToMinorUnits converts a major-unit total (19.98) into minor units (1998),
// rounding half away from zero below the minor unit.
func ToMinorUnits(total decimal.Decimal) (int64, error) {
	minor := total.Shift(minorUnitExponent).Round(0)
	if !minor.IsPositive() {
		return 0, ErrNonPositiveAmount
	}
	if minor.GreaterThan(maxMinorUnits) {
		return 0, ErrAmountTooLarge
	}
	return minor.IntPart(), nil
}
