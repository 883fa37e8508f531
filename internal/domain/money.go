package domain

import "github.com/shopspring/decimal"

// AmountTolerance is the loose-equality window, in minor units, used when
// comparing amounts that went through an FX conversion round trip.
const AmountTolerance = 100

// ApplyRate converts a minor-unit amount with rate, rounding half away from
// zero.
func ApplyRate(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}

// UnapplyRate divides a minor-unit amount by rate, rounding half away from
// zero. The rate must be non-zero.
func UnapplyRate(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Div(rate).Round(0).IntPart()
}

// WithinTolerance reports whether a and b differ by at most AmountTolerance
// minor units.
func WithinTolerance(a, b int64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= AmountTolerance
}

// InverseRate returns 1/rate.
func InverseRate(rate decimal.Decimal) decimal.Decimal {
	return decimal.New(1, 0).Div(rate)
}
