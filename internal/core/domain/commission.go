package domain

import "github.com/shopspring/decimal"

// DefaultCommissionRate is the platform's cut of an order total.
var DefaultCommissionRate = decimal.RequireFromString("0.03")

// Commission returns total*rate rounded half away from zero.
// It is stamped on the order once and never recomputed.
func Commission(total int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(total).Mul(rate).Round(0).IntPart()
}
