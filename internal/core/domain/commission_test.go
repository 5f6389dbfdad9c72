package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCommission(t *testing.T) {
	tests := []struct {
		total int64
		want  int64
	}{
		{1000, 30},
		{0, 0},
		{150, 5}, // 4.5
		{149, 4}, // 4.47
		{17, 1},  // 0.51
		{16, 0},  // 0.48
	}
	for _, tt := range tests {
		if got := Commission(tt.total, DefaultCommissionRate); got != tt.want {
			t.Errorf("Commission(%d) = %d, want %d", tt.total, got, tt.want)
		}
	}
}

func TestCommission_FrozenAgainstRateChange(t *testing.T) {
	order := Order{TotalAmount: 1000, CommissionAmount: Commission(1000, DefaultCommissionRate)}

	newRate := decimal.RequireFromString("0.05")
	if Commission(order.TotalAmount, newRate) != 50 {
		t.Fatal("expected new rate to apply to new totals")
	}
	if order.CommissionAmount != 30 {
		t.Errorf("expected stored commission 30, got %d", order.CommissionAmount)
	}
}
