package pricing

import (
	"github.com/shopspring/decimal"
)

const (
	MinDays = 1
	MaxDays = 30
)

var hundred = decimal.NewFromInt(100)

// Rate is the linear fallback for a slot when the table has no cell.
type Rate struct {
	Slot               int             `json:"slot"`
	DailyPrice         decimal.Decimal `json:"daily_price"`
	MonthlyDiscountPct decimal.Decimal `json:"monthly_discount_pct"`
}

// Config is an immutable pricing snapshot: per-slot totals by day count plus
// the per-slot linear rates used when a cell is missing.
type Config struct {
	Cells             map[int]map[int]decimal.Decimal `json:"cells"`
	Rates             map[int]Rate                    `json:"rates"`
	DefaultDailyPrice decimal.Decimal                 `json:"default_daily_price"`
}

type Quote struct {
	Days        int             `json:"days"`
	DailyPrice  decimal.Decimal `json:"daily_price"`
	DiscountPct decimal.Decimal `json:"discount_pct"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// Billable reports whether the quote can be charged through a gateway.
func (q Quote) Billable() bool {
	return q.TotalPrice.IsPositive()
}

// Days normalises a requested duration: monthly is always 30 days, custom is
// clamped into [MinDays, MaxDays].
func Days(monthly bool, days int) int {
	if monthly {
		return MaxDays
	}
	return min(max(days, MinDays), MaxDays)
}

// Price quotes a slot for a duration. A table cell wins when present and
// non-negative; otherwise the slot's daily rate (or the default) is applied
// linearly, less the monthly discount for monthly bookings.
func Price(cfg Config, slot int, monthly bool, days int) Quote {
	days = Days(monthly, days)
	n := decimal.NewFromInt(int64(days))

	base := cfg.DefaultDailyPrice
	discount := decimal.Zero
	if rate, ok := cfg.Rates[slot]; ok {
		base = rate.DailyPrice
		if monthly {
			discount = rate.MonthlyDiscountPct
		}
	}
	linear := base.Mul(n)

	var total decimal.Decimal
	if cell, ok := cfg.Cells[slot][days]; ok && !cell.IsNegative() {
		total = cell
		discount = derivedDiscount(total, linear)
	} else {
		total = linear.Mul(hundred.Sub(discount)).Div(hundred)
	}
	total = total.Round(2)

	return Quote{
		Days:        days,
		DailyPrice:  total.Div(n).Round(2),
		DiscountPct: discount.Round(2),
		TotalPrice:  total,
	}
}

// derivedDiscount expresses a table total as a percentage off the linear
// price. Totals at or above the linear price carry no discount.
func derivedDiscount(total, linear decimal.Decimal) decimal.Decimal {
	if !linear.IsPositive() || total.GreaterThanOrEqual(linear) {
		return decimal.Zero
	}
	return decimal.NewFromInt(1).Sub(total.Div(linear)).Mul(hundred)
}
