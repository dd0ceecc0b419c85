package pricing

import (
	"context"
	"fmt"
	"time"

	"adslots/internal/infra/dbx"

	"github.com/shopspring/decimal"
)

const QueryTimeoutDuration = time.Second * 5

type Store interface {
	// Load returns the stored cells and rates; DefaultDailyPrice is left for
	// the caller to fill.
	Load(ctx context.Context) (*Config, error)
	SetCell(ctx context.Context, slot, days int, total decimal.Decimal) error
	DeleteCell(ctx context.Context, slot, days int) error
	SetRate(ctx context.Context, rate Rate) error
}

type Repository struct {
	q dbx.Querier
}

func NewRepository(q dbx.Querier) Store {
	return &Repository{q: q}
}

func (r *Repository) Load(ctx context.Context) (*Config, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	cfg := &Config{
		Cells: make(map[int]map[int]decimal.Decimal),
		Rates: make(map[int]Rate),
	}

	rows, err := r.q.Query(ctx, `SELECT slot, days, total_price FROM slot_pricing_cells`)
	if err != nil {
		return nil, fmt.Errorf("query pricing cells: %w", err)
	}
	for rows.Next() {
		var slot, days int
		var total decimal.Decimal
		if err := rows.Scan(&slot, &days, &total); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan pricing cell: %w", err)
		}
		if cfg.Cells[slot] == nil {
			cfg.Cells[slot] = make(map[int]decimal.Decimal)
		}
		cfg.Cells[slot][days] = total
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pricing cells: %w", err)
	}

	rows, err = r.q.Query(ctx, `SELECT slot, daily_price, monthly_discount_pct FROM slot_pricing_rates`)
	if err != nil {
		return nil, fmt.Errorf("query pricing rates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rate Rate
		if err := rows.Scan(&rate.Slot, &rate.DailyPrice, &rate.MonthlyDiscountPct); err != nil {
			return nil, fmt.Errorf("scan pricing rate: %w", err)
		}
		cfg.Rates[rate.Slot] = rate
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pricing rates: %w", err)
	}

	return cfg, nil
}

func (r *Repository) SetCell(ctx context.Context, slot, days int, total decimal.Decimal) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	_, err := r.q.Exec(ctx, `
		INSERT INTO slot_pricing_cells (slot, days, total_price)
		VALUES ($1, $2, $3)
		ON CONFLICT (slot, days) DO UPDATE SET total_price = EXCLUDED.total_price, updated_at = NOW()
	`, slot, days, total)
	if err != nil {
		return fmt.Errorf("set pricing cell: %w", err)
	}
	return nil
}

func (r *Repository) DeleteCell(ctx context.Context, slot, days int) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	if _, err := r.q.Exec(ctx, `DELETE FROM slot_pricing_cells WHERE slot = $1 AND days = $2`, slot, days); err != nil {
		return fmt.Errorf("delete pricing cell: %w", err)
	}
	return nil
}

func (r *Repository) SetRate(ctx context.Context, rate Rate) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	_, err := r.q.Exec(ctx, `
		INSERT INTO slot_pricing_rates (slot, daily_price, monthly_discount_pct)
		VALUES ($1, $2, $3)
		ON CONFLICT (slot) DO UPDATE
		SET daily_price = EXCLUDED.daily_price,
		    monthly_discount_pct = EXCLUDED.monthly_discount_pct,
		    updated_at = NOW()
	`, rate.Slot, rate.DailyPrice, rate.MonthlyDiscountPct)
	if err != nil {
		return fmt.Errorf("set pricing rate: %w", err)
	}
	return nil
}
