package overrides

import (
	"context"
	"errors"
	"fmt"

	"adslots/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Store interface {
	List(ctx context.Context) ([]Override, error)
	// Get returns nil when the slot has no override.
	Get(ctx context.Context, slot int) (*Override, error)
	Put(ctx context.Context, o *Override) error
	Delete(ctx context.Context, slot int) error
}

type Repository struct {
	q dbx.Querier
}

func NewRepository(q dbx.Querier) Store {
	return &Repository{q: q}
}

func (r *Repository) List(ctx context.Context) ([]Override, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.q.Query(ctx, `
		SELECT slot, advertisement_id, note, created_by, created_at
		FROM slot_overrides
		ORDER BY slot
	`)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()

	var out []Override
	for rows.Next() {
		var o Override
		if err := rows.Scan(&o.Slot, &o.AdvertisementID, &o.Note, &o.CreatedBy, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repository) Get(ctx context.Context, slot int) (*Override, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var o Override
	err := r.q.QueryRow(ctx, `
		SELECT slot, advertisement_id, note, created_by, created_at
		FROM slot_overrides WHERE slot = $1
	`, slot).Scan(&o.Slot, &o.AdvertisementID, &o.Note, &o.CreatedBy, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get override: %w", err)
	}
	return &o, nil
}

// Put creates or replaces the override for o.Slot.
func (r *Repository) Put(ctx context.Context, o *Override) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := r.q.QueryRow(ctx, `
		INSERT INTO slot_overrides (slot, advertisement_id, note, created_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (slot) DO UPDATE
		SET advertisement_id = EXCLUDED.advertisement_id,
		    note = EXCLUDED.note,
		    created_by = EXCLUDED.created_by,
		    created_at = NOW()
		RETURNING created_at
	`, o.Slot, o.AdvertisementID, o.Note, o.CreatedBy).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("put override: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, slot int) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := r.q.Exec(ctx, `DELETE FROM slot_overrides WHERE slot = $1`, slot)
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
