package slotbookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adslots/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Store interface {
	Insert(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id int64) (*Booking, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*Booking, error)
	GetByProviderRef(ctx context.Context, provider Provider, ref string) (*Booking, error)
	// SlotHolder returns the live booking on slot, or nil when the slot is free.
	SlotHolder(ctx context.Context, slot int) (*Booking, error)
	OccupiedSlots(ctx context.Context) (map[int]int64, error)
	ExpireEnded(ctx context.Context, now time.Time) (int64, error)
	CancelStaleHolds(ctx context.Context, createdBefore time.Time) ([]Booking, error)
	SetProviderRef(ctx context.Context, id int64, ref string) error
	SetProviderStatus(ctx context.Context, id int64, status string) error
	MarkPaid(ctx context.Context, id int64, paidAt time.Time) error
	Activate(ctx context.Context, id int64, startsAt, endsAt time.Time) error
	Cancel(ctx context.Context, id int64, reason string) error
	ListLiveByAdvertisement(ctx context.Context, adID int64) ([]Booking, error)
	LatestAwaitingActivation(ctx context.Context, adID int64) (*Booking, error)
	ListActive(ctx context.Context, now time.Time) ([]Booking, error)
	List(ctx context.Context, filter ListFilter) ([]Booking, int, error)
}

type Repository struct {
	q dbx.Querier
}

func NewRepository(q dbx.Querier) Store {
	return &Repository{q: q}
}

const columns = `
	id, advertisement_id, owner_id, slot, duration_kind, days, currency,
	daily_price, discount_pct, total_price, status, provider, provider_ref,
	provider_status, paid_at, starts_at, ends_at, occupancy_key, cancel_reason,
	created_at, updated_at`

const selectColumns = `SELECT ` + columns + ` FROM slot_bookings`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(
		&b.ID, &b.AdvertisementID, &b.OwnerID, &b.Slot, &b.DurationKind, &b.Days, &b.Currency,
		&b.DailyPrice, &b.DiscountPct, &b.TotalPrice, &b.Status, &b.Provider, &b.ProviderRef,
		&b.ProviderStatus, &b.PaidAt, &b.StartsAt, &b.EndsAt, &b.OccupancyKey, &b.CancelReason,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repository) queryList(ctx context.Context, query string, args ...any) ([]Booking, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *Repository) queryOne(ctx context.Context, query string, args ...any) (*Booking, error) {
	b, err := scanBooking(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// Insert stores a PENDING booking claiming its slot. A concurrent claim on
// the same slot surfaces as ErrSlotOccupied.
func (r *Repository) Insert(ctx context.Context, b *Booking) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := r.q.QueryRow(ctx, `
		INSERT INTO slot_bookings
			(advertisement_id, owner_id, slot, duration_kind, days, currency,
			 daily_price, discount_pct, total_price, status, provider, occupancy_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`,
		b.AdvertisementID, b.OwnerID, b.Slot, b.DurationKind, b.Days, b.Currency,
		b.DailyPrice, b.DiscountPct, b.TotalPrice, b.Status, b.Provider, b.OccupancyKey,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if dbx.UniqueViolation(err, OccupancyConstraint) {
			return ErrSlotOccupied
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()
	return r.queryOne(ctx, selectColumns+` WHERE id = $1`, id)
}

func (r *Repository) GetByIDForUpdate(ctx context.Context, id int64) (*Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()
	return r.queryOne(ctx, selectColumns+` WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repository) GetByProviderRef(ctx context.Context, provider Provider, ref string) (*Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()
	return r.queryOne(ctx, selectColumns+` WHERE provider = $1 AND provider_ref = $2`, provider, ref)
}

func (r *Repository) SlotHolder(ctx context.Context, slot int) (*Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	b, err := r.queryOne(ctx, selectColumns+` WHERE occupancy_key = $1`, slot)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return b, err
}

func (r *Repository) OccupiedSlots(ctx context.Context) (map[int]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.q.Query(ctx, `SELECT occupancy_key, id FROM slot_bookings WHERE occupancy_key IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("query occupied slots: %w", err)
	}
	defer rows.Close()

	out := make(map[int]int64)
	for rows.Next() {
		var slot int
		var id int64
		if err := rows.Scan(&slot, &id); err != nil {
			return nil, fmt.Errorf("scan occupied slot: %w", err)
		}
		out[slot] = id
	}
	return out, rows.Err()
}

func (r *Repository) ExpireEnded(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := r.q.Exec(ctx, `
		UPDATE slot_bookings
		SET status = 'EXPIRED', occupancy_key = NULL, updated_at = NOW()
		WHERE status = 'ACTIVE' AND ends_at < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("expire ended bookings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CancelStaleHolds releases unpaid provider holds created before the cutoff
// and returns them so their owners can be told.
func (r *Repository) CancelStaleHolds(ctx context.Context, createdBefore time.Time) ([]Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	out, err := r.queryList(ctx, `
		UPDATE slot_bookings
		SET status = 'CANCELED', occupancy_key = NULL, cancel_reason = $2, updated_at = NOW()
		WHERE status = 'PENDING'
		  AND provider IN ('KHALTI', 'ESEWA')
		  AND paid_at IS NULL
		  AND created_at < $1
		RETURNING `+columns, createdBefore, ReasonHoldExpired)
	if err != nil {
		return nil, fmt.Errorf("cancel stale holds: %w", err)
	}
	return out, nil
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SetProviderRef(ctx context.Context, id int64, ref string) error {
	if err := r.exec(ctx, `
		UPDATE slot_bookings SET provider_ref = $2, updated_at = NOW() WHERE id = $1
	`, id, ref); err != nil {
		return fmt.Errorf("set provider ref: %w", err)
	}
	return nil
}

func (r *Repository) SetProviderStatus(ctx context.Context, id int64, status string) error {
	if err := r.exec(ctx, `
		UPDATE slot_bookings SET provider_status = $2, updated_at = NOW() WHERE id = $1
	`, id, status); err != nil {
		return fmt.Errorf("set provider status: %w", err)
	}
	return nil
}

func (r *Repository) MarkPaid(ctx context.Context, id int64, paidAt time.Time) error {
	if err := r.exec(ctx, `
		UPDATE slot_bookings SET paid_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING' AND paid_at IS NULL
	`, id, paidAt); err != nil {
		return fmt.Errorf("mark booking paid: %w", err)
	}
	return nil
}

func (r *Repository) Activate(ctx context.Context, id int64, startsAt, endsAt time.Time) error {
	if err := r.exec(ctx, `
		UPDATE slot_bookings
		SET status = 'ACTIVE', starts_at = $2, ends_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
	`, id, startsAt, endsAt); err != nil {
		return fmt.Errorf("activate booking: %w", err)
	}
	return nil
}

func (r *Repository) Cancel(ctx context.Context, id int64, reason string) error {
	if err := r.exec(ctx, `
		UPDATE slot_bookings
		SET status = 'CANCELED', occupancy_key = NULL, cancel_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'ACTIVE')
	`, id, reason); err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}
	return nil
}

func (r *Repository) ListLiveByAdvertisement(ctx context.Context, adID int64) ([]Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	return r.queryList(ctx, selectColumns+`
		WHERE advertisement_id = $1 AND status IN ('PENDING', 'ACTIVE')
		ORDER BY id
		FOR UPDATE
	`, adID)
}

func (r *Repository) LatestAwaitingActivation(ctx context.Context, adID int64) (*Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	b, err := r.queryOne(ctx, selectColumns+`
		WHERE advertisement_id = $1
		  AND status = 'PENDING'
		  AND starts_at IS NULL
		  AND (paid_at IS NOT NULL OR provider = 'FREE')
		ORDER BY created_at DESC, id DESC
		LIMIT 1
		FOR UPDATE
	`, adID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return b, err
}

func (r *Repository) ListActive(ctx context.Context, now time.Time) ([]Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	return r.queryList(ctx, selectColumns+`
		WHERE status = 'ACTIVE' AND ends_at > $1
		ORDER BY slot
	`, now)
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Booking, int, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	const where = `
		WHERE ($1 = 0 OR owner_id = $1)
		  AND ($2 = 0 OR advertisement_id = $2)
		  AND ($3 = '' OR status = $3)`

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM slot_bookings`+where,
		filter.OwnerID, filter.AdvertisementID, string(filter.Status),
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}

	list, err := r.queryList(ctx, selectColumns+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $4 OFFSET $5
	`, filter.OwnerID, filter.AdvertisementID, string(filter.Status), filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}
