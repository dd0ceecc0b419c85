package paymentlogs

import (
	"context"
	"encoding/json"
	"fmt"

	"adslots/internal/infra/dbx"
)

type Store interface {
	Insert(ctx context.Context, bookingID int64, logType string, payload any) error
	ListByBooking(ctx context.Context, bookingID int64) ([]Log, error)
}

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) Store {
	return &Repository{q: q}
}

func (r *Repository) Insert(ctx context.Context, bookingID int64, logType string, payload any) error {
	var jb []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payment log: %w", err)
		}
		jb = b
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO slot_payment_logs (booking_id, log_type, payload)
		VALUES ($1, $2, $3)
	`, bookingID, logType, jb)
	if err != nil {
		return fmt.Errorf("insert payment log: %w", err)
	}
	return nil
}

func (r *Repository) ListByBooking(ctx context.Context, bookingID int64) ([]Log, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, booking_id, log_type, payload, created_at
		FROM slot_payment_logs
		WHERE booking_id = $1
		ORDER BY id
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("query payment logs: %w", err)
	}
	defer rows.Close()

	var out []Log
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.BookingID, &l.LogType, &l.Payload, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
