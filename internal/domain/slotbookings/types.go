package slotbookings

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	QueryTimeoutDuration = time.Second * 5

	// OccupancyConstraint is the partial unique index that keeps one live
	// claim per slot.
	OccupancyConstraint = "uniq_slot_bookings_occupancy"
)

var (
	ErrNotFound     = errors.New("booking not found")
	ErrSlotOccupied = errors.New("slot already has a live booking")
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusActive   Status = "ACTIVE"
	StatusExpired  Status = "EXPIRED"
	StatusCanceled Status = "CANCELED"
)

type DurationKind string

const (
	DurationCustom  DurationKind = "CUSTOM"
	DurationMonthly DurationKind = "MONTHLY"
)

func (k DurationKind) Valid() bool {
	return k == DurationCustom || k == DurationMonthly
}

type Provider string

const (
	ProviderFree   Provider = "FREE"
	ProviderKhalti Provider = "KHALTI"
	ProviderEsewa  Provider = "ESEWA"
)

// Paid reports whether the provider collects money through a gateway.
func (p Provider) Paid() bool {
	return p == ProviderKhalti || p == ProviderEsewa
}

// cancel reasons
const (
	ReasonHoldExpired = "HOLD_EXPIRED"
	ReasonAdRejected  = "AD_REJECTED"
	ReasonAdDeleted   = "AD_DELETED"
	ReasonAdmin       = "ADMIN"
)

type Booking struct {
	ID              int64           `json:"id"`
	AdvertisementID int64           `json:"advertisement_id"`
	OwnerID         int64           `json:"owner_id"`
	Slot            int             `json:"slot"`
	DurationKind    DurationKind    `json:"duration_kind"`
	Days            int             `json:"days"`
	Currency        string          `json:"currency"`
	DailyPrice      decimal.Decimal `json:"daily_price"`
	DiscountPct     decimal.Decimal `json:"discount_pct"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Status          Status          `json:"status"`
	Provider        Provider        `json:"provider"`
	ProviderRef     *string         `json:"provider_ref,omitempty"`
	ProviderStatus  *string         `json:"provider_status,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	StartsAt        *time.Time      `json:"starts_at,omitempty"`
	EndsAt          *time.Time      `json:"ends_at,omitempty"`
	OccupancyKey    *int            `json:"-"`
	CancelReason    *string         `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Live bookings hold their slot.
func (b *Booking) Live() bool {
	return b.Status == StatusPending || b.Status == StatusActive
}

// AwaitingPayment is a provisional hold whose payment has not been confirmed.
func (b *Booking) AwaitingPayment() bool {
	return b.Status == StatusPending && b.Provider.Paid() && b.PaidAt == nil
}

// StaleHold reports whether an unpaid hold outlived the window.
func (b *Booking) StaleHold(now time.Time, window time.Duration) bool {
	return b.AwaitingPayment() && b.CreatedAt.Before(now.Add(-window))
}

// Ended reports whether an active booking's period is over.
func (b *Booking) Ended(now time.Time) bool {
	return b.Status == StatusActive && b.EndsAt != nil && b.EndsAt.Before(now)
}

// AwaitingActivation is a booking cleared for payment that only waits for
// the advertisement to be approved.
func (b *Booking) AwaitingActivation() bool {
	return b.Status == StatusPending && b.StartsAt == nil &&
		(b.PaidAt != nil || b.Provider == ProviderFree)
}

type ListFilter struct {
	OwnerID         int64
	AdvertisementID int64
	Status          Status
	Limit           int
	Offset          int
}
