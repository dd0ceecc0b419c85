package allocator

import (
	"context"
	"errors"
	"strings"

	"adslots/internal/domain/advertisements"
	"adslots/internal/domain/overrides"
	"adslots/internal/domain/pricing"
	"adslots/internal/domain/slotbookings"
	"adslots/internal/domain/storage"

	"github.com/shopspring/decimal"
)

// AdminActivate starts a pending booking by hand. The booking must already be
// paid (or free) and its advertisement approved.
func (s *Service) AdminActivate(ctx context.Context, bookingID int64) (*slotbookings.Booking, error) {
	var b *slotbookings.Booking
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		if b, err = s.lockBooking(ctx, tx, bookingID); err != nil {
			return err
		}
		if b.Status != slotbookings.StatusPending {
			return conflictError(CodeBookingClosed, "booking %d is %s", b.ID, strings.ToLower(string(b.Status)))
		}
		if b.Provider.Paid() && b.PaidAt == nil {
			return conflictError(CodePaymentRequired, "booking %d has not been paid", b.ID)
		}

		ad, err := s.getAdvertisement(ctx, tx, b.AdvertisementID)
		if err != nil {
			return err
		}
		if !ad.Approved() {
			return conflictError(CodeAdNotApproved, "advertisement %d is %s", ad.ID, strings.ToLower(string(ad.Status)))
		}
		return s.activate(ctx, tx, b, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.onActivated(ctx, *b)
	return b, nil
}

// AdminCancel cancels a live booking and frees its slot.
func (s *Service) AdminCancel(ctx context.Context, bookingID int64, reason string) (*slotbookings.Booking, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = slotbookings.ReasonAdmin
	}

	var b *slotbookings.Booking
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		if b, err = s.lockBooking(ctx, tx, bookingID); err != nil {
			return err
		}
		if !b.Live() {
			return conflictError(CodeBookingClosed, "booking %d is %s", b.ID, strings.ToLower(string(b.Status)))
		}
		if err := tx.Bookings.Cancel(ctx, b.ID, reason); err != nil {
			return err
		}
		b.Status = slotbookings.StatusCanceled
		b.OccupancyKey = nil
		b.CancelReason = &reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.onCanceled(ctx, []slotbookings.Booking{*b}, slotbookings.ReasonAdmin)
	return b, nil
}

// GetBooking returns a booking. A non-zero ownerID restricts the lookup to
// that owner's bookings.
func (s *Service) GetBooking(ctx context.Context, bookingID, ownerID int64) (*slotbookings.Booking, error) {
	var b *slotbookings.Booking
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		b, err = tx.Bookings.GetByID(ctx, bookingID)
		if errors.Is(err, slotbookings.ErrNotFound) || (err == nil && ownerID != 0 && b.OwnerID != ownerID) {
			return notFoundError(CodeBookingNotFound, "booking %d not found", bookingID)
		}
		return err
	})
	return b, err
}

func (s *Service) ListBookings(ctx context.Context, filter slotbookings.ListFilter) ([]slotbookings.Booking, int, error) {
	var (
		list  []slotbookings.Booking
		total int
	)
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		list, total, err = tx.Bookings.List(ctx, filter)
		return err
	})
	return list, total, err
}

type OverrideResult struct {
	Override *overrides.Override `json:"override"`
	// Shadowed lists live bookings on the slot that the override hides from
	// the projection. They keep running and are not refunded.
	Shadowed []int64 `json:"shadowed_booking_ids"`
}

// SetOverride pins an approved advertisement to a slot, replacing any
// previous override there.
func (s *Service) SetOverride(ctx context.Context, o overrides.Override) (*OverrideResult, error) {
	if !s.cfg.Layout.Valid(o.Slot) {
		return nil, validationError(CodeInvalidSlot, "slot must be between 1 and %d", s.cfg.Layout.TotalSlots)
	}

	res := &OverrideResult{Override: &o, Shadowed: []int64{}}
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		ad, err := s.getAdvertisement(ctx, tx, o.AdvertisementID)
		if err != nil {
			return err
		}
		if !ad.Approved() {
			return conflictError(CodeAdNotApproved, "advertisement %d is %s", ad.ID, strings.ToLower(string(ad.Status)))
		}

		holder, err := tx.Bookings.SlotHolder(ctx, o.Slot)
		if err != nil {
			return err
		}
		if holder != nil {
			res.Shadowed = append(res.Shadowed, holder.ID)
		}
		return tx.Overrides.Put(ctx, &o)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateProjection(ctx)
	s.logger.Infow("slot override set", "slot", o.Slot, "advertisement_id", o.AdvertisementID, "shadowed", res.Shadowed)
	return res, nil
}

func (s *Service) RemoveOverride(ctx context.Context, slot int) error {
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		err := tx.Overrides.Delete(ctx, slot)
		if errors.Is(err, overrides.ErrNotFound) {
			return notFoundError(CodeOverrideNotFound, "slot %d has no override", slot)
		}
		return err
	})
	if err != nil {
		return err
	}
	s.invalidateProjection(ctx)
	s.logger.Infow("slot override removed", "slot", slot)
	return nil
}

type OverrideView struct {
	overrides.Override
	Advertisement *advertisements.Advertisement `json:"advertisement,omitempty"`
}

func (s *Service) ListOverrides(ctx context.Context) ([]OverrideView, error) {
	var out []OverrideView
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		list, err := tx.Overrides.List(ctx)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(list))
		for _, o := range list {
			ids = append(ids, o.AdvertisementID)
		}
		ads, err := tx.Advertisements.GetByIDs(ctx, ids)
		if err != nil {
			return err
		}

		out = make([]OverrideView, 0, len(list))
		for _, o := range list {
			out = append(out, OverrideView{Override: o, Advertisement: ads[o.AdvertisementID]})
		}
		return nil
	})
	return out, err
}

// PricingTable returns the current pricing snapshot, default included.
func (s *Service) PricingTable(ctx context.Context) (*pricing.Config, error) {
	var cfg *pricing.Config
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		cfg, err = s.pricingConfig(ctx, tx)
		return err
	})
	return cfg, err
}

// SetPriceCell stores the total price for a slot and day count. A nil total
// removes the cell so the slot falls back to its linear rate.
func (s *Service) SetPriceCell(ctx context.Context, slot, days int, total *decimal.Decimal) error {
	if !s.cfg.Layout.Paid(slot) {
		return validationError(CodeInvalidSlot, "only slots 1 to %d are priced", s.cfg.Layout.PaidSlots)
	}
	if days < pricing.MinDays || days > pricing.MaxDays {
		return validationError(CodeInvalidDays, "days must be between %d and %d", pricing.MinDays, pricing.MaxDays)
	}
	if total != nil && total.IsNegative() {
		return validationError(CodeInvalidPrice, "price cannot be negative")
	}

	return s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if total == nil {
			return tx.Pricing.DeleteCell(ctx, slot, days)
		}
		return tx.Pricing.SetCell(ctx, slot, days, *total)
	})
}

func (s *Service) SetDailyRate(ctx context.Context, rate pricing.Rate) error {
	if !s.cfg.Layout.Paid(rate.Slot) {
		return validationError(CodeInvalidSlot, "only slots 1 to %d are priced", s.cfg.Layout.PaidSlots)
	}
	if rate.DailyPrice.IsNegative() {
		return validationError(CodeInvalidPrice, "daily price cannot be negative")
	}
	if rate.MonthlyDiscountPct.IsNegative() || rate.MonthlyDiscountPct.GreaterThan(decimal.NewFromInt(100)) {
		return validationError(CodeInvalidPrice, "monthly discount must be between 0 and 100")
	}

	return s.store.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.Pricing.SetRate(ctx, rate)
	})
}
