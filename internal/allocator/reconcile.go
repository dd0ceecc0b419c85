package allocator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"adslots/internal/domain/paymentlogs"
	"adslots/internal/domain/slotbookings"
	"adslots/internal/domain/storage"
	"adslots/internal/payments"
)

// StartPayment (re)creates the provider order for an unpaid hold, e.g. when
// the first redirect was lost. An order issued earlier is checked with the
// provider first and is only replaced once it can no longer be paid.
func (s *Service) StartPayment(ctx context.Context, bookingID, ownerID int64, customer payments.Customer) (*payments.PayableOrder, error) {
	b, err := s.GetBooking(ctx, bookingID, ownerID)
	if err != nil {
		return nil, err
	}

	switch {
	case b.Status != slotbookings.StatusPending:
		return nil, conflictError(CodeBookingClosed, "booking %d is %s", b.ID, strings.ToLower(string(b.Status)))
	case !b.Provider.Paid():
		return nil, validationError(CodePaymentNotApplicable, "booking %d is a free request", b.ID)
	case b.PaidAt != nil:
		return nil, conflictError(CodeAlreadyPaid, "booking %d is already paid", b.ID)
	case b.StaleHold(s.now(), s.cfg.HoldWindow):
		return nil, conflictError(CodeHoldExpired, "the hold on slot %d has expired", b.Slot)
	}
	if b.ProviderRef != nil {
		return s.reopenPayment(ctx, b, customer)
	}
	return s.startPayment(ctx, b, customer)
}

// reopenPayment looks up the booking's current order. A paid order is
// applied to the booking, an open one is resumed when the provider allows
// it, and only a dead order is replaced by a new one.
func (s *Service) reopenPayment(ctx context.Context, b *slotbookings.Booking, customer payments.Customer) (*payments.PayableOrder, error) {
	provider := payments.Provider(b.Provider)
	ref := *b.ProviderRef

	v, err := s.gateways.ConfirmOrder(ctx, provider, payments.Confirmation{
		ExternalID: ref,
		Amount:     b.TotalPrice,
	})
	if err != nil {
		s.metrics.gatewayError(string(provider), "confirm")
		s.logPayment(ctx, b.ID, paymentlogs.TypeError, map[string]any{"stage": "restart", "error": err.Error()})
		s.logger.Warnw("previous order lookup failed", "booking_id", b.ID, "provider", provider, "ref", ref, "error", err)
		return nil, providerError(err)
	}
	s.logPayment(ctx, b.ID, paymentlogs.TypeResponse, v)

	switch {
	case v.Success:
		res, err := s.ConfirmPayment(ctx, b.ID, v)
		if err != nil {
			return nil, err
		}
		return nil, conflictError(CodeAlreadyPaid, "booking %d is already paid (%s)", b.ID, strings.ToLower(string(res.Outcome)))

	case !v.Terminal:
		order, err := s.order(b, customer)
		if err != nil {
			return nil, err
		}
		if po, ok := s.gateways.ResumeOrder(provider, ref, order); ok {
			s.logger.Infow("payment order resumed", "booking_id", b.ID, "provider", provider, "ref", ref, "state", v.State)
			return &po, nil
		}
		return nil, conflictError(CodePaymentInProgress, "payment %s for booking %d is still open with %s", ref, b.ID, provider)
	}

	s.logger.Infow("replacing closed payment order", "booking_id", b.ID, "provider", provider, "ref", ref, "state", v.State)
	return s.startPayment(ctx, b, customer)
}

func (s *Service) reference(bookingID int64) (string, error) {
	if s.refs == nil {
		return fmt.Sprintf("AD-%d", bookingID), nil
	}
	return s.refs.Encode(bookingID)
}

func (s *Service) order(b *slotbookings.Booking, customer payments.Customer) (payments.Order, error) {
	ref, err := s.reference(b.ID)
	if err != nil {
		return payments.Order{}, err
	}
	return payments.Order{
		BookingID:   b.ID,
		Reference:   ref,
		Amount:      b.TotalPrice,
		ProductName: fmt.Sprintf("Slot %d advertisement, %d days", b.Slot, b.Days),
		Customer:    customer,
	}, nil
}

func (s *Service) startPayment(ctx context.Context, b *slotbookings.Booking, customer payments.Customer) (*payments.PayableOrder, error) {
	provider := payments.Provider(b.Provider)
	order, err := s.order(b, customer)
	if err != nil {
		return nil, err
	}

	s.logPayment(ctx, b.ID, paymentlogs.TypeRequest, map[string]any{
		"provider":  provider,
		"reference": order.Reference,
		"amount":    b.TotalPrice.String(),
	})

	po, err := s.gateways.CreatePayableOrder(ctx, provider, order)
	if err != nil {
		s.metrics.gatewayError(string(provider), "create")
		s.logPayment(ctx, b.ID, paymentlogs.TypeError, map[string]any{"stage": "create", "error": err.Error()})
		s.logger.Warnw("payment initiation failed", "booking_id", b.ID, "provider", provider, "error", err)
		return nil, providerError(err)
	}
	s.logPayment(ctx, b.ID, paymentlogs.TypeResponse, po)

	err = s.store.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.Bookings.SetProviderRef(ctx, b.ID, po.ExternalID)
	})
	if err != nil {
		return nil, err
	}
	b.ProviderRef = &po.ExternalID
	return &po, nil
}

// Confirm asks the provider about the booking's payment and applies the
// verdict. The caller's reference must match the one the provider issued.
func (s *Service) Confirm(ctx context.Context, bookingID, ownerID int64, reference string) (*ConfirmResult, error) {
	b, err := s.GetBooking(ctx, bookingID, ownerID)
	if err != nil {
		return nil, err
	}
	return s.confirm(ctx, b, reference)
}

// BookingByReference finds the booking a provider reference was issued for.
func (s *Service) BookingByReference(ctx context.Context, provider payments.Provider, reference string) (*slotbookings.Booking, error) {
	var b *slotbookings.Booking
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		b, err = tx.Bookings.GetByProviderRef(ctx, slotbookings.Provider(provider), reference)
		if errors.Is(err, slotbookings.ErrNotFound) {
			return notFoundError(CodeBookingNotFound, "no booking for %s reference %q", provider, reference)
		}
		return err
	})
	return b, err
}

// ConfirmByReference resolves a provider return or webhook to its booking.
func (s *Service) ConfirmByReference(ctx context.Context, provider payments.Provider, reference string) (*ConfirmResult, error) {
	b, err := s.BookingByReference(ctx, provider, reference)
	if err != nil {
		return nil, err
	}
	return s.confirm(ctx, b, reference)
}

func (s *Service) confirm(ctx context.Context, b *slotbookings.Booking, reference string) (*ConfirmResult, error) {
	if r := settled(b); r != nil {
		return r, nil
	}
	if !b.Provider.Paid() {
		return nil, validationError(CodePaymentNotApplicable, "booking %d is a free request", b.ID)
	}
	if b.ProviderRef == nil || *b.ProviderRef != reference {
		return nil, validationError(CodeReferenceMismatch, "payment reference does not match booking %d", b.ID)
	}

	provider := payments.Provider(b.Provider)
	v, err := s.gateways.ConfirmOrder(ctx, provider, payments.Confirmation{
		ExternalID: reference,
		Amount:     b.TotalPrice,
	})
	if err != nil {
		s.metrics.gatewayError(string(provider), "confirm")
		s.logPayment(ctx, b.ID, paymentlogs.TypeError, map[string]any{"stage": "confirm", "error": err.Error()})
		s.logger.Warnw("payment confirmation failed", "booking_id", b.ID, "provider", provider, "error", err)
		return nil, providerError(err)
	}
	s.logPayment(ctx, b.ID, paymentlogs.TypeResponse, v)

	return s.ConfirmPayment(ctx, b.ID, v)
}

// RecordWebhook stores a raw provider callback against its booking.
func (s *Service) RecordWebhook(ctx context.Context, bookingID int64, payload any) {
	s.logPayment(ctx, bookingID, paymentlogs.TypeWebhook, payload)
}

// RecordRedirect stores the query a provider appended to the browser return.
func (s *Service) RecordRedirect(ctx context.Context, bookingID int64, payload any) {
	s.logPayment(ctx, bookingID, paymentlogs.TypeRedirect, payload)
}

func (s *Service) PaymentLogs(ctx context.Context, bookingID int64) ([]paymentlogs.Log, error) {
	var logs []paymentlogs.Log
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		logs, err = tx.PayLogs.ListByBooking(ctx, bookingID)
		return err
	})
	return logs, err
}

// logPayment appends to the audit trail. Failures are logged and swallowed so
// they never change a payment outcome.
func (s *Service) logPayment(ctx context.Context, bookingID int64, logType string, payload any) {
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.PayLogs.Insert(ctx, bookingID, logType, payload)
	})
	if err != nil {
		s.logger.Errorw("payment log write failed", "booking_id", bookingID, "type", logType, "error", err)
	}
}
