package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"adslots/internal/allocator"
	"adslots/internal/domain/advertisements"
	"adslots/internal/domain/slotbookings"
	"adslots/internal/domain/users"
	"adslots/internal/params"
	"adslots/internal/payments"
)

type CreateBookingPayload struct {
	Slot          int                    `json:"slot"`
	DurationKind  string                 `json:"duration_kind"`
	Days          int                    `json:"days" validate:"omitempty,min=1,max=30"`
	Provider      string                 `json:"provider"`
	Advertisement advertisements.Content `json:"advertisement"`
	CustomerPhone string                 `json:"customer_phone" validate:"omitempty,nepaliphone"`
}

type StartPaymentPayload struct {
	CustomerPhone string `json:"customer_phone" validate:"omitempty,nepaliphone"`
}

type ConfirmPaymentPayload struct {
	ProviderReference string `json:"provider_reference" validate:"required,max=200"`
}

type bookingResponse struct {
	BookingID int64                  `json:"booking_id"`
	Status    slotbookings.Status    `json:"status"`
	Booking   *slotbookings.Booking  `json:"booking"`
	Payment   *payments.PayableOrder `json:"payment,omitempty"`
}

func newBookingResponse(res *allocator.CreateResult) *bookingResponse {
	if res == nil || res.Booking == nil {
		return nil
	}
	return &bookingResponse{
		BookingID: res.Booking.ID,
		Status:    res.Booking.Status,
		Booking:   res.Booking,
		Payment:   res.Payment,
	}
}

func customerOf(u *users.User, phone string) payments.Customer {
	if phone == "" {
		phone = u.Phone
	}
	return payments.Customer{Name: u.DisplayName(), Email: u.Email, Phone: phone}
}

// createBookingHandler godoc
//
//	@Summary		Book a slot
//	@Description	Claims a slot for the caller's advertisement. Paid slots return the provider redirect; free slots wait for moderation.
//	@Tags			Bookings
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		CreateBookingPayload	true	"Booking request"
//	@Success		201		{object}	bookingResponse
//	@Failure		400		{object}	error	"Validation failure (INVALID_SLOT, PAYMENT_REQUIRED, PRICE_NOT_CONFIGURED, ...)"
//	@Failure		409		{object}	error	"SLOT_OCCUPIED or SLOT_OCCUPIED_BY_OVERRIDE"
//	@Failure		502		{object}	error	"Provider failed; the hold is returned in data"
//	@Security		ApiKeyAuth
//	@Router			/bookings [post]
func (app *application) createBookingHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	if user == nil {
		app.unauthorizedErrorResponse(w, r, errors.New("unauthorized request"))
		return
	}

	var payload CreateBookingPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	res, err := app.allocator.Create(ctx, allocator.CreateRequest{
		OwnerID:          user.ID,
		OwnerDisplayName: user.DisplayName(),
		Slot:             payload.Slot,
		DurationKind:     slotbookings.DurationKind(strings.ToUpper(strings.TrimSpace(payload.DurationKind))),
		Days:             payload.Days,
		Provider:         slotbookings.Provider(payload.Provider),
		Content:          payload.Advertisement,
		Customer:         customerOf(user, payload.CustomerPhone),
	})
	if err != nil {
		// a provider failure still hands back the committed hold
		var hold any
		if br := newBookingResponse(res); br != nil {
			hold = br
		}
		app.allocatorErrorResponse(w, r, err, hold)
		return
	}

	app.jsonResponse(w, http.StatusCreated, newBookingResponse(res))
}

// listMyBookingsHandler godoc
//
//	@Summary		List the caller's bookings
//	@Tags			Bookings
//	@Produce		json
//	@Param			status	query		string	false	"PENDING, ACTIVE, EXPIRED or CANCELED"
//	@Param			page	query		int		false	"Page"	default(1)
//	@Param			limit	query		int		false	"Page size (max 30)"	default(15)
//	@Success		200		{object}	bookingPage
//	@Security		ApiKeyAuth
//	@Router			/bookings [get]
func (app *application) listMyBookingsHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	if user == nil {
		app.unauthorizedErrorResponse(w, r, errors.New("unauthorized request"))
		return
	}

	filter, p, err := bookingFilter(r)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	filter.OwnerID = user.ID

	app.writeBookingPage(w, r, filter, p)
}

type bookingPage struct {
	Bookings   []slotbookings.Booking `json:"bookings"`
	Pagination params.Pagination      `json:"pagination"`
}

func bookingFilter(r *http.Request) (slotbookings.ListFilter, params.Pagination, error) {
	q := r.URL.Query()
	p := params.ParsePagination(q)

	status := slotbookings.Status(strings.ToUpper(strings.TrimSpace(q.Get("status"))))
	switch status {
	case "", slotbookings.StatusPending, slotbookings.StatusActive, slotbookings.StatusExpired, slotbookings.StatusCanceled:
	default:
		return slotbookings.ListFilter{}, p, errors.New("invalid status filter")
	}

	return slotbookings.ListFilter{Status: status, Limit: p.Limit, Offset: p.Offset}, p, nil
}

func (app *application) writeBookingPage(w http.ResponseWriter, r *http.Request, filter slotbookings.ListFilter, p params.Pagination) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	list, total, err := app.allocator.ListBookings(ctx, filter)
	if err != nil {
		app.allocatorErrorResponse(w, r, err, nil)
		return
	}
	if list == nil {
		list = []slotbookings.Booking{}
	}
	p.ComputeMeta(total)

	app.jsonResponse(w, http.StatusOK, bookingPage{Bookings: list, Pagination: p})
}

// getMyBookingHandler godoc
//
//	@Summary		Get one of the caller's bookings
//	@Tags			Bookings
//	@Produce		json
//	@Param			bookingID	path		int	true	"Booking ID"
//	@Success		200			{object}	slotbookings.Booking
//	@Failure		404			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/bookings/{bookingID} [get]
func (app *application) getMyBookingHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	if user == nil {
		app.unauthorizedErrorResponse(w, r, errors.New("unauthorized request"))
		return
	}

	bookingID, err := int64Param(r, "bookingID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	b, err := app.allocator.GetBooking(ctx, bookingID, user.ID)
	if err != nil {
		app.allocatorErrorResponse(w, r, err, nil)
		return
	}

	app.jsonResponse(w, http.StatusOK, b)
}

// startPaymentHandler godoc
//
//	@Summary		Restart payment for an unpaid hold
//	@Description	A paid current order is applied and an open one is resumed where the provider allows it. Only a closed or missing order is replaced. The hold window is not extended.
//	@Tags			Bookings
//	@Accept			json
//	@Produce		json
//	@Param			bookingID	path		int					true	"Booking ID"
//	@Param			payload		body		StartPaymentPayload	false	"Customer details"
//	@Success		200			{object}	payments.PayableOrder
//	@Failure		409			{object}	error	"BOOKING_CLOSED, ALREADY_PAID, HOLD_EXPIRED or PAYMENT_IN_PROGRESS"
//	@Failure		502			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/bookings/{bookingID}/payment [post]
func (app *application) startPaymentHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	if user == nil {
		app.unauthorizedErrorResponse(w, r, errors.New("unauthorized request"))
		return
	}

	bookingID, err := int64Param(r, "bookingID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var payload StartPaymentPayload
	if r.ContentLength > 0 {
		if err := readJSON(w, r, &payload); err != nil {
			app.badRequestResponse(w, r, err)
			return
		}
		if err := Validate.Struct(payload); err != nil {
			app.badRequestResponse(w, r, err)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	po, err := app.allocator.StartPayment(ctx, bookingID, user.ID, customerOf(user, payload.CustomerPhone))
	if err != nil {
		app.allocatorErrorResponse(w, r, err, nil)
		return
	}

	app.jsonResponse(w, http.StatusOK, po)
}

// confirmPaymentHandler godoc
//
//	@Summary		Confirm a payment
//	@Description	Verifies the provider reference with the provider. Repeating a confirmation returns the settled outcome.
//	@Tags			Bookings
//	@Accept			json
//	@Produce		json
//	@Param			bookingID	path		int						true	"Booking ID"
//	@Param			payload		body		ConfirmPaymentPayload	true	"Provider reference (pidx or transaction_uuid)"
//	@Success		200			{object}	allocator.ConfirmResult	"status is ACTIVE or PENDING_REVIEW"
//	@Failure		400			{object}	error					"REFERENCE_MISMATCH"
//	@Failure		402			{object}	error					"PAYMENT_NOT_COMPLETED"
//	@Failure		409			{object}	error					"BOOKING_CLOSED"
//	@Failure		502			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/bookings/{bookingID}/confirm [post]
func (app *application) confirmPaymentHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	if user == nil {
		app.unauthorizedErrorResponse(w, r, errors.New("unauthorized request"))
		return
	}

	bookingID, err := int64Param(r, "bookingID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var payload ConfirmPaymentPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	res, err := app.allocator.Confirm(ctx, bookingID, user.ID, strings.TrimSpace(payload.ProviderReference))
	if err != nil {
		app.allocatorErrorResponse(w, r, err, nil)
		return
	}

	app.jsonResponse(w, http.StatusOK, res)
}
