package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"adslots/internal/domain/advertisements"
	"adslots/internal/domain/overrides"
	"adslots/internal/domain/paymentlogs"
	"adslots/internal/domain/pricing"
	"adslots/internal/params"

	"github.com/shopspring/decimal"
)

type ModerateAdvertisementPayload struct {
	Status string `json:"status" validate:"required,oneof=APPROVED REJECTED PENDING_REVIEW"`
	Reason string `json:"reason" validate:"max=500"`
}

type CancelBookingPayload struct {
	Reason string `json:"reason" validate:"max=100"`
}

type SetOverridePayload struct {
	AdvertisementID int64  `json:"advertisement_id" validate:"required,gt=0"`
	Note            string `json:"note" validate:"max=300"`
}

type SetPriceCellPayload struct {
	Slot int `json:"slot" validate:"required,gt=0"`
	Days int `json:"days" validate:"required,min=1,max=30"`
	// TotalPrice nil removes the cell so the linear rate applies again.
	TotalPrice *decimal.Decimal `json:"total_price"`
}

type SetDailyRatePayload struct {
	DailyPrice         decimal.Decimal `json:"daily_price"`
	MonthlyDiscountPct decimal.Decimal `json:"monthly_discount_pct"`
}

type advertisementPage struct {
	Advertisements []advertisements.Advertisement `json:"advertisements"`
	Pagination     params.Pagination              `json:"pagination"`
}

// adminListAdvertisementsHandler godoc
//
//	@Summary		List advertisements for moderation
//	@Tags			admin-advertisements
//	@Produce		json
//	@Param			status	query		string	false	"PENDING_REVIEW, APPROVED or REJECTED"
//	@Param			page	query		int		false	"Page"
//	@Param			limit	query		int		false	"Page size"
//	@Success		200		{object}	advertisementPage
//	@Security		ApiKeyAuth
//	@Router			/admin/advertisements [get]
func (app *application) adminListAdvertisementsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	q := r.URL.Query()
	p := params.ParsePagination(q)

	ads, total, err := app.allocator.ListAdvertisements(ctx, advertisements.ListFilter{
		Status: advertisements.Status(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		app.allocatorErrorResponse(w, r, err, nil)
		return
	}
	if ads == nil {
		ads = []advertisements.Advertisement{}
	}
	p.ComputeMeta(total)

	app.jsonResponse(w, http.StatusOK, advertisementPage{Advertisements: ads, Pagination: p})
}

// adminModerateAdvertisementHandler godoc
//
//	@Summary		Approve or reject an advertisement
//	@Description	Approval activates the newest booking waiting on it; rejection cancels its live bookings.
//	@Tags			admin-advertisements
//	@Accept			json
//	@Produce		json
//	@Param			adID	path		int								true	"Advertisement ID"
//	@Param			payload	body		ModerateAdvertisementPayload	true	"New status"
//	@Success		200		{object}	allocator.ModerationResult
//	@Failure		400		{object}	error	"REASON_REQUIRED"
//	@Failure		404		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/admin/advertisements/{adID}/status [patch]
func (app *application) adminModerateAdvertisementHandler(w http.ResponseWriter, r *http.Request) {
	adID, err := int64Param(r, "adID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var payload ModerateAdvertisementPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	payload.Status = strings.ToUpper(strings.TrimSpace(payload.Status))
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := app.allocator.Moderate(ctx, adID, advertisements.Status(payload.Status), strings.TrimSpace(payload.Reason))
	if err != nil {
		app.allocatorErrorResponse(w, r, err, nil)
		return
	}

	app.jsonResponse(w, http.StatusOK, res)
}

// adminDeleteAdvertisementHandler godoc
//
//	@Summary		Delete an advertisement
//	@Description	Cancels its live bookings, then removes it and its banner.
//	@Tags			admin-advertisements
//	@Produce		json
//	@Param			adID	path		int	true	"Advertisement ID"
//	@Success		200		{object}	allocator.DeletionResult
//	@Failure		404		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/admin/advertisements/{adID} [delete]
func (app *application) adminDeleteAdvertisementHandler(w http.ResponseWriter, r *http.Request) {
	adID, err := int64Param(r, "adID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()

	res, err := app.allocator.DeleteAdvertisement(ctx, adID)
	if err != nil {
		app.allocatorErrorResponse(w, r, err, nil)
		return
	}

	if err := app.deleteBanner(ctx, res.Advertisement.Content.BannerURL); err != nil {
		app.logger.Warnw("banner cleanup failed", "advertisement_id", adID, "error", err)
	}

	app.jsonResponse(w, http.StatusOK, res)
}

// adminListBookingsHandler godoc
//
//	@Summary		List bookings
//	@Tags			admin-bookings
//	@Produce		json
//	@Param			status	query		string	false	"PENDING, ACTIVE, EXPIRED or CANCELED"
//	@Param			page	query		int		false	"Page"
//	@Param			limit	query		int		false	"Page size"
//	@Success		200		{object}	bookingPage
//	@Security		ApiKeyAuth
//	@Router			/admin/bookings [get]
func (app *application) adminListBookingsHandler(w http.ResponseWriter, r *http.Request) {
	filter, p, err := bookingFilter(r)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	app.writeBookingPage(w, r, filter, p)
}

// adminPaymentLogsHandler godoc
//
//	@Summary		Payment audit trail of a booking
//	@Tags			admin-bookings
//	@Produce		json
//	@Param			bookingID	path	int	true	"Booking ID"
//	@Success		200			{array}	paymentlogs.Log
//	@Security		ApiKeyAuth
//	@Router			/admin/bookings/{bookingID}/payment-logs [get]
func (app *application) adminPaymentLogsHandler(w http.ResponseWriter, r *http.Request) {
	bookingID, err := int64Param(r, "bookingID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	logs, err := app.allocator.PaymentLogs(ctx, bookingID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if logs == nil {
		logs = []paymentlogs.Log{}
	}

	app.jsonResponse(w, http.StatusOK, logs)
}

// adminActivateBookingHandler godoc
//
//	@Summary		Activate a pending booking
//	@Description	For free requests and paid bookings whose advertisement is approved.
//	@Tags			admin-bookings
//	@Produce		json
//	@Param			bookingID	path		int	true	"Booking ID"
//	@Success		200			{object}	slotbookings.Booking
//	@Failure		409			{object}	error	"BOOKING_CLOSED, PAYMENT_REQUIRED or AD_NOT_APPROVED"
//	@Security		ApiKeyAuth
//	@Router			/admin/bookings/{bookingID}/activate [post]
func (app *application) adminActivateBookingHandler(w http.ResponseWriter, r *http.Request) {
	bookingID, err := int64Param(r, "bookingID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	b, err := app.allocator.AdminActivate(ctx, bookingID)
	if err != nil {
		app.allocatorErrorResponse(w, r, err, nil)
		return
	}

	app.jsonResponse(w, http.StatusOK, b)
}

// adminCancelBookingHandler godoc
//
//	@Summary		Cancel a live booking
//	@Tags			admin-bookings
//	@Accept			json
//	@Produce		json
//	@Param			bookingID	path		int						true	"Booking ID"
//	@Param			payload		body		CancelBookingPayload	false	"Cancel reason (defaults to ADMIN)"
//	@Success		200			{object}	slotbookings.Booking
//	@Failure		409			{object}	error	"BOOKING_CLOSED"
//	@Security		ApiKeyAuth
//	@Router			/admin/bookings/{bookingID}/cancel [post]
func (app *application) adminCancelBookingHandler(w http.ResponseWriter, r *http.Request) {
	bookingID, err := int64Param(r, "bookingID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var payload CancelBookingPayload
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

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	b, err := app.allocator.AdminCancel(ctx, bookingID, strings.TrimSpace(payload.Reason))
	if err != nil {
		app.allocatorErrorResponse(w, r, err, nil)
		return
	}

	app.jsonResponse(w, http.StatusOK, b)
}

// adminListOverridesHandler godoc
//
//	@Summary		List slot overrides
//	@Tags			admin-overrides
//	@Produce		json
//	@Success		200	{array}	allocator.OverrideView
//	@Security		ApiKeyAuth
//	@Router			/admin/overrides [get]
func (app *application) adminListOverridesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	views, err := app.allocator.ListOverrides(ctx)
	if err != nil {
		app.allocatorErrorResponse(w, r, err, nil)
		return
	}

	app.jsonResponse(w, http.StatusOK, views)
}

// adminSetOverrideHandler godoc
//
//	@Summary		Pin an approved advertisement to a slot
//	@Description	Blocks new bookings on the slot. Live bookings already on it are kept and listed as shadowed.
//	@Tags			admin-overrides
//	@Accept			json
//	@Produce		json
//	@Param			slot	path		int					true	"Slot"
//	@Param			payload	body		SetOverridePayload	true	"Advertisement to pin"
//	@Success		200		{object}	allocator.OverrideResult
//	@Failure		400		{object}	error	"INVALID_SLOT"
//	@Failure		409		{object}	error	"AD_NOT_APPROVED"
//	@Security		ApiKeyAuth
//	@Router			/admin/overrides/{slot} [put]
func (app *application) adminSetOverrideHandler(w http.ResponseWriter, r *http.Request) {
	slot, err := intParam(r, "slot")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var payload SetOverridePayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	o := overrides.Override{Slot: slot, AdvertisementID: payload.AdvertisementID}
	if note := strings.TrimSpace(payload.Note); note != "" {
		o.Note = &note
	}
	if admin := getUserFromContext(r); admin != nil {
		o.CreatedBy = &admin.ID
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := app.allocator.SetOverride(ctx, o)
	if err != nil {
		app.allocatorErrorResponse(w, r, err, nil)
		return
	}

	app.jsonResponse(w, http.StatusOK, res)
}

// adminRemoveOverrideHandler godoc
//
//	@Summary		Remove a slot override
//	@Tags			admin-overrides
//	@Param			slot	path	int	true	"Slot"
//	@Success		204
//	@Failure		404	{object}	error	"OVERRIDE_NOT_FOUND"
//	@Security		ApiKeyAuth
//	@Router			/admin/overrides/{slot} [delete]
func (app *application) adminRemoveOverrideHandler(w http.ResponseWriter, r *http.Request) {
	slot, err := intParam(r, "slot")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := app.allocator.RemoveOverride(ctx, slot); err != nil {
		app.allocatorErrorResponse(w, r, err, nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// adminPricingHandler godoc
//
//	@Summary		Current pricing table
//	@Tags			admin-pricing
//	@Produce		json
//	@Success		200	{object}	pricing.Config
//	@Security		ApiKeyAuth
//	@Router			/admin/pricing [get]
func (app *application) adminPricingHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	cfg, err := app.allocator.PricingTable(ctx)
	if err != nil {
		app.allocatorErrorResponse(w, r, err, nil)
		return
	}

	app.jsonResponse(w, http.StatusOK, cfg)
}

// adminSetPriceCellHandler godoc
//
//	@Summary		Set or clear a price cell
//	@Description	Sets the total price of a paid slot for a day count. A null total_price removes the cell.
//	@Tags			admin-pricing
//	@Accept			json
//	@Param			payload	body	SetPriceCellPayload	true	"Cell"
//	@Success		204
//	@Failure		400	{object}	error	"INVALID_SLOT, INVALID_DAYS or INVALID_PRICE"
//	@Security		ApiKeyAuth
//	@Router			/admin/pricing/cells [put]
func (app *application) adminSetPriceCellHandler(w http.ResponseWriter, r *http.Request) {
	var payload SetPriceCellPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := app.allocator.SetPriceCell(ctx, payload.Slot, payload.Days, payload.TotalPrice); err != nil {
		app.allocatorErrorResponse(w, r, err, nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// adminSetDailyRateHandler godoc
//
//	@Summary		Set a slot's linear daily rate
//	@Description	Used when no cell exists for the requested day count. The monthly discount applies to MONTHLY bookings only.
//	@Tags			admin-pricing
//	@Accept			json
//	@Param			slot	path	int					true	"Slot"
//	@Param			payload	body	SetDailyRatePayload	true	"Rate"
//	@Success		204
//	@Failure		400	{object}	error
//	@Security		ApiKeyAuth
//	@Router			/admin/pricing/rates/{slot} [put]
func (app *application) adminSetDailyRateHandler(w http.ResponseWriter, r *http.Request) {
	slot, err := intParam(r, "slot")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var payload SetDailyRatePayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	err = app.allocator.SetDailyRate(ctx, pricing.Rate{
		Slot:               slot,
		DailyPrice:         payload.DailyPrice,
		MonthlyDiscountPct: payload.MonthlyDiscountPct,
	})
	if err != nil {
		app.allocatorErrorResponse(w, r, err, nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// adminSweepHandler godoc
//
//	@Summary		Run the expiry sweep now
//	@Tags			admin-bookings
//	@Produce		json
//	@Success		200	{object}	allocator.SweepResult
//	@Security		ApiKeyAuth
//	@Router			/admin/sweep [post]
func (app *application) adminSweepHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	res, err := app.allocator.Sweep(ctx)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, res)
}
