package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"adslots/internal/domain/slotbookings"
)

// listSlotsHandler godoc
//
//	@Summary		List slots with availability and price
//	@Description	Sweeps stale holds, then reports every slot with its tier, whether it can be booked and the quote for the requested duration.
//	@Tags			Slots
//	@Produce		json
//	@Param			duration_kind	query		string	false	"CUSTOM or MONTHLY"	default(CUSTOM)
//	@Param			days			query		int		false	"Days for CUSTOM (1-30)"	default(1)
//	@Success		200				{array}		allocator.SlotAvailability
//	@Failure		400				{object}	error
//	@Failure		500				{object}	error
//	@Router			/slots [get]
func (app *application) listSlotsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	q := r.URL.Query()

	kind := slotbookings.DurationKind(strings.ToUpper(strings.TrimSpace(q.Get("duration_kind"))))
	if kind == "" {
		kind = slotbookings.DurationCustom
	}
	if !kind.Valid() {
		app.badRequestResponse(w, r, fmt.Errorf("duration_kind must be CUSTOM or MONTHLY"))
		return
	}

	days := 1
	if v := strings.TrimSpace(q.Get("days")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 30 {
			app.badRequestResponse(w, r, fmt.Errorf("days must be between 1 and 30"))
			return
		}
		days = n
	}

	slots, err := app.allocator.AvailableSlots(ctx, kind == slotbookings.DurationMonthly, days)
	if err != nil {
		app.allocatorErrorResponse(w, r, err, nil)
		return
	}

	app.jsonResponse(w, http.StatusOK, slots)
}

// activeSlotsHandler godoc
//
//	@Summary		Currently displayed advertisements
//	@Description	Ordered by slot, VIP first. Overrides take precedence over bookings.
//	@Tags			Slots
//	@Produce		json
//	@Success		200	{array}		allocator.ProjectionEntry
//	@Failure		500	{object}	error
//	@Router			/slots/active [get]
func (app *application) activeSlotsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	entries, err := app.allocator.ActiveProjection(ctx)
	if err != nil {
		app.allocatorErrorResponse(w, r, err, nil)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=15")
	app.jsonResponse(w, http.StatusOK, entries)
}
