package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"adslots/internal/allocator"
	"adslots/internal/payments"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestApplication() *application {
	return &application{
		config: config{AppScheme: "adslots", FrontendURL: "https://ads.example.com/"},
		logger: zap.NewNop().Sugar(),
	}
}

func TestAllocatorErrorResponse(t *testing.T) {
	app := newTestApplication()

	tests := []struct {
		kind   allocator.Kind
		code   string
		status int
	}{
		{allocator.KindValidation, allocator.CodeInvalidSlot, http.StatusBadRequest},
		{allocator.KindConflict, allocator.CodeSlotOccupied, http.StatusConflict},
		{allocator.KindPaymentNotCompleted, allocator.CodePaymentNotCompleted, http.StatusPaymentRequired},
		{allocator.KindPaymentProvider, allocator.CodePaymentProviderError, http.StatusBadGateway},
		{allocator.KindNotFound, allocator.CodeBookingNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/v1/bookings", nil)
			err := fmt.Errorf("create: %w", &allocator.Error{Kind: tt.kind, Code: tt.code, Message: "nope"})

			app.allocatorErrorResponse(rr, r, err, nil)

			require.Equal(t, tt.status, rr.Code)
			var body errorEnvelope
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.status, body.Status)
			assert.Equal(t, "nope", body.Message)
		})
	}
}

func TestAllocatorErrorResponseCarriesHold(t *testing.T) {
	app := newTestApplication()
	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/bookings", nil)

	err := &allocator.Error{Kind: allocator.KindPaymentProvider, Code: allocator.CodePaymentProviderError, Message: "khalti down"}
	app.allocatorErrorResponse(rr, r, err, map[string]int64{"booking_id": 42})

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), `"booking_id":42`)
}

func TestUntypedErrorIsInternal(t *testing.T) {
	app := newTestApplication()
	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/slots", nil)

	app.allocatorErrorResponse(rr, r, errors.New("connection reset"), nil)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "connection reset")
}

func TestPublicIDFromURL(t *testing.T) {
	id, err := publicIDFromURL("https://res.cloudinary.com/demo/image/upload/v1712345678/ad-banners/ad_4_banner_99.png")
	require.NoError(t, err)
	assert.Equal(t, "ad-banners/ad_4_banner_99", id)

	id, err = publicIDFromURL("https://res.cloudinary.com/demo/image/upload/ad-banners/plain.webp")
	require.NoError(t, err)
	assert.Equal(t, "ad-banners/plain", id)

	_, err = publicIDFromURL("https://example.com/not/a/cloudinary/url.png")
	assert.Error(t, err)
}

func TestAppReturnQuery(t *testing.T) {
	q := appReturn{
		Result:    returnSuccess,
		BookingID: 7,
		Provider:  payments.Khalti,
		Reference: "pidx-1",
		Outcome:   "ACTIVE",
	}.query()

	assert.Equal(t, "success", q.Get("result"))
	assert.Equal(t, "7", q.Get("booking_id"))
	assert.Equal(t, "khalti", q.Get("provider"))
	assert.Equal(t, "pidx-1", q.Get("ref"))
	assert.Equal(t, "ACTIVE", q.Get("status"))
	assert.False(t, q.Has("reason"))
}

func TestRedirectToAppReturn(t *testing.T) {
	app := newTestApplication()
	rr := httptest.NewRecorder()

	app.redirectToAppReturn(rr, appReturn{Result: returnFailed, Provider: payments.Esewa, Reason: "bad_signature"})

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "no-store, max-age=0", rr.Header().Get("Cache-Control"))
	body := rr.Body.String()
	assert.Contains(t, body, "adslots://payments/return?")
	assert.Contains(t, body, "https://ads.example.com/payments/return?")
	assert.Contains(t, body, "bad_signature")
}

func TestWebhookPayload(t *testing.T) {
	t.Run("json body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook?provider=khalti",
			strings.NewReader(`{"pidx":"abc","total_amount":1000}`))
		r.Header.Set("Content-Type", "application/json")

		out, err := webhookPayload(httptest.NewRecorder(), r)
		require.NoError(t, err)
		assert.Equal(t, "abc", out["pidx"])
		assert.Equal(t, "1000", out["total_amount"])
		assert.Equal(t, "khalti", out["provider"])
	})

	t.Run("form body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook",
			strings.NewReader("provider=esewa&transaction_uuid=u-1"))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		out, err := webhookPayload(httptest.NewRecorder(), r)
		require.NoError(t, err)
		assert.Equal(t, "esewa", out["provider"])
		assert.Equal(t, "u-1", out["transaction_uuid"])
	})

	t.Run("broken json", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", strings.NewReader(`{"pidx":`))
		r.Header.Set("Content-Type", "application/json")

		_, err := webhookPayload(httptest.NewRecorder(), r)
		assert.Error(t, err)
	})
}

func TestNepaliPhoneRule(t *testing.T) {
	assert.NoError(t, Validate.Struct(StartPaymentPayload{CustomerPhone: "9841234567"}))
	assert.NoError(t, Validate.Struct(StartPaymentPayload{}))
	assert.Error(t, Validate.Struct(StartPaymentPayload{CustomerPhone: "12345"}))
}

func TestCreateBookingPayloadDays(t *testing.T) {
	payload := func(days int) CreateBookingPayload {
		return CreateBookingPayload{Slot: 2, DurationKind: "CUSTOM", Days: days}
	}

	assert.NoError(t, Validate.Struct(payload(0)))
	assert.NoError(t, Validate.Struct(payload(1)))
	assert.NoError(t, Validate.Struct(payload(30)))
	assert.Error(t, Validate.Struct(payload(31)))
	assert.Error(t, Validate.Struct(payload(45)))
	assert.Error(t, Validate.Struct(payload(-3)))
}
