package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKhaltiServer(t *testing.T, lookup func(w http.ResponseWriter, pidx string)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/epayment/initiate/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key secret", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 4500, body["amount"])
		assert.Equal(t, "AD-REF", body["purchase_order_id"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pidx":"px-1","payment_url":"https://pay.khalti.test/?pidx=px-1","expires_at":"2026-03-01T12:30:00+05:45","expires_in":1800}`))
	})
	mux.HandleFunc("/epayment/lookup/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		lookup(w, body["pidx"])
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestKhaltiCreatePayableOrder(t *testing.T) {
	srv := newKhaltiServer(t, nil)
	k := NewKhaltiAdapter(KhaltiConfig{SecretKey: "secret", BaseURL: srv.URL}, srv.Client())

	po, err := k.CreatePayableOrder(context.Background(), Order{
		BookingID: 7,
		Reference: "AD-REF",
		Amount:    decimal.RequireFromString("45.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, "px-1", po.ExternalID)
	assert.Equal(t, http.MethodGet, po.Method)
	assert.Contains(t, po.RedirectURL, "pidx=px-1")
	require.NotNil(t, po.ExpiresAt)
}

func TestKhaltiConfirmOrder(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		success  bool
		terminal bool
		state    string
	}{
		{"completed", http.StatusOK, `{"pidx":"px-1","total_amount":4500,"status":"Completed"}`, true, true, "Completed"},
		{"pending", http.StatusOK, `{"pidx":"px-1","total_amount":4500,"status":"Pending"}`, false, false, "Pending"},
		{"expired arrives as 400", http.StatusBadRequest, `{"pidx":"px-1","total_amount":4500,"status":"Expired"}`, false, true, "Expired"},
		{"user canceled", http.StatusBadRequest, `{"pidx":"px-1","total_amount":4500,"status":"User canceled"}`, false, true, "User canceled"},
		{"wrong amount", http.StatusOK, `{"pidx":"px-1","total_amount":100,"status":"Completed"}`, false, true, "AMOUNT_MISMATCH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newKhaltiServer(t, func(w http.ResponseWriter, pidx string) {
				assert.Equal(t, "px-1", pidx)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			k := NewKhaltiAdapter(KhaltiConfig{SecretKey: "secret", BaseURL: srv.URL}, srv.Client())

			v, err := k.ConfirmOrder(context.Background(), Confirmation{ExternalID: "px-1", Amount: decimal.RequireFromString("45")})
			require.NoError(t, err)
			assert.Equal(t, tt.success, v.Success)
			assert.Equal(t, tt.terminal, v.Terminal)
			assert.Equal(t, tt.state, v.State)
		})
	}
}

func TestKhaltiConfirmOrderGarbage(t *testing.T) {
	srv := newKhaltiServer(t, func(w http.ResponseWriter, _ string) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	})
	k := NewKhaltiAdapter(KhaltiConfig{SecretKey: "secret", BaseURL: srv.URL}, srv.Client())

	_, err := k.ConfirmOrder(context.Background(), Confirmation{ExternalID: "px-1"})
	require.Error(t, err)
}
