package payments

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEsewaSignature(t *testing.T) {
	// UAT secret key and sample message from the ePay v2 guide
	e := NewEsewaAdapter(EsewaConfig{SecretKey: "8gBm/:&EnhH.1/q"}, nil)
	got := e.Sign(
		[2]string{"total_amount", "100"},
		[2]string{"transaction_uuid", "11-201-13"},
		[2]string{"product_code", "EPAYTEST"},
	)
	assert.Equal(t, "5DZywcrTKD0gia/rsSMcrRHmJl+4Tbol6S+lWgdJ94E=", got)
}

func TestEsewaCreatePayableOrder(t *testing.T) {
	e := NewEsewaAdapter(EsewaConfig{
		MerchantCode: "EPAYTEST",
		SecretKey:    "secret",
		SuccessURL:   "https://api.test/v1/payments/esewa/return",
		FailureURL:   "https://api.test/v1/payments/esewa/return?result=failure",
	}, nil)

	po, err := e.CreatePayableOrder(context.Background(), Order{Amount: decimal.RequireFromString("45")})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, po.Method)
	assert.Equal(t, esewaTestFormURL, po.RedirectURL)
	assert.Equal(t, "45.00", po.Fields["total_amount"])
	assert.Equal(t, po.ExternalID, po.Fields["transaction_uuid"])
	assert.Equal(t, e.Sign(
		[2]string{"total_amount", "45.00"},
		[2]string{"transaction_uuid", po.ExternalID},
		[2]string{"product_code", "EPAYTEST"},
	), po.Fields["signature"])

	again, err := e.CreatePayableOrder(context.Background(), Order{Amount: decimal.RequireFromString("45")})
	require.NoError(t, err)
	assert.NotEqual(t, po.ExternalID, again.ExternalID)
}

func TestEsewaConfirmOrder(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"product_code":     r.URL.Query().Get("product_code"),
			"total_amount":     r.URL.Query().Get("total_amount"),
			"transaction_uuid": r.URL.Query().Get("transaction_uuid"),
		}
		status := "COMPLETE"
		if r.URL.Query().Get("transaction_uuid") == "tx-pending" {
			status = "PENDING"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"product_code":     "EPAYTEST",
			"transaction_uuid": r.URL.Query().Get("transaction_uuid"),
			"total_amount":     45.0,
			"status":           status,
			"ref_id":           "0001TS9",
		})
	}))
	defer srv.Close()

	e := NewEsewaAdapter(EsewaConfig{MerchantCode: "EPAYTEST", SecretKey: "secret", StatusURL: srv.URL + "/"}, srv.Client())

	v, err := e.ConfirmOrder(context.Background(), Confirmation{ExternalID: "tx-1", Amount: decimal.RequireFromString("45")})
	require.NoError(t, err)
	assert.True(t, v.Success)
	assert.True(t, v.Terminal)
	assert.Equal(t, "COMPLETE", v.State)
	assert.Equal(t, map[string]string{"product_code": "EPAYTEST", "total_amount": "45.00", "transaction_uuid": "tx-1"}, gotQuery)

	v, err = e.ConfirmOrder(context.Background(), Confirmation{ExternalID: "tx-pending", Amount: decimal.RequireFromString("45")})
	require.NoError(t, err)
	assert.False(t, v.Success)
	assert.False(t, v.Terminal)
}

func TestEsewaDecodeReturn(t *testing.T) {
	e := NewEsewaAdapter(EsewaConfig{MerchantCode: "EPAYTEST", SecretKey: "secret"}, nil)

	encode := func(fields map[string]any) string {
		b, err := json.Marshal(fields)
		require.NoError(t, err)
		return base64.StdEncoding.EncodeToString(b)
	}

	fields := map[string]any{
		"transaction_code":   "000AWEO",
		"status":             "COMPLETE",
		"total_amount":       "45.0",
		"transaction_uuid":   "tx-1",
		"product_code":       "EPAYTEST",
		"signed_field_names": "transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names",
	}
	fields["signature"] = e.Sign(
		[2]string{"transaction_code", "000AWEO"},
		[2]string{"status", "COMPLETE"},
		[2]string{"total_amount", "45.0"},
		[2]string{"transaction_uuid", "tx-1"},
		[2]string{"product_code", "EPAYTEST"},
		[2]string{"signed_field_names", fields["signed_field_names"].(string)},
	)

	p, err := e.DecodeReturn(encode(fields))
	require.NoError(t, err)
	assert.Equal(t, "tx-1", p.TransactionUUID)
	assert.Equal(t, "COMPLETE", p.Status)

	fields["total_amount"] = "1.0"
	_, err = e.DecodeReturn(encode(fields))
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = e.DecodeReturn("%%%")
	assert.Error(t, err)
}
