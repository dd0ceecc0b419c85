package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	esewaTestFormURL   = "https://rc-epay.esewa.com.np/api/epay/main/v2/form"
	esewaTestStatusURL = "https://rc.esewa.com.np/api/epay/transaction/status/"
	esewaProdFormURL   = "https://epay.esewa.com.np/api/epay/main/v2/form"
	esewaProdStatusURL = "https://epay.esewa.com.np/api/epay/transaction/status/"

	esewaSignedFields = "total_amount,transaction_uuid,product_code"
)

type EsewaConfig struct {
	MerchantCode string
	SecretKey    string
	SuccessURL   string
	FailureURL   string
	IsProduction bool
	FormURL      string
	StatusURL    string
}

// EsewaAdapter implements the eSewa ePay v2 signed-form flow.
type EsewaAdapter struct {
	cfg        EsewaConfig
	httpClient *http.Client
}

func NewEsewaAdapter(cfg EsewaConfig, client *http.Client) *EsewaAdapter {
	if cfg.FormURL == "" {
		cfg.FormURL = esewaTestFormURL
		if cfg.IsProduction {
			cfg.FormURL = esewaProdFormURL
		}
	}
	if cfg.StatusURL == "" {
		cfg.StatusURL = esewaTestStatusURL
		if cfg.IsProduction {
			cfg.StatusURL = esewaProdStatusURL
		}
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &EsewaAdapter{cfg: cfg, httpClient: client}
}

func (e *EsewaAdapter) Provider() Provider { return Esewa }

// Sign computes eSewa's HMAC-SHA256 signature over the ordered
// "name=value" pairs.
func (e *EsewaAdapter) Sign(pairs ...[2]string) string {
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p[0] + "=" + p[1]
	}
	mac := hmac.New(sha256.New, []byte(e.cfg.SecretKey))
	mac.Write([]byte(strings.Join(parts, ",")))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func esewaAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// CreatePayableOrder builds the signed form. Each attempt gets a fresh
// transaction_uuid since eSewa refuses reused ones.
func (e *EsewaAdapter) CreatePayableOrder(ctx context.Context, order Order) (PayableOrder, error) {
	txUUID := uuid.NewString()
	total := esewaAmount(order.Amount)

	signature := e.Sign(
		[2]string{"total_amount", total},
		[2]string{"transaction_uuid", txUUID},
		[2]string{"product_code", e.cfg.MerchantCode},
	)

	return PayableOrder{
		ExternalID:  txUUID,
		RedirectURL: e.cfg.FormURL,
		Method:      http.MethodPost,
		Fields: map[string]string{
			"amount":                  total,
			"tax_amount":              "0",
			"product_service_charge":  "0",
			"product_delivery_charge": "0",
			"total_amount":            total,
			"transaction_uuid":        txUUID,
			"product_code":            e.cfg.MerchantCode,
			"success_url":             e.cfg.SuccessURL,
			"failure_url":             e.cfg.FailureURL,
			"signed_field_names":      esewaSignedFields,
			"signature":               signature,
		},
	}, nil
}

// ConfirmOrder asks the transaction status API, the source of truth for a
// payment regardless of what the browser redirect claimed.
func (e *EsewaAdapter) ConfirmOrder(ctx context.Context, c Confirmation) (Verification, error) {
	txUUID := strings.TrimSpace(c.ExternalID)
	if txUUID == "" {
		return Verification{}, fmt.Errorf("esewa status check requires transaction_uuid")
	}

	q := url.Values{}
	q.Set("product_code", e.cfg.MerchantCode)
	q.Set("total_amount", esewaAmount(c.Amount))
	q.Set("transaction_uuid", txUUID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.StatusURL+"?"+q.Encode(), nil)
	if err != nil {
		return Verification{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Verification{}, fmt.Errorf("esewa status request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Verification{}, fmt.Errorf("esewa status read: %w", err)
	}

	var res struct {
		ProductCode     string `json:"product_code"`
		TransactionUUID string `json:"transaction_uuid"`
		TotalAmount     any    `json:"total_amount"`
		Status          string `json:"status"`
		RefID           any    `json:"ref_id"`
	}
	if err := json.Unmarshal(raw, &res); err != nil || res.Status == "" {
		return Verification{}, fmt.Errorf("esewa status decode: http=%d body=%s", resp.StatusCode, string(raw))
	}

	state := strings.ToUpper(strings.TrimSpace(res.Status))
	v := Verification{
		State:      state,
		ExternalID: txUUID,
		Raw: map[string]any{
			"http_status": resp.StatusCode,
			"body":        json.RawMessage(raw),
		},
	}
	switch state {
	case "COMPLETE":
		v.Success = true
		v.Terminal = true
	case "FULL_REFUND", "PARTIAL_REFUND", "CANCELED", "NOT_FOUND":
		v.Terminal = true
	}
	return v, nil
}

// ReturnPayload is the base64 JSON eSewa appends to the success redirect.
type ReturnPayload struct {
	TransactionCode string
	Status          string
	TotalAmount     string
	TransactionUUID string
	ProductCode     string
}

// DecodeReturn decodes the redirect payload and checks its signature over
// the fields listed in signed_field_names.
func (e *EsewaAdapter) DecodeReturn(data string) (ReturnPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return ReturnPayload{}, fmt.Errorf("esewa return: decode base64: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return ReturnPayload{}, fmt.Errorf("esewa return: decode json: %w", err)
	}

	str := func(k string) string {
		if v, ok := fields[k]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return ""
	}

	signed := str("signed_field_names")
	if signed == "" {
		return ReturnPayload{}, fmt.Errorf("esewa return: missing signed_field_names")
	}
	var pairs [][2]string
	for _, name := range strings.Split(signed, ",") {
		name = strings.TrimSpace(name)
		pairs = append(pairs, [2]string{name, str(name)})
	}
	if !hmac.Equal([]byte(e.Sign(pairs...)), []byte(str("signature"))) {
		return ReturnPayload{}, ErrBadSignature
	}

	p := ReturnPayload{
		TransactionCode: str("transaction_code"),
		Status:          strings.ToUpper(str("status")),
		TotalAmount:     str("total_amount"),
		TransactionUUID: str("transaction_uuid"),
		ProductCode:     str("product_code"),
	}
	if p.TransactionUUID == "" {
		return ReturnPayload{}, fmt.Errorf("esewa return: missing transaction_uuid")
	}
	return p, nil
}
