package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	khaltiProdURL = "https://khalti.com/api/v2"
	khaltiDevURL  = "https://dev.khalti.com/api/v2"

	khaltiProdPayURL = "https://pay.khalti.com/"
	khaltiDevPayURL  = "https://test-pay.khalti.com/"
)

type KhaltiConfig struct {
	SecretKey    string
	ReturnURL    string
	WebsiteURL   string
	IsProduction bool
	// BaseURL overrides the environment default.
	BaseURL string
	// PayURL is the checkout page a pidx is opened on.
	PayURL string
}

// KhaltiAdapter talks to the Khalti ePayment (KPG-2) API.
type KhaltiAdapter struct {
	cfg        KhaltiConfig
	httpClient *http.Client
}

func NewKhaltiAdapter(cfg KhaltiConfig, client *http.Client) *KhaltiAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = khaltiDevURL
		if cfg.IsProduction {
			cfg.BaseURL = khaltiProdURL
		}
	}
	if cfg.PayURL == "" {
		cfg.PayURL = khaltiDevPayURL
		if cfg.IsProduction {
			cfg.PayURL = khaltiProdPayURL
		}
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &KhaltiAdapter{cfg: cfg, httpClient: client}
}

func (k *KhaltiAdapter) Provider() Provider { return Khalti }

// toPaisa converts rupees to Khalti's integer paisa amount.
func toPaisa(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (k *KhaltiAdapter) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(k.cfg.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "key "+k.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

func (k *KhaltiAdapter) CreatePayableOrder(ctx context.Context, order Order) (PayableOrder, error) {
	payload := map[string]any{
		"return_url":          k.cfg.ReturnURL,
		"website_url":         k.cfg.WebsiteURL,
		"amount":              toPaisa(order.Amount),
		"purchase_order_id":   order.Reference,
		"purchase_order_name": order.ProductName,
		"customer_info": map[string]string{
			"name":  order.Customer.Name,
			"email": order.Customer.Email,
			"phone": order.Customer.Phone,
		},
	}

	status, raw, err := k.post(ctx, "/epayment/initiate/", payload)
	if err != nil {
		return PayableOrder{}, fmt.Errorf("khalti initiate request: %w", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return PayableOrder{}, fmt.Errorf("khalti initiate failed: http=%d body=%s", status, string(raw))
	}

	var res struct {
		Pidx       string `json:"pidx"`
		PaymentURL string `json:"payment_url"`
		ExpiresAt  string `json:"expires_at"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return PayableOrder{}, fmt.Errorf("khalti initiate decode: %w body=%s", err, string(raw))
	}
	if res.Pidx == "" || res.PaymentURL == "" {
		return PayableOrder{}, fmt.Errorf("khalti initiate: missing pidx or payment_url body=%s", string(raw))
	}

	po := PayableOrder{
		ExternalID:  res.Pidx,
		RedirectURL: res.PaymentURL,
		Method:      http.MethodGet,
	}
	if t, err := time.Parse(time.RFC3339, res.ExpiresAt); err == nil {
		po.ExpiresAt = &t
	}
	return po, nil
}

// ResumeOrder reopens the checkout for an initiated pidx. Khalti keeps a pidx
// payable until it expires, so a lost redirect does not need a new order.
func (k *KhaltiAdapter) ResumeOrder(pidx string, _ Order) (PayableOrder, bool) {
	pidx = strings.TrimSpace(pidx)
	if pidx == "" {
		return PayableOrder{}, false
	}
	return PayableOrder{
		ExternalID:  pidx,
		RedirectURL: k.cfg.PayURL + "?pidx=" + url.QueryEscape(pidx),
		Method:      http.MethodGet,
	}, true
}

// ConfirmOrder runs the lookup API. Only "Completed" with the expected
// amount is a success.
func (k *KhaltiAdapter) ConfirmOrder(ctx context.Context, c Confirmation) (Verification, error) {
	pidx := strings.TrimSpace(c.ExternalID)
	if pidx == "" {
		return Verification{}, fmt.Errorf("khalti lookup requires pidx")
	}

	status, raw, err := k.post(ctx, "/epayment/lookup/", map[string]string{"pidx": pidx})
	if err != nil {
		return Verification{}, fmt.Errorf("khalti lookup request: %w", err)
	}

	// Expired and canceled payments come back as 400 with a normal body.
	var res struct {
		Pidx          string `json:"pidx"`
		TotalAmount   int64  `json:"total_amount"`
		Status        string `json:"status"`
		TransactionID any    `json:"transaction_id"`
	}
	if err := json.Unmarshal(raw, &res); err != nil || res.Status == "" {
		return Verification{}, fmt.Errorf("khalti lookup decode: http=%d body=%s", status, string(raw))
	}

	state := strings.TrimSpace(res.Status)
	v := Verification{
		State:      state,
		ExternalID: pidx,
		Raw: map[string]any{
			"http_status": status,
			"body":        json.RawMessage(raw),
		},
	}

	switch strings.ToLower(state) {
	case "completed":
		v.Terminal = true
		v.Success = true
		if c.Amount.IsPositive() && res.TotalAmount != toPaisa(c.Amount) {
			v.Success = false
			v.State = "AMOUNT_MISMATCH"
		}
	case "refunded", "expired", "user canceled", "partially refunded":
		v.Terminal = true
	}
	return v, nil
}
