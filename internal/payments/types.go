package payments

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownProvider     = errors.New("payment provider not registered")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrBadSignature        = errors.New("payment payload signature mismatch")
)

type Provider string

const (
	Khalti Provider = "KHALTI"
	Esewa  Provider = "ESEWA"
)

type Customer struct {
	Name  string
	Email string
	Phone string
}

// Order is what a booking asks a provider to collect.
type Order struct {
	BookingID   int64
	Reference   string
	Amount      decimal.Decimal
	ProductName string
	Customer    Customer
}

// PayableOrder tells the client where to go to pay. Fields is set for
// providers that expect a form POST.
type PayableOrder struct {
	Provider    Provider          `json:"provider"`
	ExternalID  string            `json:"external_id"`
	RedirectURL string            `json:"redirect_url"`
	Method      string            `json:"method"`
	Fields      map[string]string `json:"form_fields,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
}

type Confirmation struct {
	ExternalID string
	Amount     decimal.Decimal
}

// Verification is a provider's verdict on a payment. Only Success moves a
// booking forward; Terminal marks states that will never become Success.
type Verification struct {
	Success    bool           `json:"success"`
	Terminal   bool           `json:"terminal"`
	State      string         `json:"state"`
	ExternalID string         `json:"external_id"`
	Raw        map[string]any `json:"raw,omitempty"`
}
