package paymentlogs

import (
	"encoding/json"
	"time"
)

const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeRedirect = "redirect"
	TypeWebhook  = "webhook"
	TypeError    = "error"
)

// Log is one entry of the payment audit trail for a booking.
type Log struct {
	ID        int64           `json:"id"`
	BookingID int64           `json:"booking_id"`
	LogType   string          `json:"log_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
