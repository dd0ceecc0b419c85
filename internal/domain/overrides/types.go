package overrides

import (
	"errors"
	"time"
)

const QueryTimeoutDuration = time.Second * 5

var ErrNotFound = errors.New("slot override not found")

// Override pins an approved advertisement to a slot outside the booking
// lifecycle.
type Override struct {
	Slot            int       `json:"slot"`
	AdvertisementID int64     `json:"advertisement_id"`
	Note            *string   `json:"note,omitempty"`
	CreatedBy       *int64    `json:"created_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
