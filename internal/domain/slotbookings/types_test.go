package slotbookings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBookingPredicates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 30 * time.Minute

	t.Run("unpaid provider hold goes stale after the window", func(t *testing.T) {
		b := &Booking{Status: StatusPending, Provider: ProviderKhalti, CreatedAt: now.Add(-31 * time.Minute)}
		assert.True(t, b.AwaitingPayment())
		assert.True(t, b.StaleHold(now, window))

		b.CreatedAt = now.Add(-29 * time.Minute)
		assert.False(t, b.StaleHold(now, window))
	})

	t.Run("free requests never go stale", func(t *testing.T) {
		b := &Booking{Status: StatusPending, Provider: ProviderFree, CreatedAt: now.Add(-2 * time.Hour)}
		assert.False(t, b.StaleHold(now, window))
		assert.True(t, b.AwaitingActivation())
	})

	t.Run("paid bookings awaiting review are exempt", func(t *testing.T) {
		paid := now.Add(-time.Hour)
		b := &Booking{Status: StatusPending, Provider: ProviderEsewa, PaidAt: &paid, CreatedAt: now.Add(-2 * time.Hour)}
		assert.False(t, b.StaleHold(now, window))
		assert.True(t, b.AwaitingActivation())
	})

	t.Run("active booking ends strictly after ends_at", func(t *testing.T) {
		end := now
		b := &Booking{Status: StatusActive, EndsAt: &end}
		assert.False(t, b.Ended(now))
		assert.True(t, b.Ended(now.Add(time.Second)))
	})
}
