package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(rps float64, burst int) (*Limiter, *time.Time) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New(Config{RequestsPerSecond: rps, Burst: burst, Enabled: true})
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowBurstThenThrottle(t *testing.T) {
	l, _ := newTestLimiter(1, 3)

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("10.0.0.1")
		require.True(t, ok, "request %d", i)
	}

	ok, retry := l.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.InDelta(t, time.Second, retry, float64(10*time.Millisecond))
}

func TestAllowRefillsOverTime(t *testing.T) {
	l, now := newTestLimiter(2, 1)

	ok, _ := l.Allow("a")
	require.True(t, ok)
	ok, _ = l.Allow("a")
	require.False(t, ok)

	*now = now.Add(500 * time.Millisecond)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
}

func TestClientsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, 1)

	ok, _ := l.Allow("a")
	require.True(t, ok)
	ok, _ = l.Allow("b")
	assert.True(t, ok)
}

func TestPruneDropsIdleClients(t *testing.T) {
	l, now := newTestLimiter(1, 1)

	l.Allow("old")
	*now = now.Add(11 * time.Minute)
	l.Allow("fresh")

	assert.Equal(t, 1, l.Prune())
	assert.Len(t, l.visitors, 1)
	assert.Contains(t, l.visitors, "fresh")
}
