package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaEdge(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	w := NewSlidingWindow(5).WithClock(func() time.Time { return now })

	for i := 0; i < 5; i++ {
		res := w.Check()
		require.True(t, res.Allowed, "request %d should be admitted", i+1)
		assert.Equal(t, 5-i-1, res.Remaining)
		now = now.Add(time.Second)
	}

	res := w.Check()
	require.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	// The slot frees one minute after the oldest counted request.
	assert.Equal(t, base.Add(time.Minute), res.ResetTime)
}

func TestWindowSlides(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w := NewSlidingWindow(2).WithClock(func() time.Time { return now })

	require.True(t, w.Check().Allowed)
	require.True(t, w.Check().Allowed)
	require.False(t, w.Check().Allowed)

	now = now.Add(61 * time.Second)
	assert.True(t, w.Check().Allowed, "old stamps must fall out of the window")
}

func TestRemainingDoesNotConsume(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w := NewSlidingWindow(3).WithClock(func() time.Time { return now })

	assert.Equal(t, 3, w.Remaining())
	assert.Equal(t, 3, w.Remaining())

	w.Check()
	assert.Equal(t, 2, w.Remaining())
}

func TestHourlyQuotaBinds(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	w := NewSlidingWindow(2).WithQuotas(3, 0).WithClock(func() time.Time { return now })

	require.True(t, w.Check().Allowed)
	require.True(t, w.Check().Allowed)
	now = now.Add(2 * time.Minute)
	require.True(t, w.Check().Allowed)

	// Minute window has headroom but the hourly ceiling is reached.
	now = now.Add(2 * time.Minute)
	res := w.Check()
	require.False(t, res.Allowed)
	assert.Equal(t, base.Add(time.Hour), res.ResetTime)

	now = base.Add(61 * time.Minute)
	assert.True(t, w.Check().Allowed)
}

func TestDailyQuotaRetainsStamps(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w := NewSlidingWindow(10).WithQuotas(0, 3).WithClock(func() time.Time { return now })

	require.True(t, w.Check().Allowed)
	now = now.Add(2 * time.Hour)
	require.True(t, w.Check().Allowed)
	require.True(t, w.Check().Allowed)
	assert.False(t, w.Check().Allowed, "daily ceiling counts stamps older than an hour")
}

func TestOldStampsPurged(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w := NewSlidingWindow(10).WithClock(func() time.Time { return now })

	for i := 0; i < 10; i++ {
		w.Check()
	}
	now = now.Add(2 * time.Hour)
	w.Check()
	assert.Len(t, w.stamps, 1)
}
