// Package ratelimit implements the sliding-window admission check performed
// before every outbound provider call.
package ratelimit

import (
	"sync"
	"time"
)

type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

// SlidingWindow counts requests in the trailing 60 seconds against a
// per-minute quota, with optional hourly and daily quotas on the same stamp
// log. Timestamps past the longest configured window are purged on every
// check so the log never grows unbounded.
type SlidingWindow struct {
	mu        sync.Mutex
	perMinute int
	perHour   int
	perDay    int
	stamps    []time.Time
	now       func() time.Time
}

func NewSlidingWindow(perMinute int) *SlidingWindow {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &SlidingWindow{perMinute: perMinute, now: time.Now}
}

// WithQuotas adds hourly and daily ceilings. Zero disables a ceiling.
func (w *SlidingWindow) WithQuotas(perHour, perDay int) *SlidingWindow {
	w.perHour = perHour
	w.perDay = perDay
	return w
}

// WithClock overrides the time source. Tests only.
func (w *SlidingWindow) WithClock(now func() time.Time) *SlidingWindow {
	w.now = now
	return w
}

// Check admits or denies one request. On denial ResetTime is the earliest
// counted timestamp in the binding window plus that window's span, i.e. when
// a slot frees up.
func (w *SlidingWindow) Check() Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.purge(now)

	inMinute, oldestMinute := w.countSince(now.Add(-time.Minute))
	if inMinute >= w.perMinute {
		return Result{Allowed: false, Remaining: 0, ResetTime: oldestMinute.Add(time.Minute)}
	}
	if w.perHour > 0 {
		if n, oldest := w.countSince(now.Add(-time.Hour)); n >= w.perHour {
			return Result{Allowed: false, Remaining: 0, ResetTime: oldest.Add(time.Hour)}
		}
	}
	if w.perDay > 0 {
		if n, oldest := w.countSince(now.Add(-24 * time.Hour)); n >= w.perDay {
			return Result{Allowed: false, Remaining: 0, ResetTime: oldest.Add(24 * time.Hour)}
		}
	}

	w.stamps = append(w.stamps, now)
	return Result{Allowed: true, Remaining: w.perMinute - inMinute - 1, ResetTime: now.Add(time.Minute)}
}

func (w *SlidingWindow) countSince(windowStart time.Time) (int, time.Time) {
	n := 0
	var oldest time.Time
	for _, ts := range w.stamps {
		if ts.After(windowStart) {
			if n == 0 {
				oldest = ts
			}
			n++
		}
	}
	return n, oldest
}

// Remaining reports current headroom without recording a request.
func (w *SlidingWindow) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.purge(now)
	windowStart := now.Add(-time.Minute)
	inWindow := 0
	for _, ts := range w.stamps {
		if ts.After(windowStart) {
			inWindow++
		}
	}
	if inWindow >= w.perMinute {
		return 0
	}
	return w.perMinute - inWindow
}

func (w *SlidingWindow) purge(now time.Time) {
	horizon := time.Hour
	if w.perDay > 0 {
		horizon = 24 * time.Hour
	}
	cutoff := now.Add(-horizon)
	keep := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	w.stamps = keep
}
