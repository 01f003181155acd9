// Package ratelimit implements an in-process sliding-window rate guard.
// Use the Redis guard instead when more than one server instance runs.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/ndmx/upscale/internal/domain/security"
)

// Config configures the sliding window.
type Config struct {
	Limit  int
	Window time.Duration
	// SweepEvery is how often Allow drops idle origins. Defaults to Window.
	SweepEvery time.Duration
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig allows 50 requests per origin per hour.
func DefaultConfig() Config {
	return Config{Limit: 50, Window: time.Hour, Now: time.Now}
}

// SlidingWindow keeps the timestamps of accepted requests per key and
// admits a request only when fewer than Limit fall inside the window.
type SlidingWindow struct {
	mu         sync.Mutex
	requests   map[string][]time.Time
	limit      int
	window     time.Duration
	sweepEvery time.Duration
	lastSweep  time.Time
	now        func() time.Time
}

var _ security.RateGuard = (*SlidingWindow)(nil)

// NewSlidingWindow creates a new limiter.
func NewSlidingWindow(cfg Config) *SlidingWindow {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = cfg.Window
	}
	return &SlidingWindow{
		requests:   make(map[string][]time.Time),
		limit:      cfg.Limit,
		window:     cfg.Window,
		sweepEvery: cfg.SweepEvery,
		lastSweep:  cfg.Now(),
		now:        cfg.Now,
	}
}

// Allow implements security.RateGuard. Rejected requests are not recorded,
// so a client hammering the endpoint does not extend its own ban.
// Origins idle for a whole window are dropped every SweepEvery.
func (sw *SlidingWindow) Allow(_ context.Context, key string) (security.Decision, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	if now.Sub(sw.lastSweep) >= sw.sweepEvery {
		sw.sweep(now)
	}
	recent := sw.prune(key, now)

	if len(recent) >= sw.limit {
		return security.Decision{
			Allowed:    false,
			Limit:      sw.limit,
			Remaining:  0,
			RetryAfter: recent[0].Add(sw.window).Sub(now),
		}, nil
	}

	recent = append(recent, now)
	sw.requests[key] = recent
	return security.Decision{
		Allowed:   true,
		Limit:     sw.limit,
		Remaining: sw.limit - len(recent),
	}, nil
}

// prune drops timestamps that left the window. Caller holds mu.
func (sw *SlidingWindow) prune(key string, now time.Time) []time.Time {
	times := sw.requests[key]
	cutoff := now.Add(-sw.window)

	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	recent := times[i:]
	if len(recent) == 0 {
		delete(sw.requests, key)
		return nil
	}
	sw.requests[key] = recent
	return recent
}

// sweep removes keys with no requests left in the window. Caller holds mu.
func (sw *SlidingWindow) sweep(now time.Time) {
	for key := range sw.requests {
		sw.prune(key, now)
	}
	sw.lastSweep = now
}
