// Package ratelimit implements the sliding-window request limiter for the
// yoinker detection service. The service allows at most 15 requests per
// rolling 60-second window; exceeding it earns a 429 and eventually an IP ban.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit gating.
var (
	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yd_rate_limit_waits_total",
		Help: "Total number of lookups that had to wait for window capacity",
	})

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "yd_rate_limit_wait_seconds",
		Help:    "Time spent waiting for a rate limit slot",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60},
	})
)

// Defaults for the yoinker detection service quota.
const (
	DefaultLimit  = 15
	DefaultWindow = 60 * time.Second

	// trimSlack bounds the retained timestamp history beyond the limit.
	trimSlack = 25
)

// Window enforces "at most limit requests per rolling span" across all
// concurrent callers. The timestamp slice is the only structure mutated
// from multiple lookup goroutines and is guarded by a single mutex; the
// lock is never held while sleeping.
type Window struct {
	mu     sync.Mutex
	limit  int
	span   time.Duration
	stamps []time.Time
	logger zerolog.Logger

	now func() time.Time // injectable for tests
}

// New creates a window limiter. Non-positive arguments fall back to the
// service defaults.
func New(limit int, span time.Duration, logger zerolog.Logger) *Window {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if span <= 0 {
		span = DefaultWindow
	}
	return &Window{
		limit:  limit,
		span:   span,
		logger: logger,
		now:    time.Now,
	}
}

// Record appends the current timestamp to the window. Called once per
// outbound request, after the response (or error) is observed.
func (w *Window) Record() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stamps = append(w.stamps, w.now())

	// Trim history so the slice cannot grow without bound.
	if len(w.stamps) > w.limit+trimSlack {
		w.stamps = append(w.stamps[:0:0], w.stamps[len(w.stamps)-w.limit-trimSlack:]...)
	}
}

// Exceeded reports whether the window is at capacity. Entries older than
// the span are dropped first.
func (w *Window) Exceeded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.now())
	return len(w.stamps) >= w.limit
}

// Wait blocks until window capacity exists or the context is cancelled.
// Instead of polling, it sleeps until the in-window timestamp that must
// expire for the count to drop below the limit actually expires, then
// re-checks (another caller may have consumed the slot in the meantime).
func (w *Window) Wait(ctx context.Context) error {
	start := w.now()
	waited := false

	for {
		wait := w.nextFree()
		if wait <= 0 {
			if waited {
				rateLimitWaitSeconds.Observe(w.now().Sub(start).Seconds())
				w.logger.Debug().
					Dur("waited", w.now().Sub(start)).
					Msg("Rate limit slot acquired")
			}
			return nil
		}

		if !waited {
			waited = true
			rateLimitWaitsTotal.Inc()
			w.logger.Debug().
				Dur("wait", wait).
				Int("limit", w.limit).
				Msg("Rate limit window full - waiting")
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// nextFree returns how long until capacity exists, or <= 0 if a slot is
// free now.
func (w *Window) nextFree() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)

	if len(w.stamps) < w.limit {
		return 0
	}

	// The window frees up when the limit-th most recent timestamp ages out.
	oldest := w.stamps[len(w.stamps)-w.limit]
	return oldest.Add(w.span).Sub(now) + time.Millisecond
}

// prune drops timestamps older than the span. Caller must hold the lock.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0:0], w.stamps[i:]...)
	}
}
