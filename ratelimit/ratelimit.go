// Package ratelimit paces outbound requests to a single upstream source and
// retries failed calls with exponential backoff.
package ratelimit

import (
	"context"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles calls so that at least a minimum delay elapses between
// the starts of consecutive attempts. The pacing watermark is shared by all
// callers of one Limiter instance.
type Limiter struct {
	pacer             *rate.Limiter
	lane              chan struct{}
	minDelay          time.Duration
	maxRetries        int
	backoffMultiplier float64
}

// New returns a Limiter enforcing minDelay between attempt starts, retrying
// failed calls up to maxRetries times with exponentially growing delays.
func New(minDelay time.Duration, maxRetries int, backoffMultiplier float64) *Limiter {
	return &Limiter{
		pacer:             rate.NewLimiter(rate.Every(minDelay), 1),
		lane:              make(chan struct{}, 1),
		minDelay:          minDelay,
		maxRetries:        maxRetries,
		backoffMultiplier: backoffMultiplier,
	}
}

// Execute runs fn once at least minDelay has elapsed since the previous
// attempt started. On failure it waits minDelay × backoffMultiplier^attempt
// and tries again, up to the retry limit; the last error from fn propagates.
func (l *Limiter) Execute(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if attempt > 0 {
			if werr := l.sleep(ctx, l.backoffDelay(attempt-1)); werr != nil {
				return werr
			}
		}
		if werr := l.pacer.Wait(ctx); werr != nil {
			return werr
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

// ExecuteQueued behaves like Execute but serializes overlapping callers
// through a single lane: a queued call only begins (and only starts its
// delay timers) once the previous one has settled.
func (l *Limiter) ExecuteQueued(ctx context.Context, fn func() error) error {
	select {
	case l.lane <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.lane }()
	return l.Execute(ctx, fn)
}

func (l *Limiter) backoffDelay(attempt int) time.Duration {
	return time.Duration(float64(l.minDelay) * math.Pow(l.backoffMultiplier, float64(attempt)))
}

func (l *Limiter) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
