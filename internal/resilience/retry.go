// Package resilience retries transient database failures. The engine's
// only remote dependency is its own store, and a run launched alongside
// the database must ride out the window where the server is still
// starting or the connection pool is saturated.
package resilience

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy bounds a retryable operation. Delays double after each failed
// attempt, capped at MaxDelay, with random jitter applied on top.
type Policy struct {
	// Attempts is the total number of tries, first included. 1 disables
	// retries.
	Attempts int

	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the doubled delay.
	MaxDelay time.Duration

	// Jitter widens each delay by up to this fraction in either
	// direction. 0 means fixed delays.
	Jitter float64

	// Classify decides whether an error is worth retrying. Nil means
	// IsTransient.
	Classify func(error) bool

	// OnRetry observes each retry before its sleep.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DBPolicy is the policy used for store connections and writes.
func DBPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  10 * time.Second,
		Jitter:    0.25,
	}
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Classify == nil {
		p.Classify = IsTransient
	}
	return p
}

// delay computes the wait before retry number attempt (0-based).
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d += time.Duration((rand.Float64()*2 - 1) * spread)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Do runs fn under the policy, retrying errors the policy classifies as
// transient. Cancellation stops retries immediately and returns the last
// error from fn.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !p.Classify(lastErr) || attempt == p.Attempts-1 {
			return lastErr
		}

		wait := p.delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, wait, lastErr)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}
