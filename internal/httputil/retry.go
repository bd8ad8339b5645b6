// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the error classification and retry policy shared
// by every stage that talks to a remote service.
package httputil

import (
	"context"
	"errors"
	"math"
	"slices"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxRetries is the retry ceiling when a Policy leaves MaxRetries unset.
	DefaultMaxRetries = 3

	// DefaultBaseDelay is the backoff base when a Policy leaves BaseDelay unset.
	DefaultBaseDelay = 2 * time.Second
)

// defaultRetryable are the kinds a Policy retries when Retryable is nil.
var defaultRetryable = []Kind{KindRateLimited, KindServer, KindTransport}

// Decision is the outcome of consulting a Policy about one failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Policy decides whether a failed call is retried and how long to wait.
// The zero value retries 429, 5xx and transport failures three times with a
// 2 s exponential base.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt. A negative
	// value disables retries; zero selects DefaultMaxRetries.
	MaxRetries int

	// BaseDelay is the exponential backoff base: attempt n waits BaseDelay*2^n.
	BaseDelay time.Duration

	// Retryable restricts which kinds are retried. Nil selects rate limits,
	// server errors and transport failures.
	Retryable []Kind

	Logger zerolog.Logger

	// Sleep waits between attempts. Nil uses a context-aware timer. Tests
	// substitute a recorder.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry is called before each retry wait with the operation name.
	OnRetry func(op string, kind Kind)
}

// Only returns a copy of p that retries just the given kinds.
func (p Policy) Only(kinds ...Kind) Policy {
	p.Retryable = kinds
	return p
}

func (p Policy) maxRetries() int {
	switch {
	case p.MaxRetries < 0:
		return 0
	case p.MaxRetries == 0:
		return DefaultMaxRetries
	default:
		return p.MaxRetries
	}
}

func (p Policy) baseDelay() time.Duration {
	if p.BaseDelay <= 0 {
		return DefaultBaseDelay
	}
	return p.BaseDelay
}

// Backoff returns BaseDelay * 2^attempt, saturating at the largest
// representable duration.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.baseDelay()
	if attempt >= 63 || base > time.Duration(math.MaxInt64)>>attempt {
		return time.Duration(math.MaxInt64)
	}
	return base << attempt
}

// ShouldRetry classifies err for the zero-indexed attempt that just failed.
// Once attempt reaches the retry ceiling the answer is always (false, 0).
// A 429 carrying Retry-After waits exactly that long; every other retryable
// failure waits Backoff(attempt). Client errors and unclassified errors are
// never retried.
func (p Policy) ShouldRetry(err error, attempt int) Decision {
	if err == nil || attempt >= p.maxRetries() {
		return Decision{}
	}

	kind := KindOf(err)
	retryable := p.Retryable
	if retryable == nil {
		retryable = defaultRetryable
	}
	if !slices.Contains(retryable, kind) {
		return Decision{}
	}

	if kind == KindRateLimited {
		var he *Error
		if errors.As(err, &he) && he.HasRetryAfter {
			return Decision{Retry: true, Delay: max(he.RetryAfter, 0)}
		}
	}
	return Decision{Retry: true, Delay: p.Backoff(attempt)}
}

// Do runs fn under p. It returns the first successful result, or the last
// error once the policy declines to retry. Intermediate failures are logged
// but never returned. A cancelled ctx interrupts a backoff wait.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				p.Logger.Info().Str("op", op).Int("attempts", attempt+1).Msg("succeeded after retry")
			}
			return result, nil
		}

		d := p.ShouldRetry(err, attempt)
		if !d.Retry {
			var zero T
			return zero, err
		}

		kind := KindOf(err)
		p.Logger.Warn().
			Err(err).
			Str("op", op).
			Str("kind", kind.String()).
			Int("attempt", attempt+1).
			Int("max_retries", p.maxRetries()).
			Dur("delay", d.Delay).
			Msg("retrying")
		if p.OnRetry != nil {
			p.OnRetry(op, kind)
		}

		if err := sleep(ctx, d.Delay); err != nil {
			var zero T
			return zero, err
		}
	}
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
