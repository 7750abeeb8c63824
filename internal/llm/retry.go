package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twinlab/digital-twin/internal/apperr"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Backoff returns the delay before the next attempt, given the attempt that
// just failed (1-based).
type Backoff func(attempt int, base time.Duration) time.Duration

// LinearBackoff waits attempt × base.
func LinearBackoff(attempt int, base time.Duration) time.Duration {
	return time.Duration(attempt) * base
}

// FixedBackoff always waits base.
func FixedBackoff(_ int, base time.Duration) time.Duration {
	return base
}

// RetryPolicy decides how failed attempts are retried. Unauthorized and
// InvalidModel errors stop immediately. Rate limits use RateLimitBackoff,
// everything else uses Backoff.
type RetryPolicy struct {
	MaxAttempts      int
	BaseDelay        time.Duration
	RateLimitBackoff Backoff
	Backoff          Backoff
	Classify         func(error) apperr.Kind
	// Sleep waits for d or until ctx is done. Replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy is 3 attempts, 1s base delay, linear backoff on rate
// limits and a fixed delay otherwise.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      DefaultMaxAttempts,
		BaseDelay:        DefaultBaseDelay,
		RateLimitBackoff: LinearBackoff,
		Backoff:          FixedBackoff,
		Classify:         Classify,
		Sleep:            sleepContext,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.RateLimitBackoff == nil {
		p.RateLimitBackoff = d.RateLimitBackoff
	}
	if p.Backoff == nil {
		p.Backoff = d.Backoff
	}
	if p.Classify == nil {
		p.Classify = d.Classify
	}
	if p.Sleep == nil {
		p.Sleep = d.Sleep
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
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

// Attempt is called once per try with the 1-based attempt number.
type Attempt[T any] func(ctx context.Context, attempt int) (T, error)

// Retry runs fn under policy p and converts the final failure into a
// classified *apperr.Error.
func Retry[T any](ctx context.Context, p RetryPolicy, op string, fn Attempt[T]) (T, error) {
	p = p.withDefaults()
	var zero T
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, canceled(op, ctxErr)
		}

		last := attempt == p.MaxAttempts
		var delay time.Duration

		switch p.Classify(err) {
		case apperr.KindUnauthorized:
			return zero, apperr.Wrap(apperr.KindUnauthorized, op, "invalid API key, check your credentials", err)
		case apperr.KindInvalidModel:
			return zero, apperr.Wrap(apperr.KindInvalidModel, op, "model not found, use a valid model", err)
		case apperr.KindInvalidArgument:
			return zero, err
		case apperr.KindRateLimited:
			if last {
				return zero, apperr.Wrap(apperr.KindRateLimited, op, "rate limit exceeded, try again later", err)
			}
			delay = p.RateLimitBackoff(attempt, p.BaseDelay)
		case apperr.KindTimeout:
			if last {
				return zero, apperr.Wrap(apperr.KindTimeout, op, "request timed out", err)
			}
			delay = p.Backoff(attempt, p.BaseDelay)
		default:
			if last {
				break
			}
			delay = p.Backoff(attempt, p.BaseDelay)
		}

		if last {
			break
		}
		if err := p.Sleep(ctx, delay); err != nil {
			return zero, canceled(op, err)
		}
	}

	return zero, apperr.Wrap(apperr.KindGenerationFailed, op,
		fmt.Sprintf("failed to generate response after %d attempts", p.MaxAttempts), lastErr)
}

func canceled(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindTimeout, op, "deadline exceeded", err)
	}
	return apperr.Wrap(apperr.KindGenerationFailed, op, "canceled", err)
}
