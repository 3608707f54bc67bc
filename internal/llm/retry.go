package llm

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/yantianqi1/write-agent/internal/coreerr"
)

// RetryPolicy implements spec §4.A's gateway retry rule: exponential backoff
// with jitter on {TIMEOUT, RATE_LIMIT, NETWORK, PROVIDER_ERROR}, up to
// MaxAttempts attempts, initial delay BaseDelay, multiplier 2, capped at
// MaxDelay. AUTH and CONTEXT_OVERFLOW are never retried, mirroring
// internal/httpclient's SmartRetry backoff shape one layer up the stack.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the spec's literal defaults: 3 attempts, 1s
// initial delay, 30s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Do invokes fn, retrying while the returned error is a *coreerr.Error whose
// Kind is one of the retryable kinds and attempts remain. ctx cancellation
// aborts the wait between attempts immediately.
func Do[T any](ctx context.Context, p RetryPolicy, fn func() (T, error)) (T, error) {
	var zero T
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		val, err := fn()
		if err == nil {
			return val, nil
		}
		lastErr = err

		var ce *coreerr.Error
		if ae, ok := err.(*coreerr.Error); ok {
			ce = ae
		}
		if ce == nil || !ce.Retryable() {
			return zero, err
		}
		if attempt == maxAttempts-1 {
			break
		}

		delay := p.delay(attempt)
		select {
		case <-ctx.Done():
			return zero, coreerr.Wrap(coreerr.Cancelled, ctx.Err(), "retry aborted by cancellation")
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	max := p.MaxDelay
	if max <= 0 {
		max = 30 * time.Second
	}
	d := time.Duration(math.Pow(2, float64(attempt))) * base
	jitter := time.Duration(rand.Float64() * float64(d) * 0.1)
	if d+jitter > max {
		return max
	}
	return d + jitter
}

func errKind(err error) string {
	if err == nil {
		return ""
	}
	return string(coreerr.OfKind(err))
}
