package model

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/cenkalti/backoff/v4"
)

// Retry policy constants, ported verbatim from the teacher's
// internal/session/loop.go newRetryBackoff (same interval/multiplier/jitter
// values; MaxRetries folded in via backoff.WithMaxRetries).
const (
	RetryInitialInterval    = time.Second
	RetryMaxInterval        = 30 * time.Second
	RetryMaxElapsedTime     = 2 * time.Minute
	RetryMultiplier         = 2.0
	RetryRandomizationFactor = 0.5
	RetryMaxAttempts        = 3
)

// newRetryBackoff builds the same exponential-backoff-with-jitter policy
// the teacher's agentic loop uses around every provider call.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = RetryRandomizationFactor
	b.Multiplier = RetryMultiplier
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, RetryMaxAttempts), ctx)
}

// RetryingAdapter wraps an Adapter so every Complete call is retried under
// exponential backoff with jitter on error, matching the teacher's
// retry-around-CreateCompletion behavior in runLoop.
type RetryingAdapter struct {
	inner Adapter
}

func WithRetry(inner Adapter) *RetryingAdapter {
	return &RetryingAdapter{inner: inner}
}

func (r *RetryingAdapter) Complete(ctx context.Context, modelID string, params map[string]any, messages []*schema.Message) (*Completion, error) {
	bo := newRetryBackoff(ctx)
	var result *Completion

	operation := func() error {
		completion, err := r.inner.Complete(ctx, modelID, params, messages)
		if err != nil {
			return err
		}
		result = completion
		return nil
	}

	err := backoff.Retry(operation, bo)
	if err != nil {
		return nil, err
	}
	return result, nil
}
