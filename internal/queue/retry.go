package queue

import (
	"context"
	"time"

	"github.com/buildcore-project/buildcore/internal/backoff"
	"github.com/buildcore-project/buildcore/internal/errs"
)

// defaultRetryPolicy returns the backoff policy TRACK and FETCH queues fall
// back to when their Retry field is left nil. FETCH retries a flaky mirror
// download more patiently than TRACK retries a ref resolution, which is
// cheap enough to fail fast and let the scheduler re-surface it sooner.
func defaultRetryPolicy(t Type) backoff.Policy {
	switch t {
	case TypeFetch:
		p := backoff.NewExponentialPolicy(2 * time.Second)
		p.MaxRetries = 5
		return backoff.WithJitter(p, backoff.Jitter)
	default:
		p := backoff.NewConstantPolicy(500 * time.Millisecond)
		p.MaxRetries = 3
		return backoff.WithJitter(p, backoff.FullJitter)
	}
}

// retryTransient runs op, retrying under policy as long as op's error is
// errs.IsRetryable. A non-retryable error, or policy signaling retries are
// exhausted, returns op's last error unchanged.
func retryTransient(ctx context.Context, policy backoff.Policy, op func() error) error {
	r := backoff.NewRetrier(policy)
	for {
		err := op()
		if err == nil {
			return nil
		}
		if !errs.IsRetryable(err) {
			return err
		}
		if waitErr := r.Next(ctx, err); waitErr != nil {
			return err
		}
	}
}
