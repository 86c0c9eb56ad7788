// Package backoff implements the retry policy used when a TRACK or FETCH
// worker hits a transient source error (errs.IsRetryable), selected per
// queue.Type by internal/queue's defaultRetryPolicy.
package backoff

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// Loosely modeled on Temporal's retry policy
// (https://github.com/temporalio/temporal/blob/2a1044994085bffbeeee789cad52ecf2650c501c/common/backoff/retrypolicy.go),
// trimmed to the two shapes buildcore's source queues actually pick
// between.

var (
	// ErrRetriesExhausted is returned once a policy's MaxRetries is reached.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrOperationCanceled is returned when ctx is canceled mid-wait.
	ErrOperationCanceled = errors.New("operation canceled")
)

// Policy computes the wait interval before the next retry attempt, or
// signals that no further retries should be attempted.
type Policy interface {
	ComputeNextInterval(retryCount int, elapsedTime time.Duration, err error) (time.Duration, error)
}

// Retrier drives one retry loop's state across attempts. Not safe to share
// across concurrent callers; each retryTransient call builds its own.
type Retrier interface {
	// Next blocks until the next retry interval elapses, or returns an
	// error if retries are exhausted or ctx is canceled first.
	Next(ctx context.Context, err error) error
	Reset()
}

const noMaximumAttempts = 0

// capped checks retryCount against maxRetries, the identical guard every
// Policy below opens ComputeNextInterval with.
func capped(retryCount, maxRetries int) error {
	if maxRetries > 0 && retryCount >= maxRetries {
		return ErrRetriesExhausted
	}
	return nil
}

// ExponentialPolicy doubles (by default) the wait interval each attempt,
// capped at MaxInterval. Used for FETCH: a flaky mirror is worth waiting
// longer for between attempts than a TRACK ref resolution.
type ExponentialPolicy struct {
	InitialInterval time.Duration
	BackoffFactor   float64
	MaxInterval     time.Duration
	// MaxRetries caps attempts; 0 means unlimited.
	MaxRetries int
}

// NewExponentialPolicy creates an exponential backoff policy starting at
// initialInterval, doubling each attempt, capped at 30s.
func NewExponentialPolicy(initialInterval time.Duration) *ExponentialPolicy {
	return &ExponentialPolicy{
		InitialInterval: initialInterval,
		BackoffFactor:   2.0,
		MaxInterval:     30 * time.Second,
		MaxRetries:      noMaximumAttempts,
	}
}

func (p *ExponentialPolicy) ComputeNextInterval(retryCount int, _ time.Duration, _ error) (time.Duration, error) {
	if err := capped(retryCount, p.MaxRetries); err != nil {
		return 0, err
	}
	interval := float64(p.InitialInterval) * math.Pow(p.BackoffFactor, float64(retryCount))
	if interval > float64(p.MaxInterval) {
		interval = float64(p.MaxInterval)
	}
	return time.Duration(interval), nil
}

// ConstantPolicy waits the same interval before every retry. Used for
// TRACK: ref resolution is cheap enough that a flat retry cadence is
// sufficient and resurfaces a persistent failure sooner than exponential
// growth would.
type ConstantPolicy struct {
	Interval   time.Duration
	MaxRetries int
}

// NewConstantPolicy creates a constant-interval backoff policy.
func NewConstantPolicy(interval time.Duration) *ConstantPolicy {
	return &ConstantPolicy{Interval: interval, MaxRetries: noMaximumAttempts}
}

func (p *ConstantPolicy) ComputeNextInterval(retryCount int, _ time.Duration, _ error) (time.Duration, error) {
	if err := capped(retryCount, p.MaxRetries); err != nil {
		return 0, err
	}
	return p.Interval, nil
}

// NewRetrier wraps a Policy in a stateful Retrier, one per in-flight
// fetch/track attempt (a Retrier is not meant to be shared across
// concurrent workers).
func NewRetrier(policy Policy) Retrier {
	return &retrier{policy: policy}
}

type retrier struct {
	policy     Policy
	retryCount int
	startTime  time.Time
	mu         sync.Mutex
}

func (r *retrier) Next(ctx context.Context, err error) error {
	r.mu.Lock()
	if r.startTime.IsZero() {
		r.startTime = time.Now()
	}
	elapsed := time.Since(r.startTime)

	interval, computeErr := r.policy.ComputeNextInterval(r.retryCount, elapsed, err)
	if computeErr != nil {
		r.mu.Unlock()
		return computeErr
	}
	r.retryCount++
	r.mu.Unlock()

	timer := time.NewTimer(interval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ErrOperationCanceled
	}
}

func (r *retrier) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryCount = 0
	r.startTime = time.Time{}
}
