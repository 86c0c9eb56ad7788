package backoff

import (
	"math/rand"
	"time"
)

// JitterType selects how NewJitterFunc spreads an interval.
type JitterType int

const (
	// NoJitter returns the interval unchanged.
	NoJitter JitterType = iota
	// FullJitter returns a random duration in [0, interval].
	FullJitter
	// Jitter returns a random duration in [0.5*interval, 1.5*interval].
	Jitter
)

// NewJitterFunc returns a function that spreads an interval according to
// jt. Used to decorrelate FETCH/TRACK retries across workers hitting the
// same flaky remote at once.
func NewJitterFunc(jt JitterType) func(time.Duration) time.Duration {
	switch jt {
	case FullJitter:
		return func(interval time.Duration) time.Duration {
			if interval <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(interval) + 1))
		}
	case Jitter:
		return func(interval time.Duration) time.Duration {
			if interval <= 0 {
				return 0
			}
			half := float64(interval) / 2
			return time.Duration(half + rand.Float64()*float64(interval))
		}
	default:
		return func(interval time.Duration) time.Duration {
			if interval <= 0 {
				return 0
			}
			return interval
		}
	}
}

// WithJitter wraps base so its computed interval is passed through a
// JitterType spread before being returned. MaxRetries exhaustion and any
// other error from base is passed through unchanged.
func WithJitter(base Policy, jt JitterType) Policy {
	return &jitteredPolicy{base: base, jitterFunc: NewJitterFunc(jt)}
}

type jitteredPolicy struct {
	base       Policy
	jitterFunc func(time.Duration) time.Duration
}

func (p *jitteredPolicy) ComputeNextInterval(retryCount int, elapsedTime time.Duration, err error) (time.Duration, error) {
	interval, computeErr := p.base.ComputeNextInterval(retryCount, elapsedTime, err)
	if computeErr != nil {
		return 0, computeErr
	}
	return p.jitterFunc(interval), nil
}
