package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJitterFunc(t *testing.T) {
	t.Run("NoJitter", func(t *testing.T) {
		jitterFunc := NewJitterFunc(NoJitter)
		interval := 100 * time.Millisecond

		for i := 0; i < 10; i++ {
			assert.Equal(t, interval, jitterFunc(interval))
		}
	})

	t.Run("FullJitter", func(t *testing.T) {
		jitterFunc := NewJitterFunc(FullJitter)
		interval := 1000 * time.Millisecond

		hasVariation := false
		var results []time.Duration
		for i := 0; i < 100; i++ {
			result := jitterFunc(interval)
			results = append(results, result)

			assert.GreaterOrEqual(t, result, time.Duration(0))
			assert.LessOrEqual(t, result, interval)

			if i > 0 && result != results[0] {
				hasVariation = true
			}
		}

		assert.True(t, hasVariation, "FullJitter should produce varying results")
	})

	t.Run("Jitter", func(t *testing.T) {
		jitterFunc := NewJitterFunc(Jitter)
		interval := 1000 * time.Millisecond

		hasVariation := false
		minSeen := interval
		maxSeen := time.Duration(0)

		for i := 0; i < 100; i++ {
			result := jitterFunc(interval)

			assert.GreaterOrEqual(t, result, interval/2)
			assert.LessOrEqual(t, result, interval+interval/2)

			if result < minSeen {
				minSeen = result
			}
			if result > maxSeen {
				maxSeen = result
			}
			if i > 0 && result != interval {
				hasVariation = true
			}
		}

		assert.True(t, hasVariation, "Jitter should produce varying results")
		assert.Less(t, minSeen, 600*time.Millisecond, "Should see values near lower bound")
		assert.Greater(t, maxSeen, 1400*time.Millisecond, "Should see values near upper bound")
	})

	t.Run("ZeroInterval", func(t *testing.T) {
		for _, jt := range []JitterType{NoJitter, FullJitter, Jitter} {
			jitterFunc := NewJitterFunc(jt)
			assert.Equal(t, time.Duration(0), jitterFunc(0))
		}
	})

	t.Run("NegativeInterval", func(t *testing.T) {
		for _, jt := range []JitterType{NoJitter, FullJitter, Jitter} {
			jitterFunc := NewJitterFunc(jt)
			assert.Equal(t, time.Duration(0), jitterFunc(-100*time.Millisecond))
		}
	})
}

func TestWithJitter(t *testing.T) {
	t.Run("ExponentialWithFullJitter", func(t *testing.T) {
		basePolicy := &ExponentialPolicy{
			InitialInterval: 100 * time.Millisecond,
			BackoffFactor:   2.0,
			MaxInterval:     1 * time.Second,
			MaxRetries:      5,
		}

		policy := WithJitter(basePolicy, FullJitter)

		for i := 0; i < 5; i++ {
			interval, err := policy.ComputeNextInterval(i, 0, nil)
			require.NoError(t, err)

			multiplier := 1
			for j := 0; j < i; j++ {
				multiplier *= 2
			}
			expectedBase := time.Duration(100*time.Millisecond) * time.Duration(multiplier)
			if expectedBase > 1*time.Second {
				expectedBase = 1 * time.Second
			}

			assert.GreaterOrEqual(t, interval, time.Duration(0))
			assert.LessOrEqual(t, interval, expectedBase)
		}

		_, err := policy.ComputeNextInterval(5, 0, nil)
		assert.Equal(t, ErrRetriesExhausted, err)
	})

	t.Run("ConstantWithJitter", func(t *testing.T) {
		basePolicy := &ConstantPolicy{
			Interval:   200 * time.Millisecond,
			MaxRetries: 3,
		}

		policy := WithJitter(basePolicy, Jitter)

		hasVariation := false
		var firstInterval time.Duration

		for i := 0; i < 3; i++ {
			interval, err := policy.ComputeNextInterval(i, 0, nil)
			require.NoError(t, err)

			assert.GreaterOrEqual(t, interval, 100*time.Millisecond)
			assert.LessOrEqual(t, interval, 300*time.Millisecond)

			if i == 0 {
				firstInterval = interval
			} else if interval != firstInterval {
				hasVariation = true
			}
		}

		assert.True(t, hasVariation, "Should have variation with jitter")
	})

	t.Run("ExponentialWithNoJitter", func(t *testing.T) {
		basePolicy := &ExponentialPolicy{
			InitialInterval: 100 * time.Millisecond,
			BackoffFactor:   2.0,
			MaxInterval:     500 * time.Millisecond,
			MaxRetries:      3,
		}

		policy := WithJitter(basePolicy, NoJitter)

		expectedIntervals := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
		}

		for i, expected := range expectedIntervals {
			interval, err := policy.ComputeNextInterval(i, 0, nil)
			require.NoError(t, err)
			assert.Equal(t, expected, interval)
		}
	})
}

func TestJitterFunc_ConcurrentUse(t *testing.T) {
	jitterFunc := NewJitterFunc(FullJitter)
	interval := 100 * time.Millisecond

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- true }()

			for j := 0; j < 100; j++ {
				result := jitterFunc(interval)
				if result < 0 || result > interval {
					t.Errorf("Invalid jitter result: %v", result)
					return
				}
			}
		}()
	}

	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Test timed out")
		}
	}
}
