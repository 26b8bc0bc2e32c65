// throttle_test.go — Unit tests for the sliding-window rate limiter.
package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock returns a now func pinned to t, advanceable via the pointer.
func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestLimiterAllowsUnderLimit(t *testing.T) {
	l := NewLimiter(5, 1)
	for i := 0; i < 5; i++ {
		assert.Equal(t, Allowed, l.Attempt(), "call %d should be allowed", i+1)
	}
}

func TestLimiterThrottledThenSkipped(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewLimiter(5, 1)
	l.now = fixedClock(&now)

	for i := 0; i < 5; i++ {
		require.Equal(t, Allowed, l.Attempt())
	}
	assert.Equal(t, Throttled, l.Attempt(), "first rejection must be Throttled")
	assert.Equal(t, Skipped, l.Attempt(), "second rejection must be Skipped")
	assert.Equal(t, Skipped, l.Attempt())
}

func TestLimiterStreakResetsAfterSuccess(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewLimiter(2, 1)
	l.now = fixedClock(&now)

	require.Equal(t, Allowed, l.Attempt())
	require.Equal(t, Allowed, l.Attempt())
	require.Equal(t, Throttled, l.Attempt())
	require.Equal(t, Skipped, l.Attempt())

	// Window expires; calls succeed again, then a new streak begins with Throttled.
	now = now.Add(2 * time.Second)
	require.Equal(t, Allowed, l.Attempt())
	require.Equal(t, Allowed, l.Attempt())
	assert.Equal(t, Throttled, l.Attempt(), "new streak must start with Throttled again")
}

func TestLimiterEvictsOldBuckets(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewLimiter(5, 5)
	l.now = fixedClock(&now)

	for i := 0; i < 5; i++ {
		require.Equal(t, Allowed, l.Attempt())
	}
	require.Equal(t, Throttled, l.Attempt())

	// Advance past the window: old buckets evicted, capacity restored.
	now = now.Add(6 * time.Second)
	assert.Equal(t, Allowed, l.Attempt())
	assert.Len(t, l.buckets, 1, "expired buckets must be evicted")
}

func TestLimiterSlidingWindowPartialEviction(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewLimiter(4, 5)
	l.now = fixedClock(&now)

	require.Equal(t, Allowed, l.Attempt())
	require.Equal(t, Allowed, l.Attempt())

	now = now.Add(3 * time.Second)
	require.Equal(t, Allowed, l.Attempt())
	require.Equal(t, Allowed, l.Attempt())
	require.Equal(t, Throttled, l.Attempt())

	// 3 more seconds: the first two counts fall out of the window,
	// the later two remain, so two slots are free.
	now = now.Add(3 * time.Second)
	require.Equal(t, Allowed, l.Attempt())
	require.Equal(t, Allowed, l.Attempt())
	assert.Equal(t, Throttled, l.Attempt())
}

func TestWrapInvokesOnlyWhenAllowed(t *testing.T) {
	calls := 0
	fn := Wrap(func() { calls++ }, 5, 1)

	var results []Result
	for i := 0; i < 7; i++ {
		results = append(results, fn())
	}

	assert.Equal(t, 5, calls, "fn must run exactly maxCount times")
	assert.Equal(t, []Result{Allowed, Allowed, Allowed, Allowed, Allowed, Throttled, Skipped}, results)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "allowed", Allowed.String())
	assert.Equal(t, "throttled", Throttled.String())
	assert.Equal(t, "skipped", Skipped.String())
	assert.Equal(t, "unknown", Result(99).String())
}
