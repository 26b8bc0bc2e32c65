// debounce_test.go — Unit tests for the debounced scheduler.
package debounce

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvokeCoalescesBurst(t *testing.T) {
	var calls atomic.Int32
	d := New(func() error {
		calls.Add(1)
		return nil
	}, 20*time.Millisecond, 0)

	for i := 0; i < 10; i++ {
		d.Invoke()
		time.Sleep(2 * time.Millisecond)
	}

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "burst must coalesce into one invocation")
}

func TestMaxWaitFiresDespiteResets(t *testing.T) {
	var calls atomic.Int32
	d := New(func() error {
		calls.Add(1)
		return nil
	}, 30*time.Millisecond, 80*time.Millisecond)

	// Keep resetting the wait timer faster than it can fire.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		d.Invoke()
		time.Sleep(10 * time.Millisecond)
	}
	d.Cancel()

	require.GreaterOrEqual(t, calls.Load(), int32(2), "maxWait must force periodic invocation")
}

func TestFlushInvokesPending(t *testing.T) {
	var calls atomic.Int32
	d := New(func() error {
		calls.Add(1)
		return nil
	}, time.Hour, 0)

	d.Invoke()
	require.NoError(t, d.Flush())
	assert.Equal(t, int32(1), calls.Load())

	// Nothing pending: Flush returns the previous result without invoking.
	require.NoError(t, d.Flush())
	assert.Equal(t, int32(1), calls.Load())
}

func TestFlushReturnsLastResult(t *testing.T) {
	wantErr := errors.New("send failed")
	d := New(func() error { return wantErr }, time.Hour, 0)

	d.Invoke()
	assert.ErrorIs(t, d.Flush(), wantErr)
	assert.ErrorIs(t, d.Flush(), wantErr, "idle Flush must return last result")
}

func TestCancelPreventsInvocation(t *testing.T) {
	var calls atomic.Int32
	d := New(func() error {
		calls.Add(1)
		return nil
	}, 10*time.Millisecond, 20*time.Millisecond)

	d.Invoke()
	d.Cancel()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load(), "no deferred invocation may survive Cancel")

	// Flush after Cancel is a no-op returning the zero result.
	assert.NoError(t, d.Flush())
	assert.Equal(t, int32(0), calls.Load())
}

func TestReinvokeAfterFire(t *testing.T) {
	var calls atomic.Int32
	d := New(func() error {
		calls.Add(1)
		return nil
	}, 10*time.Millisecond, 0)

	d.Invoke()
	time.Sleep(30 * time.Millisecond)
	d.Invoke()
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, int32(2), calls.Load(), "debouncer must be reusable after firing")
}
