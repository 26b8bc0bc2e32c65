// sync_buffer_test.go — Unit and property tests for the sync buffer.
package buffer

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"testing/quick"

	"github.com/replaykit/replay-go/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evt(ts int64, size int) event.Event {
	// Pad the data payload so the serialized event is at least size bytes.
	pad := size - 40
	if pad < 0 {
		pad = 0
	}
	data, _ := json.Marshal(map[string]string{"pad": fmt.Sprintf("%*s", pad, "x")})
	return event.Event{Timestamp: ts, Type: 3, Data: data}
}

func TestSyncBufferAddAndEarliest(t *testing.T) {
	b := NewSync(nil)
	ctx := context.Background()

	require.False(t, b.HasEvents())
	assert.Zero(t, b.EarliestTimestamp())

	require.NoError(t, b.AddEvent(ctx, evt(300, 0)))
	require.NoError(t, b.AddEvent(ctx, evt(100, 0)))
	require.NoError(t, b.AddEvent(ctx, evt(200, 0)))

	assert.True(t, b.HasEvents())
	assert.Equal(t, int64(100), b.EarliestTimestamp(), "earliest must be the minimum timestamp added")
	assert.Positive(t, b.Size())
}

func TestSyncBufferSizeCapNoPartialAdd(t *testing.T) {
	// Fixed estimator makes cap arithmetic exact.
	b := NewSync(func(event.Event) int { return MaxSize / 2 })
	ctx := context.Background()

	require.NoError(t, b.AddEvent(ctx, evt(1, 0)))
	require.NoError(t, b.AddEvent(ctx, evt(2, 0)))

	sizeBefore := b.Size()
	err := b.AddEvent(ctx, evt(3, 0))

	var sizeErr *SizeExceededError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, MaxSize, sizeErr.Current)

	// Prior contents untouched.
	assert.Equal(t, sizeBefore, b.Size())
	assert.Equal(t, int64(1), b.EarliestTimestamp())

	payload, ferr := b.Finish(ctx)
	require.NoError(t, ferr)
	var events []event.Event
	require.NoError(t, json.Unmarshal(payload, &events))
	assert.Len(t, events, 2, "rejected event must not be in the drained payload")
}

func TestSyncBufferFinishDrains(t *testing.T) {
	b := NewSync(nil)
	ctx := context.Background()

	require.NoError(t, b.AddEvent(ctx, evt(5, 0)))
	b.SetHasCheckout(true)

	payload, err := b.Finish(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "[]", string(payload))

	assert.False(t, b.HasEvents(), "Finish must empty the buffer")
	assert.False(t, b.HasCheckout())
	assert.Zero(t, b.Size())
	assert.Zero(t, b.EarliestTimestamp())

	// Finishing again yields the empty block.
	payload, err = b.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(payload))
}

func TestSyncBufferClear(t *testing.T) {
	b := NewSync(nil)
	ctx := context.Background()

	require.NoError(t, b.AddEvent(ctx, evt(5, 0)))
	require.NoError(t, b.Clear(ctx))
	assert.False(t, b.HasEvents())
	assert.Zero(t, b.Size())
}

// TestPropertySizeAndEarliest verifies that for any sequence of adds whose
// cumulative size stays under the cap, HasEvents is true and
// EarliestTimestamp equals the minimum timestamp added.
func TestPropertySizeAndEarliest(t *testing.T) {
	f := func(timestamps []int64) bool {
		if len(timestamps) == 0 {
			return true
		}
		b := NewSync(func(event.Event) int { return 1 })
		ctx := context.Background()

		min := int64(0)
		for _, ts := range timestamps {
			if ts <= 0 {
				ts = -ts + 1 // timestamps are positive unix ms
			}
			if err := b.AddEvent(ctx, event.Event{Timestamp: ts}); err != nil {
				return false
			}
			if min == 0 || ts < min {
				min = ts
			}
		}
		return b.HasEvents() && b.EarliestTimestamp() == min && b.Size() == len(timestamps)
	}

	cfg := &quick.Config{MaxCount: 500}
	if err := quick.Check(f, cfg); err != nil {
		t.Error(err)
	}
}
