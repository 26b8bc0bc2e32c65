// sync_buffer.go — Synchronous in-memory event buffer.
// The default implementation and the degradation target when the
// compression worker is unavailable. Size is the sum of per-event
// estimates; Finish serializes the whole list to one JSON block.
package buffer

import (
	"context"
	"sync"

	"github.com/replaykit/replay-go/internal/event"
)

// SyncBuffer holds events in an ordered in-memory list. Thread-safe.
type SyncBuffer struct {
	mu          sync.Mutex
	events      []event.Event
	size        int
	earliest    int64
	hasCheckout bool
	estimate    event.SizeEstimator
}

// NewSync creates an empty synchronous buffer.
func NewSync(estimate event.SizeEstimator) *SyncBuffer {
	if estimate == nil {
		estimate = event.EstimateJSONSize
	}
	return &SyncBuffer{estimate: estimate}
}

// AddEvent appends e, enforcing the hard size cap atomically.
func (b *SyncBuffer) AddEvent(_ context.Context, e event.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sz := b.estimate(e)
	if b.size+sz > MaxSize {
		return &SizeExceededError{Current: b.size, Attempted: sz, Limit: MaxSize}
	}

	b.events = append(b.events, e)
	b.size += sz
	if b.earliest == 0 || e.Timestamp < b.earliest {
		b.earliest = e.Timestamp
	}
	return nil
}

// HasEvents reports whether the buffer is non-empty.
func (b *SyncBuffer) HasEvents() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events) > 0
}

// HasCheckout reports whether a full-state snapshot is buffered.
func (b *SyncBuffer) HasCheckout() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasCheckout
}

// SetHasCheckout marks whether the buffer holds a checkout event.
func (b *SyncBuffer) SetHasCheckout(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hasCheckout = v
}

// EarliestTimestamp returns the minimum buffered timestamp, 0 if empty.
func (b *SyncBuffer) EarliestTimestamp() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.earliest
}

// Size returns the running byte-size estimate.
func (b *SyncBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Finish serializes all buffered events to one JSON array and resets the
// buffer, even when serialization fails.
func (b *SyncBuffer) Finish(_ context.Context) ([]byte, error) {
	b.mu.Lock()
	events := b.events
	b.resetLocked()
	b.mu.Unlock()

	return event.Serialize(events)
}

// Clear drops all buffered events.
func (b *SyncBuffer) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
	return nil
}

// Destroy is a no-op: the sync buffer holds no background resources.
func (b *SyncBuffer) Destroy() {}

// drain removes and returns all buffered events plus the checkout flag,
// for migration into the compressing buffer.
func (b *SyncBuffer) drain() ([]event.Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.events
	hasCheckout := b.hasCheckout
	b.resetLocked()
	return events, hasCheckout
}

// resetLocked empties the buffer. Caller must hold mu.
func (b *SyncBuffer) resetLocked() {
	b.events = nil
	b.size = 0
	b.earliest = 0
	b.hasCheckout = false
}
