// compression_buffer.go — Worker-backed compressing event buffer.
// Every add is forwarded over the worker channel; finish returns the
// compressed segment bytes. Checkout flag, earliest timestamp, and the
// size estimate are tracked locally because the orchestrator reads them
// synchronously between awaits.
package buffer

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/replaykit/replay-go/internal/event"
	"github.com/replaykit/replay-go/internal/worker"
)

// CompressionBuffer forwards events to the compression worker.
type CompressionBuffer struct {
	channel *worker.Channel

	mu          sync.Mutex
	gen         uint64 // bumped on every reset; guards rollbacks across a reset
	count       int
	size        int
	earliest    int64
	hasCheckout bool
	estimate    event.SizeEstimator
}

// NewCompression creates a compressing buffer over an existing channel.
// The caller is responsible for having awaited channel readiness.
func NewCompression(channel *worker.Channel, estimate event.SizeEstimator) *CompressionBuffer {
	if estimate == nil {
		estimate = event.EstimateJSONSize
	}
	return &CompressionBuffer{channel: channel, estimate: estimate}
}

// AddEvent serializes e and posts it to the worker. The size cap is
// enforced locally, and the size is reserved in the same critical section
// as the check: overlapping adds must never all be admitted against the
// same pre-add total, or the running size silently exceeds the cap.
func (b *CompressionBuffer) AddEvent(ctx context.Context, e event.Event) error {
	sz := b.estimate(e)
	arg, err := json.Marshal(e)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.size+sz > MaxSize {
		current := b.size
		b.mu.Unlock()
		return &SizeExceededError{Current: current, Attempted: sz, Limit: MaxSize}
	}
	b.size += sz
	b.count++
	if b.earliest == 0 || e.Timestamp < b.earliest {
		b.earliest = e.Timestamp
	}
	gen := b.gen
	b.mu.Unlock()

	if _, err := b.channel.Post(ctx, worker.MethodAddEvent, arg); err != nil {
		// Roll the reservation back, unless a finish/clear reset the
		// accounting while the round trip was in flight.
		b.mu.Lock()
		if b.gen == gen {
			b.size -= sz
			b.count--
		}
		b.mu.Unlock()
		return err
	}
	return nil
}

// HasEvents reports whether any event reached the worker since the last
// finish/clear.
func (b *CompressionBuffer) HasEvents() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count > 0
}

// HasCheckout reports whether a full-state snapshot is buffered.
func (b *CompressionBuffer) HasCheckout() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasCheckout
}

// SetHasCheckout marks whether the buffer holds a checkout event.
func (b *CompressionBuffer) SetHasCheckout(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hasCheckout = v
}

// EarliestTimestamp returns the minimum buffered timestamp, 0 if empty.
func (b *CompressionBuffer) EarliestTimestamp() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.earliest
}

// Size returns the locally tracked byte-size estimate.
func (b *CompressionBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Finish asks the worker for the compressed segment and resets local
// state — also on failure, matching the drain-as-side-effect contract.
func (b *CompressionBuffer) Finish(ctx context.Context) ([]byte, error) {
	b.reset()
	resp, err := b.channel.Post(ctx, worker.MethodFinish, nil)
	if err != nil {
		return nil, err
	}
	return resp.Response, nil
}

// Clear drops buffered events on both sides of the channel.
func (b *CompressionBuffer) Clear(ctx context.Context) error {
	b.reset()
	_, err := b.channel.Post(ctx, worker.MethodClear, nil)
	return err
}

// Destroy terminates the worker channel.
func (b *CompressionBuffer) Destroy() {
	b.channel.Destroy()
}

func (b *CompressionBuffer) reset() {
	b.mu.Lock()
	b.gen++
	b.count = 0
	b.size = 0
	b.earliest = 0
	b.hasCheckout = false
	b.mu.Unlock()
}
