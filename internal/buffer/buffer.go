// buffer.go — Event buffer abstraction over the exclusive set of
// not-yet-sent recording events.
// Two interchangeable implementations: a synchronous in-memory list and a
// worker-backed compressing buffer, plus a proxy that migrates between
// them. All implementations enforce the same hard size cap: exceeding it
// fails the add outright, it never silently drops or partially applies.
package buffer

import (
	"context"
	"fmt"

	"github.com/replaykit/replay-go/internal/event"
	"github.com/replaykit/replay-go/internal/worker"
	"github.com/rs/zerolog"
)

// MaxSize is the hard cap on the running byte-size estimate of buffered
// events. Hitting it is fatal for the current buffer instance.
const MaxSize = 20_000_000

// EventBuffer is the contract both implementations satisfy identically.
type EventBuffer interface {
	// AddEvent appends one event. Fails with *SizeExceededError when the
	// new running total would exceed the hard cap; prior contents stay
	// untouched.
	AddEvent(ctx context.Context, e event.Event) error
	// HasEvents reports whether at least one event is buffered.
	HasEvents() bool
	// HasCheckout reports whether the buffer holds a full-state snapshot.
	HasCheckout() bool
	SetHasCheckout(bool)
	// EarliestTimestamp returns the minimum timestamp buffered, 0 if empty.
	EarliestTimestamp() int64
	// Size returns the running byte-size estimate.
	Size() int
	// Finish drains the buffer and returns the serialized (and, for the
	// compressing implementation, compressed) payload. The buffer is reset
	// as a side effect even if the caller discards the result.
	Finish(ctx context.Context) ([]byte, error)
	// Clear drops all buffered events.
	Clear(ctx context.Context) error
	// Destroy releases background resources. The buffer must not be used
	// afterwards.
	Destroy()
}

// SizeExceededError reports an add that would push the buffer over the cap.
type SizeExceededError struct {
	Current   int
	Attempted int
	Limit     int
}

func (e *SizeExceededError) Error() string {
	return fmt.Sprintf("buffer: size exceeded: %d + %d > %d", e.Current, e.Attempted, e.Limit)
}

// Options configure buffer construction.
type Options struct {
	// UseCompression routes events through the background worker.
	UseCompression bool
	// WorkerFactory overrides the default in-process compressor.
	WorkerFactory worker.Factory
	// Estimator overrides the default JSON-length size estimate.
	Estimator event.SizeEstimator
	Logger    zerolog.Logger
}

// New builds the event buffer for the given options: a plain sync buffer,
// or a proxy that upgrades to the compressing buffer once its worker is
// ready and degrades to sync when it never is.
func New(opts Options) EventBuffer {
	if opts.Estimator == nil {
		opts.Estimator = event.EstimateJSONSize
	}
	if !opts.UseCompression {
		return NewSync(opts.Estimator)
	}
	factory := opts.WorkerFactory
	if factory == nil {
		factory = worker.Compressor
	}
	return NewProxy(factory, opts.Estimator, opts.Logger)
}
