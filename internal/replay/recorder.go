// recorder.go — Collaborator interfaces for event production.
// The pipeline never patches into how events are produced: recorders and
// event sources register against the container and push events through an
// emit function. Their lifecycle is tied to the container, not the process.
package replay

import (
	"fmt"

	"github.com/replaykit/replay-go/internal/event"
)

// EmitFunc is how producers hand events to the pipeline. isCheckout marks
// a full-state snapshot that playback can start cold from.
type EmitFunc func(e event.Event, isCheckout bool)

// Recorder is the primary event producer under the container's
// pause/resume control.
type Recorder interface {
	Start(emit EmitFunc) error
	Stop() error
	Pause() error
	Resume() error
	// TakeFullSnapshot asks the recorder to emit a fresh checkout event.
	TakeFullSnapshot(isCheckout bool)
}

// NopRecorder is the default recorder: it produces nothing. Useful when
// all events arrive through registered event sources instead.
type NopRecorder struct{}

func (NopRecorder) Start(EmitFunc) error  { return nil }
func (NopRecorder) Stop() error           { return nil }
func (NopRecorder) Pause() error          { return nil }
func (NopRecorder) Resume() error         { return nil }
func (NopRecorder) TakeFullSnapshot(bool) {}

// EventSource is an auxiliary producer (breadcrumbs, instrumentation
// hooks). Start receives the emit function and returns its stop function.
type EventSource interface {
	Start(emit EmitFunc) (stop func(), err error)
}

// EventSourceFunc adapts a function to EventSource.
type EventSourceFunc func(emit EmitFunc) (stop func(), err error)

// Start implements EventSource.
func (f EventSourceFunc) Start(emit EmitFunc) (func(), error) { return f(emit) }

// RegisterEventSource attaches a producer under a unique id and returns
// its unsubscribe function. All sources are unsubscribed on Stop.
func (r *Replay) RegisterEventSource(id string, src EventSource) (func(), error) {
	r.mu.Lock()
	if !r.enabled {
		r.mu.Unlock()
		return nil, ErrNotStarted
	}
	if _, exists := r.sources[id]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("replay: event source %q already registered", id)
	}
	// Reserve the id before starting the source so a concurrent register
	// of the same id fails fast.
	r.sources[id] = func() {}
	r.mu.Unlock()

	stop, err := src.Start(r.emit)
	if err != nil {
		r.unregisterSource(id, false)
		return nil, err
	}

	r.mu.Lock()
	if !r.enabled {
		// Stopped while the source was starting.
		r.mu.Unlock()
		stop()
		return func() {}, nil
	}
	r.sources[id] = stop
	r.mu.Unlock()

	return func() { r.unregisterSource(id, true) }, nil
}

// unregisterSource removes a source and optionally invokes its stop func.
func (r *Replay) unregisterSource(id string, callStop bool) {
	r.mu.Lock()
	stop, ok := r.sources[id]
	if ok {
		delete(r.sources, id)
	}
	r.mu.Unlock()

	if ok && callStop {
		stop()
	}
}

// emit is the EmitFunc handed to producers.
func (r *Replay) emit(e event.Event, isCheckout bool) {
	r.AddEvent(e, isCheckout)
}
