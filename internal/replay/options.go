// options.go — Replay pipeline configuration.
// All options are immutable after the container is constructed. Delay and
// duration options are clamped to their hard bounds here, once, so the
// rest of the pipeline never re-validates.
package replay

import (
	"time"

	"github.com/replaykit/replay-go/internal/event"
	"github.com/replaykit/replay-go/internal/session"
	"github.com/replaykit/replay-go/internal/transport"
	"github.com/replaykit/replay-go/internal/worker"
	"github.com/rs/zerolog"
)

// Defaults and hard bounds. The idle timeouts are deliberately not
// user-tunable: they are part of the session model, not a knob.
const (
	DefaultFlushMinDelay     = 5 * time.Second
	DefaultFlushMaxDelay     = 5500 * time.Millisecond
	DefaultMinReplayDuration = 4999 * time.Millisecond
	// MinReplayDurationCeiling caps user-supplied MinReplayDuration.
	MinReplayDurationCeiling = 15 * time.Second
	DefaultMaxReplayDuration = time.Hour
	// MaxReplayDurationCeiling caps user-supplied MaxReplayDuration.
	MaxReplayDurationCeiling = time.Hour

	DefaultMutationLimit           = 10_000
	DefaultMutationBreadcrumbLimit = 750

	// SessionIdlePause is how long without activity before recording is
	// paused; SessionIdleExpire is how long before the session expires.
	SessionIdlePause  = 5 * time.Minute
	SessionIdleExpire = 15 * time.Minute

	// BufferCheckoutWindow is the cadence at which recorders should emit
	// checkout snapshots in buffer mode; each checkout truncates the
	// buffered window to roughly this much recent history.
	BufferCheckoutWindow = time.Minute

	// flushTooLongGrace is the slack past MaxReplayDuration after which a
	// flush attempt is rejected without retry.
	flushTooLongGrace = 5 * time.Second
	// segmentAgeSlack is the extra allowance on buffered-event age before
	// a segment is considered stale (e.g. a suspended background tab) and
	// dropped instead of sent.
	segmentAgeSlack = 30 * time.Second

	// Ingestion throttle: events per sliding window.
	throttleMaxCount      = 300
	throttleWindowSeconds = 5

	defaultSendRetryCount = 3
	defaultSendRetryBase  = 5 * time.Second
)

// Options configure one Replay container.
type Options struct {
	// SessionSampleRate is the probability a new session records in
	// session mode; ErrorSampleRate > 0 allows buffer-mode recording for
	// sessions that lose the draw.
	SessionSampleRate float64
	ErrorSampleRate   float64

	// StickySession persists the session across restarts via Store.
	StickySession bool
	// Store overrides session persistence; defaults to in-memory.
	Store session.Store

	// UseCompression routes events through the compression worker.
	UseCompression bool
	// WorkerFactory overrides the default in-process compressor.
	WorkerFactory worker.Factory

	FlushMinDelay     time.Duration
	FlushMaxDelay     time.Duration
	MinReplayDuration time.Duration
	MaxReplayDuration time.Duration

	MutationLimit           int
	MutationBreadcrumbLimit int

	// Sender ships finished segments. Required.
	Sender transport.Sender
	// Recorder is the event producer under pause/resume control. Optional.
	Recorder Recorder
	// Estimator overrides the event size estimate.
	Estimator event.SizeEstimator

	Logger zerolog.Logger
}

// withDefaults returns a copy with zero values filled in and bounds
// applied.
func (o Options) withDefaults() Options {
	if o.Store == nil {
		o.Store = session.NewMemoryStore()
	}
	if o.Recorder == nil {
		o.Recorder = NopRecorder{}
	}
	if o.FlushMinDelay <= 0 {
		o.FlushMinDelay = DefaultFlushMinDelay
	}
	if o.FlushMaxDelay <= 0 {
		o.FlushMaxDelay = DefaultFlushMaxDelay
	}
	if o.FlushMaxDelay < o.FlushMinDelay {
		o.FlushMaxDelay = o.FlushMinDelay
	}
	if o.MinReplayDuration <= 0 {
		o.MinReplayDuration = DefaultMinReplayDuration
	}
	if o.MinReplayDuration > MinReplayDurationCeiling {
		o.MinReplayDuration = MinReplayDurationCeiling
	}
	if o.MaxReplayDuration <= 0 {
		o.MaxReplayDuration = DefaultMaxReplayDuration
	}
	if o.MaxReplayDuration > MaxReplayDurationCeiling {
		o.MaxReplayDuration = MaxReplayDurationCeiling
	}
	if o.MutationLimit <= 0 {
		o.MutationLimit = DefaultMutationLimit
	}
	if o.MutationBreadcrumbLimit <= 0 {
		o.MutationBreadcrumbLimit = DefaultMutationBreadcrumbLimit
	}
	return o
}
