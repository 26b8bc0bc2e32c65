// replay.go — Replay container: the orchestrator owning the session, the
// event buffer, recording state, and the flush coordinator.
// All mutable state hangs off this struct and dies with it; collaborators
// receive callbacks, never package globals. The container is thread-safe;
// the single-flight flush discipline lives in flush.go.
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/replaykit/replay-go/internal/buffer"
	"github.com/replaykit/replay-go/internal/debounce"
	"github.com/replaykit/replay-go/internal/event"
	"github.com/replaykit/replay-go/internal/session"
	"github.com/replaykit/replay-go/internal/throttle"
	"github.com/rs/zerolog"
)

// State is the observable recording state.
type State int

const (
	StateNotStarted State = iota
	StateRecordingSession
	StateRecordingBuffer
	StatePaused
	StateStopped
)

// StopOptions control Stop behavior.
type StopOptions struct {
	// ForceFlush ships whatever is buffered before teardown.
	ForceFlush bool
	// Reason is recorded in the debug log; defaults to "stop".
	Reason string
}

// Replay is the session-recording pipeline orchestrator.
type Replay struct {
	opts      Options
	log       zerolog.Logger
	sessions  *session.Manager
	policy    session.ExpiryPolicy
	limiter   *throttle.Limiter
	collector *event.ContextCollector
	debounced *debounce.Debouncer

	mu          sync.Mutex
	started     bool
	enabled     bool
	paused      bool
	mode        session.SampleMode
	session     *session.Session
	eventBuffer buffer.EventBuffer
	sources     map[string]func()
	inFlight    chan struct{} // non-nil while a flush is running

	// Injectable for tests.
	now        func() time.Time
	sleep      func(time.Duration)
	retryCount int
	retryBase  time.Duration
}

// New creates a container. The sender is the only required option.
func New(opts Options) (*Replay, error) {
	if opts.Sender == nil {
		return nil, errors.New("replay: options: Sender is required")
	}
	opts = opts.withDefaults()

	r := &Replay{
		opts:      opts,
		log:       opts.Logger,
		sessions:  session.NewManager(opts.Store, opts.Logger),
		policy:    session.ExpiryPolicy{IdleExpire: SessionIdleExpire, MaxDuration: opts.MaxReplayDuration},
		limiter:   throttle.NewLimiter(throttleMaxCount, throttleWindowSeconds),
		collector: event.NewContextCollector(),

		now:        time.Now,
		sleep:      time.Sleep,
		retryCount: defaultSendRetryCount,
		retryBase:  defaultSendRetryBase,
	}
	r.debounced = debounce.New(func() error { return r.flush(false) }, opts.FlushMinDelay, opts.FlushMaxDelay)
	return r, nil
}

// Start begins recording in session mode with a fresh, always-sampled
// session.
func (r *Replay) Start() error {
	return r.startRecording(session.CreateOptions{
		SampleRate: 1,
		Sticky:     r.opts.StickySession,
	})
}

// StartBuffering begins recording in buffer mode: events accumulate in the
// recent-history window and are only sent when a trigger converts the
// session (SendBufferedReplayOrFlush).
func (r *Replay) StartBuffering() error {
	return r.startRecording(session.CreateOptions{
		SampleRate:     0,
		AllowBuffering: true,
		Sticky:         r.opts.StickySession,
	})
}

// Initialize boots recording from the configured sampling rates, reusing a
// sticky session when one is persisted and unexpired. An unsampled draw
// leaves the container in StateNotStarted; that is not an error.
func (r *Replay) Initialize() error {
	sess := r.sessions.LoadOrCreate(session.CreateOptions{
		SampleRate:     r.opts.SessionSampleRate,
		AllowBuffering: r.opts.ErrorSampleRate > 0,
		Sticky:         r.opts.StickySession,
	}, r.policy)

	if sess.Sampled == session.SampleNone {
		r.log.Debug().Str("session_id", sess.ID).Msg("session not sampled, recording disabled")
		return nil
	}
	return r.attach(sess)
}

func (r *Replay) startRecording(createOpts session.CreateOptions) error {
	return r.attach(r.sessions.Create(createOpts))
}

// attach wires a session into the container and starts producing.
func (r *Replay) attach(sess *session.Session) error {
	r.mu.Lock()
	if r.enabled {
		r.mu.Unlock()
		return errors.New("replay: already started")
	}
	r.session = sess
	r.mode = sess.Sampled
	r.eventBuffer = buffer.New(buffer.Options{
		UseCompression: r.opts.UseCompression,
		WorkerFactory:  r.opts.WorkerFactory,
		Estimator:      r.opts.Estimator,
		Logger:         r.log,
	})
	r.sources = make(map[string]func())
	r.started = true
	r.enabled = true
	r.paused = false
	r.mu.Unlock()

	if err := r.opts.Recorder.Start(r.emit); err != nil {
		_ = r.Stop(StopOptions{Reason: "recorderStartFailed"})
		return fmt.Errorf("replay: start recorder: %w", err)
	}

	r.log.Debug().
		Str("session_id", sess.ID).
		Str("mode", string(sess.Sampled)).
		Msg("recording started")
	return nil
}

// Stop tears recording down. Idempotent. Buffering is disabled
// synchronously, before anything blocks, so a concurrent flush cannot race
// a re-entrant stop.
func (r *Replay) Stop(opts StopOptions) error {
	r.mu.Lock()
	if !r.enabled {
		r.mu.Unlock()
		return nil
	}
	r.enabled = false
	r.paused = false
	sources := r.sources
	r.sources = nil
	r.mu.Unlock()

	reason := opts.Reason
	if reason == "" {
		reason = ReasonStopCalled
	}
	r.log.Debug().Str("reason", reason).Bool("force_flush", opts.ForceFlush).Msg("stopping recording")

	r.debounced.Cancel()
	for _, stop := range sources {
		stop()
	}
	if err := r.opts.Recorder.Stop(); err != nil {
		r.log.Debug().Err(err).Msg("recorder stop failed")
	}

	if opts.ForceFlush {
		if err := r.flush(true); err != nil {
			r.log.Debug().Err(err).Msg("final flush failed, events dropped")
		}
	}

	r.mu.Lock()
	if r.eventBuffer != nil {
		r.eventBuffer.Destroy()
		r.eventBuffer = nil
	}
	r.session = nil
	r.mu.Unlock()

	r.sessions.Clear()
	return nil
}

// Pause stops only the underlying recorder; listeners stay registered and
// the session keeps aging.
func (r *Replay) Pause() error {
	r.mu.Lock()
	if !r.enabled {
		r.mu.Unlock()
		return ErrNotStarted
	}
	if r.paused {
		r.mu.Unlock()
		return nil
	}
	r.paused = true
	r.mu.Unlock()

	return r.opts.Recorder.Pause()
}

// Resume restarts the recorder, provided the session is still valid, and
// triggers a fresh full-state snapshot so playback can pick up cold.
func (r *Replay) Resume() error {
	r.mu.Lock()
	if !r.enabled {
		r.mu.Unlock()
		return ErrNotStarted
	}
	if !r.paused {
		r.mu.Unlock()
		return nil
	}
	ok, stopReason := r.checkSessionLocked()
	if !ok {
		r.mu.Unlock()
		if stopReason != "" {
			_ = r.Stop(StopOptions{Reason: stopReason})
		}
		return ErrSessionExpired
	}
	r.paused = false
	r.mu.Unlock()

	if err := r.opts.Recorder.Resume(); err != nil {
		return fmt.Errorf("replay: resume recorder: %w", err)
	}
	r.opts.Recorder.TakeFullSnapshot(true)
	return nil
}

// AddEvent feeds one recording event through the rate limiter into the
// buffer. When the limiter starts dropping, exactly one marker event is
// recorded for the streak. Events arriving while the container is stopped
// or paused are dropped before the limiter, so they consume no rate budget.
func (r *Replay) AddEvent(e event.Event, isCheckout bool) {
	r.mu.Lock()
	active := r.enabled && !r.paused && r.session != nil && r.eventBuffer != nil
	r.mu.Unlock()
	if !active {
		return
	}

	switch r.limiter.Attempt() {
	case throttle.Allowed:
		r.addEventInternal(e, isCheckout)
	case throttle.Throttled:
		r.addEventInternal(throttledMarker(r.now()), false)
	case throttle.Skipped:
		// Still over the limit; already marked.
	}
}

func (r *Replay) addEventInternal(e event.Event, isCheckout bool) {
	r.mu.Lock()
	if !r.enabled || r.paused || r.session == nil || r.eventBuffer == nil {
		r.mu.Unlock()
		return
	}
	now := r.now()
	// Events older than the idle-pause window are stale leftovers from a
	// suspended producer; recording them would stretch the segment window.
	if e.Timestamp > 0 && now.UnixMilli()-e.Timestamp > SessionIdlePause.Milliseconds() {
		r.mu.Unlock()
		return
	}
	buf := r.eventBuffer
	mode := r.mode
	r.session.Touch(now)
	r.mu.Unlock()

	ctx := context.Background()
	if isCheckout && mode == session.SampleBuffer {
		// Buffer mode keeps only the window since the latest checkout.
		if err := buf.Clear(ctx); err != nil {
			r.log.Debug().Err(err).Msg("buffer clear before checkout failed")
		}
	}

	if err := buf.AddEvent(ctx, e); err != nil {
		var sizeErr *buffer.SizeExceededError
		if errors.As(err, &sizeErr) {
			r.log.Error().Err(err).Msg("event buffer exceeded hard cap, stopping recording")
			_ = r.Stop(StopOptions{Reason: ReasonAddEventSizeExceeded})
			return
		}
		r.log.Debug().Err(err).Msg("add event failed")
		return
	}

	if isCheckout {
		buf.SetHasCheckout(true)
	}
	if mode == session.SampleSession {
		r.debounced.Invoke()
	}
}

// SendBufferedReplayOrFlush is the buffer-mode trigger (e.g. an error
// occurred): a buffering session is converted to session mode and its
// accumulated window shipped; a session-mode recording simply flushes.
func (r *Replay) SendBufferedReplayOrFlush() error {
	r.mu.Lock()
	if !r.enabled || r.session == nil {
		r.mu.Unlock()
		return ErrNotStarted
	}
	converted := false
	if r.mode == session.SampleBuffer {
		r.mode = session.SampleSession
		r.session.Sampled = session.SampleSession
		r.session.Touch(r.now())
		converted = true
	}
	sess := r.session
	r.mu.Unlock()

	if converted && r.opts.StickySession {
		r.sessions.Save(sess)
	}

	err := r.FlushImmediate()
	if converted {
		// The next segment starts cold from a fresh snapshot.
		r.opts.Recorder.TakeFullSnapshot(true)
	}
	return err
}

// OnMutations is the mutation-pressure guard: beyond MutationLimit the
// recording is aborted entirely, beyond MutationBreadcrumbLimit a
// breadcrumb is recorded. Returns whether recording may continue.
func (r *Replay) OnMutations(count int) bool {
	if count > r.opts.MutationLimit {
		r.log.Debug().Int("count", count).Msg("mutation limit exceeded, stopping recording")
		_ = r.Stop(StopOptions{Reason: ReasonMutationLimit})
		return false
	}
	if count > r.opts.MutationBreadcrumbLimit {
		r.addEventInternal(mutationBreadcrumb(count, r.now()), false)
	}
	return true
}

// CheckSession lazily re-validates the session, refreshing it when the
// refresh policy says so. Returns whether recording may continue.
func (r *Replay) CheckSession() bool {
	r.mu.Lock()
	if !r.enabled {
		r.mu.Unlock()
		return false
	}
	ok, stopReason := r.checkSessionLocked()
	r.mu.Unlock()

	if !ok && stopReason != "" {
		_ = r.Stop(StopOptions{Reason: stopReason})
	}
	return ok
}

// checkSessionLocked validates or refreshes the session. Caller holds mu.
// A non-empty stopReason asks the caller to stop the container after
// releasing the lock.
func (r *Replay) checkSessionLocked() (ok bool, stopReason string) {
	if r.session == nil {
		return false, ""
	}
	if !r.session.ShouldRefresh(r.policy, r.now()) {
		return true, ""
	}
	return r.refreshSessionLocked()
}

// refreshSessionLocked replaces an expired session with a fresh one,
// dropping stale buffer contents and segment context. Caller holds mu.
func (r *Replay) refreshSessionLocked() (bool, string) {
	old := r.session
	fresh := r.sessions.Create(session.CreateOptions{
		SampleRate:        r.opts.SessionSampleRate,
		AllowBuffering:    r.opts.ErrorSampleRate > 0,
		Sticky:            r.opts.StickySession,
		PreviousSessionID: old.ID,
	})

	r.collector.Pop()
	if r.eventBuffer != nil {
		if err := r.eventBuffer.Clear(context.Background()); err != nil {
			r.log.Debug().Err(err).Msg("buffer clear on session refresh failed")
		}
	}

	if fresh.Sampled == session.SampleNone {
		return false, ReasonSessionUnsampled
	}
	r.session = fresh
	r.mode = fresh.Sampled
	r.log.Debug().Str("session_id", fresh.ID).Str("previous", old.ID).Msg("session refreshed")
	return true, ""
}

// UpdateUserActivity marks user activity for idle tracking.
func (r *Replay) UpdateUserActivity() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		r.session.Touch(r.now())
	}
}

// RecordURL attaches a visited URL to the open segment's context.
func (r *Replay) RecordURL(url string) { r.collector.AddURL(url) }

// RecordErrorID attaches an error id to the open segment's context.
func (r *Replay) RecordErrorID(id string) { r.collector.AddErrorID(id) }

// RecordTraceID attaches a trace id to the open segment's context.
func (r *Replay) RecordTraceID(id string) { r.collector.AddTraceID(id) }

// ReplayID returns the current session id, empty when not recording.
func (r *Replay) ReplayID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return ""
	}
	return r.session.ID
}

// State returns the observable recording state.
func (r *Replay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case !r.started:
		return StateNotStarted
	case !r.enabled:
		return StateStopped
	case r.paused:
		return StatePaused
	case r.mode == session.SampleBuffer:
		return StateRecordingBuffer
	default:
		return StateRecordingSession
	}
}

// throttledMarker is the single breadcrumb recorded when the rate limiter
// starts dropping events.
func throttledMarker(now time.Time) event.Event {
	data, _ := json.Marshal(map[string]any{
		"tag": "breadcrumb",
		"payload": map[string]any{
			"category": "replay.throttled",
		},
	})
	return event.Event{Timestamp: now.UnixMilli(), Type: event.TypeCustom, Data: data}
}

// mutationBreadcrumb warns that a burst of mutations is approaching the
// abort threshold.
func mutationBreadcrumb(count int, now time.Time) event.Event {
	data, _ := json.Marshal(map[string]any{
		"tag": "breadcrumb",
		"payload": map[string]any{
			"category": "replay.mutations",
			"data":     map[string]int{"count": count},
		},
	})
	return event.Event{Timestamp: now.UnixMilli(), Type: event.TypeCustom, Data: data}
}
