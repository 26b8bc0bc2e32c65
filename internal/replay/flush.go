// flush.go — Flush coordinator: turns the buffered window into a numbered
// segment and ships it.
// Only one flush runs at a time. A flush that arrives while another is in
// flight waits for it and then re-queues through the debouncer, so there is
// always at least one attempt after the last event was added. Segment ids
// are committed before the send; a failed send burns the id rather than
// risking duplicates.
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/replaykit/replay-go/internal/transport"
)

// Flush schedules a debounced flush.
func (r *Replay) Flush() {
	r.debounced.Invoke()
}

// FlushImmediate forces the pending (or a fresh) flush to run now and
// returns its result.
func (r *Replay) FlushImmediate() error {
	r.debounced.Invoke()
	return r.debounced.Flush()
}

// flush is the debounced target. force bypasses the enabled check so a
// stopping container can ship its tail.
func (r *Replay) flush(force bool) error {
	r.mu.Lock()
	if !r.enabled && !force {
		r.mu.Unlock()
		return nil
	}
	sess := r.session
	if sess == nil || r.eventBuffer == nil {
		r.mu.Unlock()
		return nil
	}

	now := r.now()
	duration := time.Duration(now.UnixMilli()-sess.Started) * time.Millisecond
	if duration < r.opts.MinReplayDuration {
		r.mu.Unlock()
		r.log.Debug().Dur("duration", duration).Msg("segment below minimum duration, flush re-queued")
		time.AfterFunc(r.opts.FlushMinDelay, r.Flush)
		return errSegmentTooShort
	}
	if duration > r.opts.MaxReplayDuration+flushTooLongGrace {
		r.mu.Unlock()
		r.log.Debug().Dur("duration", duration).Msg("segment exceeds maximum duration, dropped")
		return errSegmentTooLong
	}
	if sess.IsExpired(r.policy, now) {
		r.mu.Unlock()
		r.log.Error().Str("session_id", sess.ID).Msg("flush attempted on expired session")
		return ErrSessionExpired
	}

	if r.inFlight != nil {
		// Another flush is running. Wait it out, then re-queue so events
		// added meanwhile still get shipped.
		done := r.inFlight
		r.mu.Unlock()
		<-done
		r.debounced.Invoke()
		return nil
	}
	done := make(chan struct{})
	r.inFlight = done
	r.mu.Unlock()

	err := r.runFlush()

	r.mu.Lock()
	r.inFlight = nil
	r.mu.Unlock()
	close(done)

	if err != nil {
		r.log.Error().Err(err).Msg("flush failed, stopping recording")
		reason := ReasonSendError
		if errors.Is(err, errSegmentTooLong) {
			reason = ReasonSessionTooLong
		}
		_ = r.Stop(StopOptions{Reason: reason})
	}
	return err
}

// runFlush drains the buffer into one segment and sends it with retries.
func (r *Replay) runFlush() error {
	r.mu.Lock()
	sess := r.session
	buf := r.eventBuffer
	if sess == nil || buf == nil || !buf.HasEvents() {
		r.mu.Unlock()
		return nil
	}

	now := r.now()
	if earliest := buf.EarliestTimestamp(); earliest > 0 {
		// A buffer whose oldest event predates the whole allowed window is
		// a resumed, long-suspended producer; shipping it would produce an
		// unplayable segment.
		age := time.Duration(now.UnixMilli()-earliest) * time.Millisecond
		if age > r.opts.MaxReplayDuration+segmentAgeSlack {
			r.mu.Unlock()
			return errSegmentTooLong
		}
	}

	// Commit the segment id before the send so a failure never reuses it.
	segmentID := sess.SegmentID
	sess.SegmentID++
	if r.opts.StickySession {
		r.sessions.Save(sess)
	}
	replayID := sess.ID
	sessCopy := *sess
	eventCtx := r.collector.Pop()
	r.mu.Unlock()

	ctx := context.Background()
	payload, err := buf.Finish(ctx)
	if err != nil {
		return fmt.Errorf("finish buffer: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}

	return r.sendWithRetry(ctx, transport.SendRequest{
		ReplayID:      replayID,
		SegmentID:     segmentID,
		RecordingData: payload,
		Session:       sessCopy,
		EventContext:  eventCtx,
		Timestamp:     now,
	})
}

// sendWithRetry ships one segment with bounded exponential backoff. Rate
// limiting from the collector is terminal: backing off and re-sending would
// only make the pressure worse.
func (r *Replay) sendWithRetry(ctx context.Context, req transport.SendRequest) error {
	var err error
	for attempt := 0; attempt <= r.retryCount; attempt++ {
		if attempt > 0 {
			r.sleep(retryBackoff(attempt, r.retryBase))
		}
		err = r.opts.Sender.SendSegment(ctx, req)
		if err == nil {
			return nil
		}
		var rlErr *transport.RateLimitError
		if errors.As(err, &rlErr) {
			r.log.Debug().Dur("retry_after", rlErr.RetryAfter).Msg("collector rate limited, giving up")
			return err
		}
		r.log.Debug().Err(err).Int("attempt", attempt+1).Int("segment_id", req.SegmentID).
			Msg("segment send failed")
	}
	return fmt.Errorf("replay: send segment %d failed after %d attempts: %w",
		req.SegmentID, r.retryCount+1, err)
}

// retryBackoff doubles the base delay per additional attempt.
func retryBackoff(attempt int, base time.Duration) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
