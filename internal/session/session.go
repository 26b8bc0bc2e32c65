// session.go — Session value type: the identity and lifecycle anchor for
// one recording.
package session

import (
	"time"

	"github.com/google/uuid"
)

// SampleMode says how a session participates in recording.
type SampleMode string

const (
	// SampleSession records continuously and sends every segment.
	SampleSession SampleMode = "session"
	// SampleBuffer records into a bounded recent-history window and only
	// sends when explicitly triggered (e.g. by an error).
	SampleBuffer SampleMode = "buffer"
	// SampleNone means the session is not recorded at all.
	SampleNone SampleMode = ""
)

// Session identifies one recording and carries its lifecycle state.
// Timestamps are unix milliseconds. SegmentID starts at 0 and is
// incremented exactly once per successfully-initiated flush; segment ids
// are never reused within a session.
type Session struct {
	ID                string     `json:"id"`
	Started           int64      `json:"started"`
	LastActivity      int64      `json:"lastActivity"`
	SegmentID         int        `json:"segmentId"`
	Sampled           SampleMode `json:"sampled"`
	PreviousSessionID string     `json:"previousSessionId,omitempty"`
}

// New creates a session starting now with a fresh id.
func New(sampled SampleMode, previousID string, now time.Time) *Session {
	ms := now.UnixMilli()
	return &Session{
		ID:                uuid.NewString(),
		Started:           ms,
		LastActivity:      ms,
		Sampled:           sampled,
		PreviousSessionID: previousID,
	}
}

// Touch updates the last-activity timestamp.
func (s *Session) Touch(now time.Time) {
	s.LastActivity = now.UnixMilli()
}

// ExpiryPolicy holds the wall-clock bounds a session is checked against.
type ExpiryPolicy struct {
	IdleExpire  time.Duration // max gap since last activity
	MaxDuration time.Duration // hard ceiling on total session age
}

// IsExpired reports whether the session has been idle too long or has
// outlived the maximum replay duration.
func (s *Session) IsExpired(p ExpiryPolicy, now time.Time) bool {
	ms := now.UnixMilli()
	if ms-s.LastActivity >= p.IdleExpire.Milliseconds() {
		return true
	}
	return ms-s.Started >= p.MaxDuration.Milliseconds()
}

// ShouldRefresh reports whether the session must be replaced with a fresh
// one. Identical to expiry EXCEPT a buffering session that has not produced
// any segment yet is never refreshable: it must keep accumulating until a
// trigger converts it.
func (s *Session) ShouldRefresh(p ExpiryPolicy, now time.Time) bool {
	if s.Sampled == SampleBuffer && s.SegmentID == 0 {
		return false
	}
	return s.IsExpired(p, now)
}
