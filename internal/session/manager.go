// manager.go — Session creation, sticky reuse, and sampling.
// Persistence failures are swallowed: a broken store degrades the manager
// to in-memory-only sessions, it never surfaces an error to the pipeline.
package session

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// CreateOptions control how a new session is sampled and persisted.
type CreateOptions struct {
	// SampleRate is the Bernoulli probability of full session sampling.
	SampleRate float64
	// AllowBuffering downgrades an unsampled session to buffer mode
	// instead of dropping it.
	AllowBuffering bool
	// Sticky persists the session through the store.
	Sticky bool
	// PreviousSessionID carries continuity across a refresh.
	PreviousSessionID string
}

// Manager creates, loads, and persists sessions.
type Manager struct {
	store Store
	log   zerolog.Logger

	now       func() time.Time // injectable for tests
	randFloat func() float64
}

// NewManager creates a manager over the given store.
func NewManager(store Store, log zerolog.Logger) *Manager {
	return &Manager{
		store:     store,
		log:       log,
		now:       time.Now,
		randFloat: rand.Float64,
	}
}

// Create makes a fresh session, sampling it exactly once: "session" on a
// successful draw against SampleRate, else "buffer" if buffering is
// allowed, else unsampled. Persists when sticky.
func (m *Manager) Create(opts CreateOptions) *Session {
	sampled := SampleNone
	if m.randFloat() < opts.SampleRate {
		sampled = SampleSession
	} else if opts.AllowBuffering {
		sampled = SampleBuffer
	}

	s := New(sampled, opts.PreviousSessionID, m.now())
	if opts.Sticky {
		if err := m.store.Save(s); err != nil {
			m.log.Debug().Err(err).Msg("session save failed, continuing in-memory")
		}
	}
	m.log.Debug().Str("session_id", s.ID).Str("sampled", string(s.Sampled)).Msg("session created")
	return s
}

// LoadOrCreate returns the persisted session if one exists and is not
// expired; otherwise it creates a new one carrying the old session's id
// as PreviousSessionID.
func (m *Manager) LoadOrCreate(opts CreateOptions, policy ExpiryPolicy) *Session {
	if !opts.Sticky {
		return m.Create(opts)
	}

	existing, err := m.store.Load()
	if err != nil {
		if err != ErrNoSession {
			m.log.Debug().Err(err).Msg("session load failed, creating fresh")
		}
		return m.Create(opts)
	}

	if !existing.IsExpired(policy, m.now()) {
		return existing
	}

	opts.PreviousSessionID = existing.ID
	return m.Create(opts)
}

// Save persists the session, swallowing store failures.
func (m *Manager) Save(s *Session) {
	if err := m.store.Save(s); err != nil {
		m.log.Debug().Err(err).Msg("session save failed")
	}
}

// Clear removes any persisted session, swallowing store failures.
func (m *Manager) Clear() {
	if err := m.store.Clear(); err != nil {
		m.log.Debug().Err(err).Msg("session clear failed")
	}
}
