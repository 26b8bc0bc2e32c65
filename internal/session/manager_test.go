// manager_test.go — Unit tests for session creation, stickiness, and
// persistence degradation.
package session

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore errors on every operation, simulating unavailable storage.
type failingStore struct{}

func (failingStore) Load() (*Session, error) { return nil, errors.New("storage unavailable") }
func (failingStore) Save(*Session) error     { return errors.New("storage unavailable") }
func (failingStore) Clear() error            { return errors.New("storage unavailable") }

func newTestManager(store Store) *Manager {
	return NewManager(store, zerolog.Nop())
}

func TestCreateSamplingModes(t *testing.T) {
	tests := []struct {
		name           string
		draw           float64
		sampleRate     float64
		allowBuffering bool
		want           SampleMode
	}{
		{"draw under rate", 0.2, 0.5, false, SampleSession},
		{"draw over rate, buffering", 0.9, 0.5, true, SampleBuffer},
		{"draw over rate, no buffering", 0.9, 0.5, false, SampleNone},
		{"rate zero, buffering", 0.0, 0.0, true, SampleBuffer},
		{"rate one", 0.99, 1.0, false, SampleSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(NewMemoryStore())
			m.randFloat = func() float64 { return tt.draw }
			s := m.Create(CreateOptions{SampleRate: tt.sampleRate, AllowBuffering: tt.allowBuffering})
			assert.Equal(t, tt.want, s.Sampled)
		})
	}
}

func TestCreateStickyPersists(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)
	m.randFloat = func() float64 { return 0 }

	s := m.Create(CreateOptions{SampleRate: 1, Sticky: true})

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
}

func TestLoadOrCreateReusesUnexpired(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)
	m.randFloat = func() float64 { return 0 }

	first := m.Create(CreateOptions{SampleRate: 1, Sticky: true})
	second := m.LoadOrCreate(CreateOptions{SampleRate: 1, Sticky: true}, testPolicy)

	assert.Equal(t, first.ID, second.ID, "unexpired sticky session must be reused")
}

func TestLoadOrCreateReplacesExpired(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)
	m.randFloat = func() float64 { return 0 }

	base := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return base }
	first := m.Create(CreateOptions{SampleRate: 1, Sticky: true})

	// Jump past the idle expiry: a new session is created, back-referencing
	// the old one.
	m.now = func() time.Time { return base.Add(time.Hour) }
	second := m.LoadOrCreate(CreateOptions{SampleRate: 1, Sticky: true}, testPolicy)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.ID, second.PreviousSessionID)
}

func TestLoadOrCreateNonStickyAlwaysCreates(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)
	m.randFloat = func() float64 { return 0 }

	first := m.LoadOrCreate(CreateOptions{SampleRate: 1}, testPolicy)
	second := m.LoadOrCreate(CreateOptions{SampleRate: 1}, testPolicy)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestStoreFailuresAreSwallowed(t *testing.T) {
	m := newTestManager(failingStore{})
	m.randFloat = func() float64 { return 0 }

	// None of these may panic or error out.
	s := m.LoadOrCreate(CreateOptions{SampleRate: 1, Sticky: true}, testPolicy)
	require.NotNil(t, s)
	assert.Equal(t, SampleSession, s.Sampled)
	m.Save(s)
	m.Clear()
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay-session.json")
	fs := NewFileStore(path)

	_, err := fs.Load()
	assert.ErrorIs(t, err, ErrNoSession)

	s := New(SampleSession, "", time.Unix(1_700_000_000, 0))
	s.SegmentID = 7
	require.NoError(t, fs.Save(s))

	loaded, err := fs.Load()
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, 7, loaded.SegmentID)
	assert.Equal(t, SampleSession, loaded.Sampled)

	require.NoError(t, fs.Clear())
	_, err = fs.Load()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.NoError(t, fs.Clear(), "clearing an empty store is not an error")
}
