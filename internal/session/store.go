// store.go — Session persistence adapters.
// A sticky session survives restarts of the host application by round-
// tripping through a Store. Store failures are never fatal: the manager
// swallows them and degrades to in-memory-only sessions.
package session

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
)

// ErrNoSession is returned by Load when no session record is persisted.
var ErrNoSession = errors.New("session: no persisted session")

// Store persists at most one session record.
type Store interface {
	Load() (*Session, error)
	Save(*Session) error
	Clear() error
}

// ============================================
// FileStore
// ============================================

// FileStore keeps the session record as a small JSON file, the Go analog
// of keyed browser storage.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads and decodes the persisted session record.
func (fs *FileStore) Load() (*Session, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.ID == "" {
		return nil, ErrNoSession
	}
	return &s, nil
}

// Save writes the session record, replacing any previous one.
func (fs *FileStore) Save(s *Session) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(fs.path, data, 0o600)
}

// Clear removes the persisted record. Missing file is not an error.
func (fs *FileStore) Clear() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	err := os.Remove(fs.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ============================================
// MemoryStore
// ============================================

// MemoryStore holds the session record in memory. Used when stickiness is
// disabled and as the degraded mode when file persistence fails.
type MemoryStore struct {
	mu      sync.Mutex
	current *Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the held session record.
func (ms *MemoryStore) Load() (*Session, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.current == nil {
		return nil, ErrNoSession
	}
	cp := *ms.current
	return &cp, nil
}

// Save stores a copy of the session record.
func (ms *MemoryStore) Save(s *Session) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	cp := *s
	ms.current = &cp
	return nil
}

// Clear drops the held record.
func (ms *MemoryStore) Clear() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.current = nil
	return nil
}
