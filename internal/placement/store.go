package placement

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store persists placement sessions.
// Update applies fn to the current session and saves the result atomically;
// nothing is saved when fn returns an error.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, fn func(s *Session) error) (*Session, error)
}

// MemoryStore keeps sessions in process
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new session
func (m *MemoryStore) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; exists {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

// Get returns a copy of a live session
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// Update runs fn under the store lock
func (m *MemoryStore) Update(ctx context.Context, id string, fn func(s *Session) error) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	m.sessions[id] = working
	return working.Clone(), nil
}

func (m *MemoryStore) lookup(id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok || s.Expired(m.now()) {
		return nil, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	return s, nil
}

// PurgeExpired drops sessions expired at now and returns how many were removed
func (m *MemoryStore) PurgeExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			purged++
		}
	}
	return purged
}

// Len returns the number of stored sessions, expired or not
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
