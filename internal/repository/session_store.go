package repository

import (
	"context"
	"sync"

	"github.com/yantianqi1/write-agent/internal/coreerr"
	"github.com/yantianqi1/write-agent/internal/session"
)

// InMemorySessionStore is the reference implementation of session.Store —
// spec.md §6's "session: {create, append_turn, load, evict}" contract
// (append_turn and evict are session.Service's job, layered on Get/Save).
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
}

// NewInMemorySessionStore constructs an empty InMemorySessionStore.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]session.Session)}
}

func (s *InMemorySessionStore) Create(ctx context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return coreerr.New(coreerr.ConcurrencyConflict, "session already exists: "+sess.ID)
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *InMemorySessionStore) Get(ctx context.Context, id string) (session.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok, nil
}

func (s *InMemorySessionStore) Save(ctx context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *InMemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

var _ session.Store = (*InMemorySessionStore)(nil)

func (s *InMemorySessionStore) snapshot() map[string]session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[string]session.Session, len(s.sessions))
	for k, v := range s.sessions {
		cp[k] = v
	}
	return cp
}

func (s *InMemorySessionStore) restore(snap map[string]session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = snap
}
