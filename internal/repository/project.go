package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yantianqi1/write-agent/internal/coreerr"
)

// Project is the bookkeeping record spec.md §6's "project: {create, get,
// update, delete, list}" repository contract manages. The project's actual
// authoring state (characters, world, plot points, style) lives in
// internal/memory under this ID, not here — Project only tracks identity
// and naming.
type Project struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProjectStore is spec.md §6's project repository contract.
type ProjectStore interface {
	Create(ctx context.Context, p Project) error
	Get(ctx context.Context, id string) (Project, bool, error)
	Update(ctx context.Context, p Project) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Project, error)
}

// InMemoryProjectStore is the reference ProjectStore implementation.
type InMemoryProjectStore struct {
	mu       sync.RWMutex
	projects map[string]Project
}

// NewInMemoryProjectStore constructs an empty InMemoryProjectStore.
func NewInMemoryProjectStore() *InMemoryProjectStore {
	return &InMemoryProjectStore{projects: make(map[string]Project)}
}

func (s *InMemoryProjectStore) Create(ctx context.Context, p Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[p.ID]; exists {
		return coreerr.New(coreerr.ConcurrencyConflict, "project already exists: "+p.ID)
	}
	s.projects[p.ID] = p
	return nil
}

func (s *InMemoryProjectStore) Get(ctx context.Context, id string) (Project, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	return p, ok, nil
}

func (s *InMemoryProjectStore) Update(ctx context.Context, p Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[p.ID]; !exists {
		return coreerr.New(coreerr.NotFound, "project not found: "+p.ID)
	}
	s.projects[p.ID] = p
	return nil
}

func (s *InMemoryProjectStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, id)
	return nil
}

func (s *InMemoryProjectStore) List(ctx context.Context) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// snapshot returns a copy of the current project map, for
// Repositories.WithTransaction's rollback support.
func (s *InMemoryProjectStore) snapshot() map[string]Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[string]Project, len(s.projects))
	for k, v := range s.projects {
		cp[k] = v
	}
	return cp
}

func (s *InMemoryProjectStore) restore(snap map[string]Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = snap
}
