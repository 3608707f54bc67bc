package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yantianqi1/write-agent/internal/memory"
)

// InMemoryMemoryStore is the reference implementation of memory.Backend —
// spec.md §6's "memory: {add, update, get, delete, list, search}" contract
// (search itself is internal/memory.Service's job, layered on List).
type InMemoryMemoryStore struct {
	mu    sync.RWMutex
	items map[string]memory.Item
}

// NewInMemoryMemoryStore constructs an empty InMemoryMemoryStore.
func NewInMemoryMemoryStore() *InMemoryMemoryStore {
	return &InMemoryMemoryStore{items: make(map[string]memory.Item)}
}

func (s *InMemoryMemoryStore) Add(ctx context.Context, item memory.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = now
	}
	s.items[item.ID] = item
	return nil
}

func (s *InMemoryMemoryStore) Update(ctx context.Context, id string, patch memory.Patch) (memory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.items[id]
	if patch.Content != nil {
		it.Content = *patch.Content
	}
	if patch.Metadata != nil {
		if it.Metadata == nil {
			it.Metadata = make(map[string]any, len(patch.Metadata))
		}
		for k, v := range patch.Metadata {
			it.Metadata[k] = v
		}
	}
	if patch.Embedding != nil {
		it.Embedding = patch.Embedding
	}
	it.UpdatedAt = time.Now()
	s.items[id] = it
	return it, nil
}

func (s *InMemoryMemoryStore) Get(ctx context.Context, id string) (memory.Item, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	return it, ok, nil
}

func (s *InMemoryMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *InMemoryMemoryStore) List(ctx context.Context, projectID string, level memory.Level, limit int) ([]memory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []memory.Item
	for _, it := range s.items {
		if it.ProjectID == projectID && it.Level == level {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryMemoryStore) DeleteProject(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, it := range s.items {
		if it.ProjectID == projectID {
			delete(s.items, id)
		}
	}
	return nil
}

var _ memory.Backend = (*InMemoryMemoryStore)(nil)

func (s *InMemoryMemoryStore) snapshot() map[string]memory.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[string]memory.Item, len(s.items))
	for k, v := range s.items {
		cp[k] = v
	}
	return cp
}

func (s *InMemoryMemoryStore) restore(snap map[string]memory.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = snap
}
