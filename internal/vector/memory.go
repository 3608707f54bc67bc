// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// MemoryConfig configures the in-memory exact-search store.
type MemoryConfig struct {
	// PersistPath, if set, persists the database to a gob file under this
	// directory on every write. Empty means memory-only, lost on restart.
	PersistPath string
}

// MemoryStore implements Store using chromem-go's brute-force cosine
// search, spec.md §4.B's "in-memory exact-search variant for tests and
// small projects".
type MemoryStore struct {
	db          *chromem.DB
	persistPath string
	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

// NewMemoryStore creates a MemoryStore, loading a prior persisted database
// from cfg.PersistPath if one exists.
func NewMemoryStore(cfg MemoryConfig) (*MemoryStore, error) {
	var db *chromem.DB

	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("creating vector persist directory: %w", err)
		}
		dbPath := filepath.Join(cfg.PersistPath, "vectors.gob")
		if _, err := os.Stat(dbPath); err == nil {
			loaded, loadErr := chromem.NewPersistentDB(dbPath, false)
			if loadErr != nil {
				slog.Warn("failed to load persisted vector store, starting fresh", "path", dbPath, "error", loadErr)
				db = chromem.NewDB()
			} else {
				db = loaded
			}
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	return &MemoryStore{db: db, persistPath: cfg.PersistPath, collections: make(map[string]*chromem.Collection)}, nil
}

func (s *MemoryStore) Name() string { return "memory" }

func identityEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("vector.MemoryStore: embeddings must be pre-computed, got bare text %q", text)
}

func (s *MemoryStore) collection(name string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c, err := s.db.GetOrCreateCollection(name, nil, identityEmbed)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %q: %w", name, err)
	}
	s.collections[name] = c
	return c, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, collection, id string, vec []float32, metadata map[string]any) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}

	strMeta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		strMeta[k] = fmt.Sprint(v)
	}
	content := ""
	if c, ok := metadata["content"].(string); ok {
		content = c
	}

	doc := chromem.Document{ID: id, Content: content, Metadata: strMeta, Embedding: vec}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("upserting vector %s: %w", id, err)
	}
	return s.persist()
}

func (s *MemoryStore) Query(ctx context.Context, collection string, vec []float32, k int, filter map[string]any) ([]Result, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	var where map[string]string
	if len(filter) > 0 {
		where = make(map[string]string, len(filter))
		for k, v := range filter {
			where[k] = fmt.Sprint(v)
		}
	}

	n := k
	if count := col.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vec, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %q: %w", collection, err)
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		metadata := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			metadata[k] = v
		}
		out = append(out, Result{ID: r.ID, Score: r.Similarity, Content: r.Content, Metadata: metadata})
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("deleting vector %s: %w", id, err)
	}
	return s.persist()
}

func (s *MemoryStore) Close() error { return s.persist() }

func (s *MemoryStore) persist() error {
	if s.persistPath == "" {
		return nil
	}
	dbPath := filepath.Join(s.persistPath, "vectors.gob")
	//nolint:staticcheck // chromem-go's replacement API is not yet stable across versions.
	if err := s.db.Export(dbPath, false, ""); err != nil {
		return fmt.Errorf("persisting vector store: %w", err)
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
