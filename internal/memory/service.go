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

package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/yantianqi1/write-agent/internal/coreerr"
	"github.com/yantianqi1/write-agent/internal/vector"
)

// DefaultContextCap bounds how many CONTEXT items are retained per project
// before the oldest is evicted (spec.md §4.B: "ring-buffered — oldest
// evicted when count exceeds bound"). ~2-3 chapters plus recent dialogue.
const DefaultContextCap = 24

// Service implements component B over a persistence Backend and an optional
// vector.Store + Embedder pair. A nil Embedder degrades Search to
// lexical-only matching, matching vector.NilStore's role.
type Service struct {
	backend     Backend
	vectorStore vector.Store
	embedder    Embedder
	contextCap  int
}

// New constructs a Service. store may be vector.NilStore{} and embedder may
// be nil to run lexical-only.
func New(backend Backend, store vector.Store, embedder Embedder) *Service {
	if store == nil {
		store = vector.NilStore{}
	}
	return &Service{backend: backend, vectorStore: store, embedder: embedder, contextCap: DefaultContextCap}
}

// WithContextCap overrides the CONTEXT ring-buffer bound.
func (s *Service) WithContextCap(cap int) *Service {
	if cap > 0 {
		s.contextCap = cap
	}
	return s
}

// Add stores item, assigning an ID if absent, and indexes its embedding
// (if an Embedder is configured) into the vector store.
func (s *Service) Add(ctx context.Context, item Item) (string, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if err := s.embed(ctx, &item); err != nil {
		return "", err
	}
	if err := s.backend.Add(ctx, item); err != nil {
		return "", coreerr.Wrap(coreerr.Storage, err, "add memory item")
	}
	if err := s.indexVector(ctx, item); err != nil {
		return "", err
	}
	return item.ID, nil
}

// Update applies patch to id. If patch.Content changes the text, the
// embedding is recomputed (spec.md §4.B invariant) and re-indexed.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (Item, error) {
	item, err := s.backend.Update(ctx, id, patch)
	if err != nil {
		return Item{}, coreerr.Wrap(coreerr.Storage, err, "update memory item")
	}
	if patch.Content != nil {
		if err := s.embed(ctx, &item); err != nil {
			return Item{}, err
		}
		if _, err := s.backend.Update(ctx, id, Patch{Embedding: item.Embedding}); err != nil {
			return Item{}, coreerr.Wrap(coreerr.Storage, err, "re-index memory item")
		}
		if err := s.indexVector(ctx, item); err != nil {
			return Item{}, err
		}
	}
	return item, nil
}

// Get retrieves a single item by id.
func (s *Service) Get(ctx context.Context, id string) (Item, error) {
	item, ok, err := s.backend.Get(ctx, id)
	if err != nil {
		return Item{}, coreerr.Wrap(coreerr.Storage, err, "get memory item")
	}
	if !ok {
		return Item{}, coreerr.New(coreerr.NotFound, "memory item not found: "+id)
	}
	return item, nil
}

// Delete removes an item by id, from both the backend and the vector index.
func (s *Service) Delete(ctx context.Context, id string) error {
	item, ok, err := s.backend.Get(ctx, id)
	if err != nil {
		return coreerr.Wrap(coreerr.Storage, err, "get memory item before delete")
	}
	if !ok {
		return nil
	}
	if err := s.backend.Delete(ctx, id); err != nil {
		return coreerr.Wrap(coreerr.Storage, err, "delete memory item")
	}
	_ = s.vectorStore.Delete(ctx, item.ProjectID, id)
	return nil
}

// List returns up to limit items at level for projectID (0 = unbounded),
// newest-updated first.
func (s *Service) List(ctx context.Context, projectID string, level Level, limit int) ([]Item, error) {
	items, err := s.backend.List(ctx, projectID, level, limit)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Storage, err, "list memory items")
	}
	return items, nil
}

// DeleteProject removes every memory item belonging to projectID.
func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	if err := s.backend.DeleteProject(ctx, projectID); err != nil {
		return coreerr.Wrap(coreerr.Storage, err, "delete project memory")
	}
	return nil
}

func (s *Service) embed(ctx context.Context, item *Item) error {
	item.ContentHash = HashContent(item.Content)
	if s.embedder == nil {
		item.Embedding = nil
		return nil
	}
	vec, err := s.embedder.Embed(ctx, item.Content)
	if err != nil {
		return coreerr.Wrap(coreerr.ProviderError, err, "compute embedding")
	}
	item.Embedding = vec
	return nil
}

func (s *Service) indexVector(ctx context.Context, item Item) error {
	if len(item.Embedding) == 0 {
		return nil
	}
	meta := map[string]any{"level": string(item.Level), "id": item.ID}
	if err := s.vectorStore.Upsert(ctx, item.ProjectID, item.ID, item.Embedding, meta); err != nil {
		return coreerr.Wrap(coreerr.Storage, err, "index embedding")
	}
	return nil
}

// UpsertCharacter merges a character mention into the one logical CHARACTER
// item for name (spec.md §4.B: "updates merge traits/relationships"). New
// traits/relationships are unioned with any already stored; summary
// replaces the prior content.
func (s *Service) UpsertCharacter(ctx context.Context, projectID, name, summary string, traits []string, relationships map[string]string) (Item, error) {
	existing, err := s.findByMetaKey(ctx, projectID, Character, "name", name)
	if err != nil {
		return Item{}, err
	}
	if existing == nil {
		meta := map[string]any{
			"name":          name,
			"traits":        uniqueStrings(traits),
			"relationships": copyRelationships(relationships),
		}
		item := Item{ProjectID: projectID, Level: Character, Content: summary, Metadata: meta}
		id, err := s.Add(ctx, item)
		if err != nil {
			return Item{}, err
		}
		return s.Get(ctx, id)
	}

	mergedTraits := uniqueStrings(append(stringsFromMeta(existing.Metadata["traits"]), traits...))
	mergedRel := copyRelationships(relMapFromMeta(existing.Metadata["relationships"]))
	for k, v := range relationships {
		mergedRel[k] = v
	}
	patch := Patch{
		Content: &summary,
		Metadata: map[string]any{
			"name":          name,
			"traits":        mergedTraits,
			"relationships": mergedRel,
		},
	}
	return s.Update(ctx, existing.ID, patch)
}

// UpsertStyle replaces the singleton STYLE item for aspect (spec.md §4.B:
// "upsert-by-aspect").
func (s *Service) UpsertStyle(ctx context.Context, projectID, aspect, content string) (Item, error) {
	existing, err := s.findByMetaKey(ctx, projectID, Style, "aspect", aspect)
	if err != nil {
		return Item{}, err
	}
	if existing == nil {
		item := Item{ProjectID: projectID, Level: Style, Content: content, Metadata: map[string]any{"aspect": aspect}}
		id, err := s.Add(ctx, item)
		if err != nil {
			return Item{}, err
		}
		return s.Get(ctx, id)
	}
	return s.Update(ctx, existing.ID, Patch{Content: &content, Metadata: map[string]any{"aspect": aspect}})
}

// UpsertGlobalFact replaces the singleton GLOBAL item for key (world-level
// facts the settings bundle's World struct tracks — genre, era, locations,
// rules — each projected into memory under its own key so build_context's
// GLOBAL section can retrieve them independently of the session-scoped
// Bundle).
func (s *Service) UpsertGlobalFact(ctx context.Context, projectID, key, content string) (Item, error) {
	existing, err := s.findByMetaKey(ctx, projectID, Global, "key", key)
	if err != nil {
		return Item{}, err
	}
	if existing == nil {
		item := Item{ProjectID: projectID, Level: Global, Content: content, Metadata: map[string]any{"key": key}}
		id, err := s.Add(ctx, item)
		if err != nil {
			return Item{}, err
		}
		return s.Get(ctx, id)
	}
	return s.Update(ctx, existing.ID, Patch{Content: &content, Metadata: map[string]any{"key": key}})
}

// AppendPlotPoint appends a new PLOT item (spec.md §4.B: "appended per
// chapter summary"; plot points are never merged, only added).
func (s *Service) AppendPlotPoint(ctx context.Context, projectID, content string, metadata map[string]any) (Item, error) {
	existing, err := s.backend.List(ctx, projectID, Plot, 0)
	if err != nil {
		return Item{}, coreerr.Wrap(coreerr.Storage, err, "list plot points")
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["seq"] = len(existing) + 1
	item := Item{ProjectID: projectID, Level: Plot, Content: content, Metadata: metadata}
	id, err := s.Add(ctx, item)
	if err != nil {
		return Item{}, err
	}
	return s.Get(ctx, id)
}

// AppendContext appends a CONTEXT item (latest chapter text / recent
// dialogue) tagged with order, then evicts the oldest item(s) once the
// per-project CONTEXT count exceeds contextCap (spec.md §4.B ring buffer).
func (s *Service) AppendContext(ctx context.Context, projectID, content string, order int) (Item, error) {
	item := Item{ProjectID: projectID, Level: Context, Content: content, Metadata: map[string]any{"order": order}}
	id, err := s.Add(ctx, item)
	if err != nil {
		return Item{}, err
	}
	if err := s.evictContext(ctx, projectID); err != nil {
		return Item{}, err
	}
	return s.Get(ctx, id)
}

func (s *Service) evictContext(ctx context.Context, projectID string) error {
	items, err := s.backend.List(ctx, projectID, Context, 0)
	if err != nil {
		return coreerr.Wrap(coreerr.Storage, err, "list context items")
	}
	if len(items) <= s.contextCap {
		return nil
	}
	sort.Slice(items, func(i, j int) bool { return orderOf(items[i]) < orderOf(items[j]) })
	excess := len(items) - s.contextCap
	for i := 0; i < excess; i++ {
		if err := s.Delete(ctx, items[i].ID); err != nil {
			return err
		}
	}
	return nil
}

func orderOf(it Item) int {
	if v, ok := it.Metadata["order"].(int); ok {
		return v
	}
	return 0
}

func (s *Service) findByMetaKey(ctx context.Context, projectID string, level Level, key, value string) (*Item, error) {
	items, err := s.backend.List(ctx, projectID, level, 0)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Storage, err, "list memory items")
	}
	for _, it := range items {
		if v, ok := it.Metadata[key].(string); ok && v == value {
			cp := it
			return &cp, nil
		}
	}
	return nil, nil
}

func uniqueStrings(in []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func stringsFromMeta(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func relMapFromMeta(v any) map[string]string {
	out := map[string]string{}
	switch t := v.(type) {
	case map[string]string:
		for k, val := range t {
			out[k] = val
		}
	case map[string]any:
		for k, val := range t {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

func copyRelationships(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
