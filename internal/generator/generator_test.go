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

package generator

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yantianqi1/write-agent/internal/consistency"
	"github.com/yantianqi1/write-agent/internal/llm"
	"github.com/yantianqi1/write-agent/internal/memory"
	"github.com/yantianqi1/write-agent/internal/settings"
	"github.com/yantianqi1/write-agent/internal/tokenizer"
)

func TestWordCountLatin(t *testing.T) {
	assert.Equal(t, 5, WordCount("the quick brown fox jumps", ""))
}

func TestWordCountCJKHint(t *testing.T) {
	assert.Equal(t, 5, WordCount("我爱写小说", "zh"))
}

func TestWordCountAutoDetectsScriptPerParagraph(t *testing.T) {
	text := "Hello there friend\n\n我爱写作的故事"
	n := WordCount(text, "")
	assert.Equal(t, 3+7, n)
}

func TestSettingsFingerprintStableUnderReorder(t *testing.T) {
	a := settings.Bundle{
		Characters: []settings.Character{{Name: "B", Traits: []string{"x", "y"}}, {Name: "A"}},
		World:      settings.World{Locations: []string{"Mars", "Earth"}},
	}
	b := settings.Bundle{
		Characters: []settings.Character{{Name: "A"}, {Name: "B", Traits: []string{"y", "x"}}},
		World:      settings.World{Locations: []string{"Earth", "Mars"}},
	}
	assert.Equal(t, SettingsFingerprint(a), SettingsFingerprint(b))
}

func TestSettingsFingerprintChangesOnContentChange(t *testing.T) {
	a := settings.Bundle{World: settings.World{Genre: "noir"}}
	b := settings.Bundle{World: settings.World{Genre: "cyberpunk"}}
	assert.NotEqual(t, SettingsFingerprint(a), SettingsFingerprint(b))
}

func TestComposePromptOrdersSectionsAndIncludesSeed(t *testing.T) {
	bundle := settings.Bundle{
		World:      settings.World{Genre: "cyberpunk", Locations: []string{"Shanghai"}},
		Characters: []settings.Character{{Name: "Lin Feng", Role: settings.Protagonist, Traits: []string{"ex-detective"}}},
		StyleHints: map[string]string{"pov": "third limited", "tense": "past"},
	}
	req := Request{Mode: Continue, ChapterNumber: 2, TargetLengthWords: 1500, PreviousContent: "Paragraph one.\n\nParagraph two, the most recent."}

	messages := ComposePrompt(bundle, "recent plot memory here", req, tokenizer.HeuristicCounter{})
	require.Len(t, messages, 2)
	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Contains(t, messages[0].Content, "third limited")

	user := messages[1].Content
	worldIdx := strings.Index(user, "World:")
	charIdx := strings.Index(user, "Characters:")
	memIdx := strings.Index(user, "recent plot memory here")
	taskIdx := strings.Index(user, "Task:")
	seedIdx := strings.Index(user, "Paragraph two")
	require.True(t, worldIdx >= 0 && charIdx > worldIdx && memIdx > charIdx && taskIdx > memIdx && seedIdx > taskIdx)
	assert.Contains(t, user, "Lin Feng")
	assert.Contains(t, user, "1500 words")
}

func TestContinuationSeedRespectsTokenBudget(t *testing.T) {
	para := strings.Repeat("word ", 50)
	long := strings.Repeat(para+"\n\n", 60)
	req := Request{Mode: Expand, PreviousContent: long}
	messages := ComposePrompt(settings.Bundle{}, "", req, tokenizer.HeuristicCounter{})
	seedStart := strings.Index(messages[1].Content, "Continue directly from this previous text:")
	require.GreaterOrEqual(t, seedStart, 0)
	seed := messages[1].Content[seedStart:]
	n, _ := tokenizer.HeuristicCounter{}.Count(seed)
	assert.LessOrEqual(t, n, continuationSeedBudget+50)
}

// --- Service-level tests ---

type fakeGen struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (f *fakeGen) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	content := "a generated chapter"
	if idx < len(f.responses) {
		content = f.responses[idx]
	}
	return llm.Response{Content: content, FinishReason: llm.FinishStop, Usage: llm.Usage{TotalTokens: 42}}, nil
}

type fakeChapterStore struct {
	mu       sync.Mutex
	byID     map[string]Chapter
}

func newFakeChapterStore() *fakeChapterStore {
	return &fakeChapterStore{byID: map[string]Chapter{}}
}

func (f *fakeChapterStore) Save(ctx context.Context, ch Chapter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[ch.ID] = ch
	return nil
}

func (f *fakeChapterStore) Get(ctx context.Context, id string) (Chapter, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.byID[id]
	return ch, ok, nil
}

func (f *fakeChapterStore) ListByNumber(ctx context.Context, projectID string, chapterNumber int) ([]Chapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Chapter
	for _, ch := range f.byID {
		if ch.ProjectID == projectID && ch.ChapterNumber == chapterNumber {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *fakeChapterStore) CurrentByNumber(ctx context.Context, projectID string, chapterNumber int) (Chapter, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.byID {
		if ch.ProjectID == projectID && ch.ChapterNumber == chapterNumber && ch.Status == Current {
			return ch, true, nil
		}
	}
	return Chapter{}, false, nil
}

func newTestMemory() *memory.Service {
	return memory.New(newFakeMemBackend(), nil, nil)
}

type fakeMemBackend struct {
	mu    sync.Mutex
	items map[string]memory.Item
}

func newFakeMemBackend() *fakeMemBackend { return &fakeMemBackend{items: map[string]memory.Item{}} }

func (b *fakeMemBackend) Add(ctx context.Context, item memory.Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[item.ID] = item
	return nil
}

func (b *fakeMemBackend) Update(ctx context.Context, id string, patch memory.Patch) (memory.Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	it := b.items[id]
	if patch.Content != nil {
		it.Content = *patch.Content
	}
	if patch.Metadata != nil {
		it.Metadata = patch.Metadata
	}
	if patch.Embedding != nil {
		it.Embedding = patch.Embedding
	}
	b.items[id] = it
	return it, nil
}

func (b *fakeMemBackend) Get(ctx context.Context, id string) (memory.Item, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	it, ok := b.items[id]
	return it, ok, nil
}

func (b *fakeMemBackend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.items, id)
	return nil
}

func (b *fakeMemBackend) List(ctx context.Context, projectID string, level memory.Level, limit int) ([]memory.Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []memory.Item
	for _, it := range b.items {
		if it.ProjectID == projectID && it.Level == level {
			out = append(out, it)
		}
	}
	return out, nil
}

func (b *fakeMemBackend) DeleteProject(ctx context.Context, projectID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, it := range b.items {
		if it.ProjectID == projectID {
			delete(b.items, id)
		}
	}
	return nil
}

func TestGenerateProducesDraftAndWritesMemory(t *testing.T) {
	gen := &fakeGen{responses: []string{"Lin Feng walked into the rain.", "A short plot summary."}}
	mem := newTestMemory()
	checker := consistency.NewChecker(nil)
	store := newFakeChapterStore()
	svc := NewService(gen, mem, checker, store, Config{ContextWindowTokens: 8192, RetrievalK: 4})

	bundle := settings.Bundle{Characters: []settings.Character{{Name: "Lin Feng", Role: settings.Protagonist}}}
	result, err := svc.Generate(context.Background(), bundle, Request{Mode: Full, ProjectID: "p1", ChapterNumber: 1})
	require.NoError(t, err)

	assert.Equal(t, Draft, result.Chapter.Status)
	assert.Equal(t, "Lin Feng walked into the rain.", result.Chapter.Content)
	assert.Greater(t, result.Chapter.WordCount, 0)
	assert.NotEmpty(t, result.Chapter.SettingsFingerprint)

	items, err := mem.List(context.Background(), "p1", memory.Plot, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "A short plot summary.", items[0].Content)

	ctxItems, err := mem.List(context.Background(), "p1", memory.Context, 0)
	require.NoError(t, err)
	require.Len(t, ctxItems, 1)
}

func TestAcceptDemotesPriorCurrent(t *testing.T) {
	store := newFakeChapterStore()
	svc := NewService(&fakeGen{}, nil, nil, store, Config{})

	old := Chapter{ID: "old", ProjectID: "p1", ChapterNumber: 1, Status: Current}
	require.NoError(t, store.Save(context.Background(), old))
	draft := Chapter{ID: "new", ProjectID: "p1", ChapterNumber: 1, Status: Draft}
	require.NoError(t, store.Save(context.Background(), draft))

	accepted, err := svc.Accept(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, Current, accepted.Status)

	reloaded, ok, err := store.Get(context.Background(), "old")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, History, reloaded.Status)
}

func TestDeleteCurrentDemotesToHistoryWithoutErasing(t *testing.T) {
	store := newFakeChapterStore()
	svc := NewService(&fakeGen{}, nil, nil, store, Config{})
	cur := Chapter{ID: "c1", ProjectID: "p1", ChapterNumber: 3, Status: Current, Content: "text"}
	require.NoError(t, store.Save(context.Background(), cur))

	require.NoError(t, svc.DeleteCurrent(context.Background(), "p1", 3))

	reloaded, ok, err := store.Get(context.Background(), "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, History, reloaded.Status)
	assert.Equal(t, "text", reloaded.Content, "rewrite/delete never erases prior content")
}

func TestRewriteSetsParentToPriorCurrent(t *testing.T) {
	gen := &fakeGen{responses: []string{"new version", "summary"}}
	mem := newTestMemory()
	store := newFakeChapterStore()
	svc := NewService(gen, mem, nil, store, Config{ContextWindowTokens: 8192})

	prior := Chapter{ID: "prior-1", ProjectID: "p1", ChapterNumber: 5, Status: Current}
	require.NoError(t, store.Save(context.Background(), prior))

	result, err := svc.Generate(context.Background(), settings.Bundle{}, Request{Mode: Rewrite, ProjectID: "p1", ChapterNumber: 5})
	require.NoError(t, err)
	assert.Equal(t, "prior-1", result.Chapter.Parent)
}
