package memory

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yantianqi1/write-agent/internal/vector"
)

// fakeBackend is a minimal in-memory Backend used only by this package's
// own tests, mirroring the teacher's pkg/memory/mocks.go fixture idea.
type fakeBackend struct {
	mu    sync.Mutex
	items map[string]Item
}

func newFakeBackend() *fakeBackend { return &fakeBackend{items: map[string]Item{}} }

func (f *fakeBackend) Add(ctx context.Context, item Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	item.CreatedAt, item.UpdatedAt = now, now
	f.items[item.ID] = item
	return nil
}

func (f *fakeBackend) Update(ctx context.Context, id string, patch Patch) (Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return Item{}, assertErr{"not found"}
	}
	if patch.Content != nil {
		item.Content = *patch.Content
	}
	if patch.Embedding != nil {
		item.Embedding = patch.Embedding
	}
	if patch.Metadata != nil {
		if item.Metadata == nil {
			item.Metadata = map[string]any{}
		}
		for k, v := range patch.Metadata {
			item.Metadata[k] = v
		}
	}
	item.UpdatedAt = time.Now()
	f.items[id] = item
	return item, nil
}

func (f *fakeBackend) Get(ctx context.Context, id string) (Item, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	return item, ok, nil
}

func (f *fakeBackend) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

func (f *fakeBackend) List(ctx context.Context, projectID string, level Level, limit int) ([]Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Item
	for _, it := range f.items {
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

func (f *fakeBackend) DeleteProject(ctx context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, it := range f.items {
		if it.ProjectID == projectID {
			delete(f.items, id)
		}
	}
	return nil
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := vector.NewMemoryStore(vector.MemoryConfig{})
	require.NoError(t, err)
	return New(newFakeBackend(), store, nil)
}

func TestAddGetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	id, err := svc.Add(ctx, Item{ProjectID: "p1", Level: Global, Content: "Shanghai is a cyberpunk megacity."})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Shanghai is a cyberpunk megacity.", got.Content)
	assert.Equal(t, HashContent(got.Content), got.ContentHash)

	newContent := "Shanghai, 2077, neon and rain."
	updated, err := svc.Update(ctx, id, Patch{Content: &newContent})
	require.NoError(t, err)
	assert.Equal(t, newContent, updated.Content)

	require.NoError(t, svc.Delete(ctx, id))
	_, err = svc.Get(ctx, id)
	assert.Error(t, err)
}

func TestUpsertCharacterMergesTraits(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.UpsertCharacter(ctx, "p1", "Lin Feng", "Ex-detective hunting an AI.", []string{"ex-detective"}, map[string]string{"Zhao": "rival"})
	require.NoError(t, err)

	item, err := svc.UpsertCharacter(ctx, "p1", "Lin Feng", "Ex-detective, now a fugitive.", []string{"brave"}, map[string]string{"Mei": "ally"})
	require.NoError(t, err)

	traits := stringsFromMeta(item.Metadata["traits"])
	assert.ElementsMatch(t, []string{"ex-detective", "brave"}, traits)

	rel := relMapFromMeta(item.Metadata["relationships"])
	assert.Equal(t, "rival", rel["Zhao"])
	assert.Equal(t, "ally", rel["Mei"])

	items, err := svc.List(ctx, "p1", Character, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1, "character tier stores one logical item per name")
}

func TestUpsertStyleIsSingletonPerAspect(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.UpsertStyle(ctx, "p1", "tone", "dark, noir")
	require.NoError(t, err)
	_, err = svc.UpsertStyle(ctx, "p1", "tone", "dark, hopeful")
	require.NoError(t, err)
	_, err = svc.UpsertStyle(ctx, "p1", "pov", "first person")
	require.NoError(t, err)

	items, err := svc.List(ctx, "p1", Style, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestContextRingBufferEvictsOldest(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t).WithContextCap(3)

	for i := 0; i < 5; i++ {
		_, err := svc.AppendContext(ctx, "p1", "turn text", i)
		require.NoError(t, err)
	}

	items, err := svc.List(ctx, "p1", Context, 0)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for _, it := range items {
		assert.GreaterOrEqual(t, orderOf(it), 2, "oldest two turns should have been evicted")
	}
}

func TestPlotPointsAreAppendOnly(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.AppendPlotPoint(ctx, "p1", "Lin Feng discovers the AI is alive.", nil)
	require.NoError(t, err)
	_, err = svc.AppendPlotPoint(ctx, "p1", "The AI reveals its true goal.", nil)
	require.NoError(t, err)

	items, err := svc.List(ctx, "p1", Plot, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestSearchLexicalFusion(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Add(ctx, Item{ProjectID: "p1", Level: Global, Content: "The city of Shanghai glows with neon rain."})
	require.NoError(t, err)
	_, err = svc.Add(ctx, Item{ProjectID: "p1", Level: Global, Content: "A quiet village in the mountains."})
	require.NoError(t, err)

	results, err := svc.Search(ctx, "p1", "Shanghai neon", Global, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Item.Content, "Shanghai")
	assert.Greater(t, results[0].Score, 0.0)
}

func TestBuildContextRespectsBudget(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	for i := 0; i < 3; i++ {
		_, err := svc.AppendContext(ctx, "p1", "Chapter text describing a long chase scene through the rain-slick streets of Shanghai.", i)
		require.NoError(t, err)
	}
	_, err := svc.UpsertCharacter(ctx, "p1", "Lin Feng", "A world-weary ex-detective.", nil, nil)
	require.NoError(t, err)
	_, err = svc.AppendPlotPoint(ctx, "p1", "Lin Feng finds the first clue.", nil)
	require.NoError(t, err)
	_, err = svc.Add(ctx, Item{ProjectID: "p1", Level: Global, Content: "2077 Shanghai, cyberpunk."})
	require.NoError(t, err)
	_, err = svc.UpsertStyle(ctx, "p1", "tone", "noir")
	require.NoError(t, err)

	text, err := svc.BuildContext(ctx, "p1", "Lin Feng Shanghai", 200, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}
