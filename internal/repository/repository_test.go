package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yantianqi1/write-agent/internal/generator"
	"github.com/yantianqi1/write-agent/internal/memory"
	"github.com/yantianqi1/write-agent/internal/session"
)

func TestProjectStoreCRUD(t *testing.T) {
	store := NewInMemoryProjectStore()
	ctx := context.Background()

	p := Project{ID: "p1", Name: "Neon Shanghai", CreatedAt: time.Now()}
	require.NoError(t, store.Create(ctx, p))

	err := store.Create(ctx, p)
	assert.Error(t, err, "creating the same project id twice is a conflict")

	got, ok, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Neon Shanghai", got.Name)

	got.Name = "Neon Shanghai Nights"
	require.NoError(t, store.Update(ctx, got))
	reloaded, _, _ := store.Get(ctx, "p1")
	assert.Equal(t, "Neon Shanghai Nights", reloaded.Name)

	require.NoError(t, store.Create(ctx, Project{ID: "p2", Name: "Second", CreatedAt: time.Now().Add(time.Second)}))
	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "p1", all[0].ID, "list is ordered by creation time")

	require.NoError(t, store.Delete(ctx, "p1"))
	_, ok, _ = store.Get(ctx, "p1")
	assert.False(t, ok)
}

func TestInMemoryMemoryStoreSatisfiesBackend(t *testing.T) {
	var _ memory.Backend = NewInMemoryMemoryStore()

	store := NewInMemoryMemoryStore()
	ctx := context.Background()

	item := memory.Item{ID: "m1", ProjectID: "p1", Level: memory.Character, Content: "Lin Feng"}
	require.NoError(t, store.Add(ctx, item))

	newContent := "Lin Feng, ex-detective"
	updated, err := store.Update(ctx, "m1", memory.Patch{Content: &newContent})
	require.NoError(t, err)
	assert.Equal(t, newContent, updated.Content)

	items, err := store.List(ctx, "p1", memory.Character, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, store.DeleteProject(ctx, "p1"))
	items, err = store.List(ctx, "p1", memory.Character, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestInMemorySessionStoreSatisfiesStore(t *testing.T) {
	var _ session.Store = NewInMemorySessionStore()

	store := NewInMemorySessionStore()
	ctx := context.Background()
	sess := session.Session{ID: "s1", ProjectID: "p1"}
	require.NoError(t, store.Create(ctx, sess))

	err := store.Create(ctx, sess)
	assert.Error(t, err)

	sess.Turns = append(sess.Turns, session.Turn{Role: session.RoleUser, Text: "hi"})
	require.NoError(t, store.Save(ctx, sess))

	reloaded, ok, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, reloaded.Turns, 1)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, ok, _ = store.Get(ctx, "s1")
	assert.False(t, ok)
}

func TestInMemoryChapterStoreSatisfiesChapterStore(t *testing.T) {
	var _ generator.ChapterStore = NewInMemoryChapterStore()

	store := NewInMemoryChapterStore()
	ctx := context.Background()

	cur := generator.Chapter{ID: "c1", ProjectID: "p1", ChapterNumber: 1, Status: generator.Current}
	require.NoError(t, store.Save(ctx, cur))
	draft := generator.Chapter{ID: "c2", ProjectID: "p1", ChapterNumber: 1, Status: generator.Draft}
	require.NoError(t, store.Save(ctx, draft))

	current, ok, err := store.CurrentByNumber(ctx, "p1", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c1", current.ID)

	siblings, err := store.ListByNumber(ctx, "p1", 1)
	require.NoError(t, err)
	assert.Len(t, siblings, 2)

	all, err := store.ListByProject(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestWithTransactionCommitsAllOrNothing(t *testing.T) {
	repos := New()
	ctx := context.Background()

	err := repos.WithTransaction(ctx, func(ctx context.Context) error {
		if err := repos.Memory.Add(ctx, memory.Item{ID: "m1", ProjectID: "p1", Level: memory.Plot, Content: "the AI goes missing"}); err != nil {
			return err
		}
		return repos.Chapter.Save(ctx, generator.Chapter{ID: "c1", ProjectID: "p1", ChapterNumber: 1, Status: generator.Draft})
	})
	require.NoError(t, err)

	_, ok, _ := repos.Memory.Get(ctx, "m1")
	assert.True(t, ok)
	_, ok, _ = repos.Chapter.Get(ctx, "c1")
	assert.True(t, ok)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	repos := New()
	ctx := context.Background()

	boom := errors.New("boom")
	err := repos.WithTransaction(ctx, func(ctx context.Context) error {
		if err := repos.Memory.Add(ctx, memory.Item{ID: "m1", ProjectID: "p1", Level: memory.Plot, Content: "partial write"}); err != nil {
			return err
		}
		if err := repos.Chapter.Save(ctx, generator.Chapter{ID: "c1", ProjectID: "p1", ChapterNumber: 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, ok, _ := repos.Memory.Get(ctx, "m1")
	assert.False(t, ok, "memory write must be rolled back when the turn's transaction fails")
	_, ok, _ = repos.Chapter.Get(ctx, "c1")
	assert.False(t, ok, "chapter write must be rolled back when the turn's transaction fails")
}
