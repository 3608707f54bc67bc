package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func newFakeStore() *fakeStore { return &fakeStore{sessions: map[string]Session{}} }

func (f *fakeStore) Create(ctx context.Context, sess Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sess.ID] = sess
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (Session, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	return s, ok, nil
}

func (f *fakeStore) Save(ctx context.Context, sess Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sess.ID] = sess
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func TestCreateLoadDelete(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeStore(), 5, nil, nil)

	sess, err := svc.Create(ctx, "proj1")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	loaded, err := svc.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "proj1", loaded.ProjectID)

	require.NoError(t, svc.Delete(ctx, sess.ID))
	_, err = svc.Load(ctx, sess.ID)
	assert.Error(t, err)
}

func TestAppendTurnIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeStore(), 50, nil, nil)
	sess, err := svc.Create(ctx, "")
	require.NoError(t, err)

	sess, err = svc.AppendTurn(ctx, sess, Turn{Role: RoleUser, Text: "hi", Timestamp: time.Now()})
	require.NoError(t, err)
	sess, err = svc.AppendTurn(ctx, sess, Turn{Role: RoleAssistant, Text: "hello", Timestamp: time.Now()})
	require.NoError(t, err)

	require.Len(t, sess.Turns, 2)
	assert.Equal(t, RoleUser, sess.Turns[0].Role)
	assert.Equal(t, RoleAssistant, sess.Turns[1].Role)
}

type summarizerFunc func(ctx context.Context, evicted []Turn) (string, error)

func (f summarizerFunc) Summarize(ctx context.Context, evicted []Turn) (string, error) {
	return f(ctx, evicted)
}

type sinkRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (s *sinkRecorder) AppendContext(ctx context.Context, projectID, content string, order int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, content)
	return nil
}

func TestTurnCapEvictsOldestAndSummarizes(t *testing.T) {
	ctx := context.Background()
	sink := &sinkRecorder{}
	summarizer := summarizerFunc(func(ctx context.Context, evicted []Turn) (string, error) {
		return "summary:" + evicted[0].Text, nil
	})
	svc := NewService(newFakeStore(), 2, summarizer, sink)

	sess, err := svc.Create(ctx, "p1")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		sess, err = svc.AppendTurn(ctx, sess, Turn{Role: RoleUser, Text: "turn", Timestamp: time.Now()})
		require.NoError(t, err)
	}

	assert.Len(t, sess.Turns, 2, "working window never exceeds the cap")
	assert.Equal(t, 2, sess.EvictedCount)
	assert.Len(t, sink.calls, 2)
}

func TestWithLockSerializesSameSession(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeStore(), 50, nil, nil)
	sess, err := svc.Create(ctx, "")
	require.NoError(t, err)

	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.WithLock(ctx, sess.ID, func(ctx context.Context, s Session) (Session, error) {
				order = append(order, i)
				return s, nil
			})
		}()
	}
	wg.Wait()
	assert.Len(t, order, 5, "every call ran without a torn write to the shared slice")
}
