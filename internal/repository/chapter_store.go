package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/yantianqi1/write-agent/internal/generator"
)

// InMemoryChapterStore is the reference implementation of
// generator.ChapterStore — spec.md §6's "chapter: {add, get_current, list,
// set_current, history}" contract. set_current/history are
// generator.Service.Accept/DeleteCurrent's job, layered on Save/Get.
type InMemoryChapterStore struct {
	mu       sync.RWMutex
	chapters map[string]generator.Chapter
}

// NewInMemoryChapterStore constructs an empty InMemoryChapterStore.
func NewInMemoryChapterStore() *InMemoryChapterStore {
	return &InMemoryChapterStore{chapters: make(map[string]generator.Chapter)}
}

func (s *InMemoryChapterStore) Save(ctx context.Context, ch generator.Chapter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chapters[ch.ID] = ch
	return nil
}

func (s *InMemoryChapterStore) Get(ctx context.Context, id string) (generator.Chapter, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.chapters[id]
	return ch, ok, nil
}

func (s *InMemoryChapterStore) ListByNumber(ctx context.Context, projectID string, chapterNumber int) ([]generator.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []generator.Chapter
	for _, ch := range s.chapters {
		if ch.ProjectID == projectID && ch.ChapterNumber == chapterNumber {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (s *InMemoryChapterStore) CurrentByNumber(ctx context.Context, projectID string, chapterNumber int) (generator.Chapter, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.chapters {
		if ch.ProjectID == projectID && ch.ChapterNumber == chapterNumber && ch.Status == generator.Current {
			return ch, true, nil
		}
	}
	return generator.Chapter{}, false, nil
}

// ListByProject returns every chapter record for projectID, any status,
// ordered by chapter number then creation time — spec.md §6's
// "list_generations(project_id) -> records".
func (s *InMemoryChapterStore) ListByProject(ctx context.Context, projectID string) ([]generator.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []generator.Chapter
	for _, ch := range s.chapters {
		if ch.ProjectID == projectID {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChapterNumber != out[j].ChapterNumber {
			return out[i].ChapterNumber < out[j].ChapterNumber
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

var _ generator.ChapterStore = (*InMemoryChapterStore)(nil)

func (s *InMemoryChapterStore) snapshot() map[string]generator.Chapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[string]generator.Chapter, len(s.chapters))
	for k, v := range s.chapters {
		cp[k] = v
	}
	return cp
}

func (s *InMemoryChapterStore) restore(snap map[string]generator.Chapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chapters = snap
}
