package generator

import (
	"context"

	"github.com/yantianqi1/write-agent/internal/coreerr"
)

// Accept transitions a DRAFT chapter to CURRENT, demoting every other
// record for the same (project, chapter_number) to HISTORY so at most one
// record is ever CURRENT (spec.md §4.F state machine).
func (s *Service) Accept(ctx context.Context, chapterID string) (Chapter, error) {
	ch, ok, err := s.store.Get(ctx, chapterID)
	if err != nil {
		return Chapter{}, coreerr.Wrap(coreerr.Storage, err, "load chapter for accept")
	}
	if !ok {
		return Chapter{}, coreerr.New(coreerr.NotFound, "chapter not found: "+chapterID)
	}
	if ch.Status != Draft {
		return Chapter{}, coreerr.New(coreerr.Validation, "only a DRAFT chapter can be accepted")
	}

	siblings, err := s.store.ListByNumber(ctx, ch.ProjectID, ch.ChapterNumber)
	if err != nil {
		return Chapter{}, coreerr.Wrap(coreerr.Storage, err, "list sibling chapter records")
	}
	for _, sib := range siblings {
		if sib.ID == ch.ID || sib.Status != Current {
			continue
		}
		sib.Status = History
		sib.UpdatedAt = timeNow()
		if err := s.store.Save(ctx, sib); err != nil {
			return Chapter{}, coreerr.Wrap(coreerr.Storage, err, "demote prior current chapter")
		}
	}

	ch.Status = Current
	ch.UpdatedAt = timeNow()
	if err := s.store.Save(ctx, ch); err != nil {
		return Chapter{}, coreerr.Wrap(coreerr.Storage, err, "save accepted chapter")
	}
	return ch, nil
}

// DeleteCurrent demotes the CURRENT record for (project, chapterNumber) to
// HISTORY (spec.md §4.F: "CURRENT --delete--> HISTORY"). The record itself
// is never removed — rewrite and delete both preserve history.
func (s *Service) DeleteCurrent(ctx context.Context, projectID string, chapterNumber int) error {
	ch, ok, err := s.store.CurrentByNumber(ctx, projectID, chapterNumber)
	if err != nil {
		return coreerr.Wrap(coreerr.Storage, err, "load current chapter for delete")
	}
	if !ok {
		return coreerr.New(coreerr.NotFound, "no current chapter for that number")
	}
	ch.Status = History
	ch.UpdatedAt = timeNow()
	if err := s.store.Save(ctx, ch); err != nil {
		return coreerr.Wrap(coreerr.Storage, err, "demote current chapter to history")
	}
	return nil
}
