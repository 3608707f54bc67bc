package agent

import (
	"context"

	"github.com/yantianqi1/write-agent/internal/coordination"
	"github.com/yantianqi1/write-agent/internal/generator"
	"github.com/yantianqi1/write-agent/internal/settings"
)

// runGeneration wraps a single generation call with the per-(project,
// chapter) coalescing coordinator and the per-provider concurrency limiter
// (spec.md §5: concurrent identical generation requests share one
// in-flight call and its result). Whether a given call joined another
// caller's run is not reported: the coordinator's shared flag is dropped
// and generator.Result has no field for it. genCoord/limiter may be nil
// (unit tests exercising generation in isolation), in which case the call
// runs directly.
//
// The Agent API has no separate review/accept surface (spec.md's
// Non-goals exclude a transport layer, and the conversational agent's
// per-turn algorithm never pauses for a human approval step), so a
// successful DRAFT is promoted straight to CURRENT here — this is the
// only place in the tree where a generation request turns into one of
// spec.md §8's "new CURRENT record" outcomes (scenarios 2, 3, 5, 6).
// OUTLINE is the one mode left DRAFT: an outline is a chapter summary
// list, not prose for a single chapter_number, so it has no CURRENT slot
// to occupy.
func (a *Agent) runGeneration(ctx context.Context, req generator.Request, bundle settings.Bundle) (generator.Result, error) {
	call := func() (any, error) {
		if a.limiter != nil {
			release, err := a.limiter.Acquire(ctx, coordination.PriorityInteractive)
			if err != nil {
				return nil, err
			}
			defer release()
		}
		result, err := a.generator.Generate(ctx, bundle, req)
		if err != nil {
			return nil, err
		}
		if req.Mode != generator.Outline && result.Chapter.Status == generator.Draft {
			accepted, err := a.generator.Accept(ctx, result.Chapter.ID)
			if err != nil {
				return nil, err
			}
			result.Chapter = accepted
		}
		return result, nil
	}

	if a.genCoord == nil {
		v, err := call()
		if err != nil {
			return generator.Result{}, err
		}
		return v.(generator.Result), nil
	}

	key := coordination.GenerationKey{ProjectID: req.ProjectID, ChapterNumber: req.ChapterNumber}
	v, err, _ := a.genCoord.Run(ctx, key, call)
	if err != nil {
		return generator.Result{}, err
	}
	return v.(generator.Result), nil
}

// GenerateChapter is spec.md §6's direct generate_chapter entry point,
// independent of any chat turn: API callers that already know the mode and
// chapter number skip the creation-decision/intent-classification pipeline
// entirely. Because it runs outside any session, the settings snapshot it
// generates against is reconstructed from the durable project-level memory
// component B holds rather than a session's DerivedSettings (spec.md §3's
// bundle is otherwise session-scoped) — an Open Question decision recorded
// in DESIGN.md, since spec.md does not say which snapshot a sessionless
// call should use.
func (a *Agent) GenerateChapter(ctx context.Context, projectID string, chapterNumber int, mode generator.Mode, constraints string) (generator.Result, error) {
	req := generator.Request{
		Mode:          mode,
		ProjectID:     projectID,
		ChapterNumber: chapterNumber,
		Constraints:   constraints,
		LocaleHint:    a.cfg.DefaultLocale,
	}

	if mode != generator.Full {
		if records, err := a.chapters.ListByProject(ctx, projectID); err == nil {
			if ch, ok := currentChapter(records, chapterNumber); ok {
				req.PreviousContent = ch.Content
			}
		}
	}

	bundle := a.loadProjectBundle(ctx, projectID)

	var result generator.Result
	err := a.tx.WithTransaction(ctx, func(ctx context.Context) error {
		r, err := a.runGeneration(ctx, req, bundle)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return generator.Result{}, err
	}
	return result, nil
}

// ListGenerations is spec.md §6's list_generations(project_id) -> records.
func (a *Agent) ListGenerations(ctx context.Context, projectID string) ([]GenerationRecord, error) {
	return a.chapters.ListByProject(ctx, projectID)
}
