package agent

import (
	"context"
	"regexp"

	"github.com/yantianqi1/write-agent/internal/generator"
	"github.com/yantianqi1/write-agent/internal/intent"
	"github.com/yantianqi1/write-agent/internal/session"
)

var chapterNumberRe = regexp.MustCompile(`(?i)\bchapter\s+(\d+)\b`)
var expandCueRe = regexp.MustCompile(`(?i)\b(expand|lengthen|add more detail|flesh out)\b`)

func chapterNumberFromText(text string) (int, bool) {
	m := chapterNumberRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n := 0
	for _, r := range m[1] {
		n = n*10 + int(r-'0')
	}
	return n, true
}

// maxChapterNumber returns the highest ChapterNumber among records, optionally
// filtered to status (status == "" matches any status). 0 if none match.
func maxChapterNumber(records []generator.Chapter, status generator.Status) int {
	max := 0
	for _, r := range records {
		if status != "" && r.Status != status {
			continue
		}
		if r.ChapterNumber > max {
			max = r.ChapterNumber
		}
	}
	return max
}

// currentChapter finds the CURRENT record for number, falling back to the
// most recently created record for number regardless of status (so EXPAND
// and REWRITE still have seed content to work from before a first DRAFT is
// ever accepted).
func currentChapter(records []generator.Chapter, number int) (generator.Chapter, bool) {
	var best generator.Chapter
	found := false
	for _, r := range records {
		if r.ChapterNumber != number {
			continue
		}
		if r.Status == generator.Current {
			return r, true
		}
		if !found || r.CreatedAt.After(best.CreatedAt) {
			best = r
			found = true
		}
	}
	return best, found
}

// decide implements spec.md §4.G step 4's creation-decision rule and mode
// selection: explicit generation intents (GENERATE_CONTENT,
// CONTINUE_CONTENT, MODIFY_CONTENT) always attempt generation unless
// blocked is set; an otherwise-conversational turn only auto-generates when
// it carries an explicit write/continue cue AND the derived settings bundle
// has cleared the completion threshold (spec.md §8 scenario 1: "no explicit
// generate cue" -> creation decision NO).
func (a *Agent) decide(ctx context.Context, sess session.Session, ir intent.Result, message string, blocked bool) (bool, generator.Request, error) {
	records, err := a.chapters.ListByProject(ctx, sess.ProjectID)
	if err != nil {
		return false, generator.Request{}, err
	}

	req := generator.Request{ProjectID: sess.ProjectID, LocaleHint: a.cfg.DefaultLocale}
	generate := false

	switch ir.Intent {
	case intent.ContinueContent:
		generate = true
		req.Mode = generator.Continue
		latest := maxChapterNumber(records, generator.Current)
		req.ChapterNumber = latest + 1
		if ch, ok := currentChapter(records, latest); ok {
			req.PreviousContent = ch.Content
		}

	case intent.ModifyContent:
		generate = true
		req.Mode = generator.Rewrite
		if n, ok := chapterNumberFromText(message); ok {
			req.ChapterNumber = n
		} else {
			req.ChapterNumber = maxChapterNumber(records, generator.Current)
		}
		if ch, ok := currentChapter(records, req.ChapterNumber); ok {
			req.PreviousContent = ch.Content
		}

	case intent.GenerateContent:
		generate = true
		if n, ok := chapterNumberFromText(message); ok {
			req.ChapterNumber = n
		} else {
			req.ChapterNumber = maxChapterNumber(records, "") + 1
		}
		if expandCueRe.MatchString(message) {
			req.Mode = generator.Expand
			if ch, ok := currentChapter(records, req.ChapterNumber); ok {
				req.PreviousContent = ch.Content
			}
		} else {
			req.Mode = generator.Full
		}

	default:
		if intent.HasGenerationCue(message) && sess.DerivedSettings.Completeness() >= a.cfg.CompletionThreshold {
			generate = true
			req.Mode = generator.Full
			req.ChapterNumber = maxChapterNumber(records, "") + 1
		}
	}

	if blocked {
		generate = false
	}
	return generate, req, nil
}
