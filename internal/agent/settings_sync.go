package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/yantianqi1/write-agent/internal/consistency"
	"github.com/yantianqi1/write-agent/internal/settings"
)

// applySettings runs component D's extract+complete pipeline, then component
// E's conflict check against the result (spec.md §4.D step 5). Extraction
// runs on every turn Chat passes here, which is every turn except a QUERY:
// Extract is pure pattern matching that is a no-op when a turn carries no
// settings cues, so it is not further gated on intent.
//
// When the check reports an ERROR, only completer-filled (AIGenerated)
// edits are rolled back to their pre-completion value (spec.md §4.D step 5,
// "roll back the offending field"); if the residual error traces to the
// user's own stated edit, it is kept as-is and blocked is returned true so
// the caller skips generation for this turn and surfaces the issue instead
// (spec.md §8 scenario 4: "no memory rollback of the user's latest
// statement, but the conflict is recorded").
func (a *Agent) applySettings(ctx context.Context, prior settings.Bundle, turn string) (settings.Bundle, consistency.Report, bool, error) {
	edits := a.extractor.Extract(turn)
	extracted := settings.Apply(prior, edits)

	completed, completerEdits, err := a.completer.Complete(ctx, extracted)
	if err != nil {
		return extracted, consistency.Report{}, false, err
	}

	if a.checker == nil {
		return completed, consistency.Report{}, false, nil
	}

	report, err := a.checker.CheckSettingsChange(ctx, prior, completed)
	if err != nil {
		return completed, consistency.Report{}, false, err
	}
	if !report.HasError() {
		return completed, report, false, nil
	}

	if len(completerEdits) > 0 {
		rolledBack := extracted
		report2, err := a.checker.CheckSettingsChange(ctx, prior, rolledBack)
		if err != nil {
			return completed, report, false, err
		}
		if !report2.HasError() {
			return rolledBack, report2, false, nil
		}
		return rolledBack, report2, true, nil
	}

	return completed, report, true, nil
}

// syncBundleToMemory projects next's durable facts into component B so
// build_context's GLOBAL/CHARACTER/STYLE sections stay current without
// internal/memory or internal/settings importing one another. Characters,
// world fields and style hints are idempotent upserts-by-key, safe to
// re-issue every turn; plot points are append-only in memory, so only the
// entries newPlotPoints finds that prior did not already have are appended.
func (a *Agent) syncBundleToMemory(ctx context.Context, projectID string, prior, next settings.Bundle) {
	if a.mem == nil {
		return
	}

	for _, c := range next.Characters {
		if _, err := a.mem.UpsertCharacter(ctx, projectID, c.Name, c.Background, c.Traits, c.Relationships); err != nil {
			slog.Warn("agent: failed to sync character to memory", "character", c.Name, "error", err)
		}
	}

	if next.World.Genre != "" {
		a.upsertGlobal(ctx, projectID, "genre", next.World.Genre)
	}
	if next.World.Era != "" {
		a.upsertGlobal(ctx, projectID, "era", next.World.Era)
	}
	if next.World.TechnologyLevel != "" {
		a.upsertGlobal(ctx, projectID, "technology_level", next.World.TechnologyLevel)
	}
	if len(next.World.Locations) > 0 {
		a.upsertGlobal(ctx, projectID, "locations", strings.Join(next.World.Locations, ", "))
	}
	if len(next.World.Rules) > 0 {
		a.upsertGlobal(ctx, projectID, "rules", strings.Join(next.World.Rules, "; "))
	}

	for aspect, value := range next.StyleHints {
		if _, err := a.mem.UpsertStyle(ctx, projectID, aspect, value); err != nil {
			slog.Warn("agent: failed to sync style hint to memory", "aspect", aspect, "error", err)
		}
	}

	for _, p := range newPlotPoints(prior, next) {
		meta := map[string]any{
			"kind":                string(p.Kind),
			"involved_characters": p.InvolvedCharacters,
			"resolution_chapter":  p.ResolutionChapter,
		}
		if _, err := a.mem.AppendPlotPoint(ctx, projectID, p.Summary, meta); err != nil {
			slog.Warn("agent: failed to sync plot point to memory", "summary", p.Summary, "error", err)
		}
	}
}

func (a *Agent) upsertGlobal(ctx context.Context, projectID, key, value string) {
	if _, err := a.mem.UpsertGlobalFact(ctx, projectID, key, value); err != nil {
		slog.Warn("agent: failed to sync world fact to memory", "key", key, "error", err)
	}
}

// newPlotPoints returns the members of next.PlotPoints not already present
// (by Summary) in prior, so AppendPlotPoint's append-only memory semantics
// are not re-triggered on every turn for points already recorded.
func newPlotPoints(prior, next settings.Bundle) []settings.PlotPoint {
	seen := make(map[string]bool, len(prior.PlotPoints))
	for _, p := range prior.PlotPoints {
		seen[p.Summary] = true
	}
	var out []settings.PlotPoint
	for _, p := range next.PlotPoints {
		if !seen[p.Summary] {
			out = append(out, p)
		}
	}
	return out
}

// clarificationMessage builds the conversational reply spec.md §8 scenario
// 4 describes for a blocked turn: surface the first ERROR issue as a
// question rather than silently failing the turn.
func clarificationMessage(report consistency.Report) string {
	for _, is := range report.Issues {
		if is.Severity == consistency.Error {
			return "Before I continue, I want to check something: " + is.Description + ". Could you clarify?"
		}
	}
	return "Before I continue, could you clarify your last point? I want to avoid a continuity slip."
}
