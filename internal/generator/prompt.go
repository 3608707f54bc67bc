package generator

import (
	"fmt"
	"strings"

	"github.com/yantianqi1/write-agent/internal/llm"
	"github.com/yantianqi1/write-agent/internal/settings"
	"github.com/yantianqi1/write-agent/internal/tokenizer"
)

// continuationSeedBudget is spec.md §4.F's "last ≤ 800 tokens of
// previous_content".
const continuationSeedBudget = 800

// ComposePrompt builds the deterministic, testable message pair spec.md
// §4.F's "Prompt composition (deterministic, testable)" describes: a system
// block (role + style + hard constraints), then a user message concatenating
// the world block, character block, memory block, task block, and (for
// CONTINUE/REWRITE/EXPAND) the continuation seed, in that fixed order.
// memoryBlock is the already-computed 4.B build_context result; counter is
// used only to bound the continuation seed.
func ComposePrompt(bundle settings.Bundle, memoryBlock string, req Request, counter tokenizer.Counter) []llm.Message {
	if counter == nil {
		counter = tokenizer.HeuristicCounter{}
	}

	var user strings.Builder
	user.WriteString(worldBlock(bundle))
	user.WriteString("\n\n")
	user.WriteString(characterBlock(bundle))
	if memoryBlock != "" {
		user.WriteString("\n\nRelevant story memory:\n")
		user.WriteString(memoryBlock)
	}
	user.WriteString("\n\n")
	user.WriteString(taskBlock(req))

	if seed := continuationSeed(req.PreviousContent, counter); seed != "" {
		user.WriteString("\n\nContinue directly from this previous text:\n")
		user.WriteString(seed)
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemBlock(bundle)},
		{Role: llm.RoleUser, Content: user.String()},
	}
}

func systemBlock(bundle settings.Bundle) string {
	var sb strings.Builder
	sb.WriteString("You are a professional long-form fiction author. Write in scene, not summary.")

	if pov, ok := bundle.StyleHints["pov"]; ok {
		fmt.Fprintf(&sb, " Point of view: %s.", pov)
	}
	if tense, ok := bundle.StyleHints["tense"]; ok {
		fmt.Fprintf(&sb, " Tense: %s.", tense)
	}
	if lang, ok := bundle.StyleHints["language"]; ok {
		fmt.Fprintf(&sb, " Write in %s.", lang)
	}
	for _, aspect := range []string{"tone", "pacing"} {
		if v, ok := bundle.StyleHints[aspect]; ok {
			fmt.Fprintf(&sb, " %s%s: %s.", strings.ToUpper(aspect[:1]), aspect[1:], v)
		}
	}
	return sb.String()
}

// worldBlock compacts the bundle's World fields — spec.md §4.F's "compacted
// GLOBAL summary (≤ 15% of prompt budget)" — kept short by construction
// (one line per field) rather than budget-checked at render time, since the
// World struct itself is already small relative to a chapter-length prompt.
func worldBlock(bundle settings.Bundle) string {
	w := bundle.World
	var parts []string
	if w.Genre != "" {
		parts = append(parts, "genre: "+w.Genre)
	}
	if w.Era != "" {
		parts = append(parts, "era: "+w.Era)
	}
	if len(w.Locations) > 0 {
		parts = append(parts, "locations: "+strings.Join(w.Locations, ", "))
	}
	if w.TechnologyLevel != "" {
		parts = append(parts, "technology: "+w.TechnologyLevel)
	}
	if len(w.Rules) > 0 {
		parts = append(parts, "established rules: "+strings.Join(w.Rules, "; "))
	}
	if len(parts) == 0 {
		return "World: (unestablished)"
	}
	return "World: " + strings.Join(parts, " | ")
}

// characterBlock lists every known character's profile — spec.md §4.F:
// "profiles of characters expected in this chapter (name, role, traits, key
// relationships)". Without an explicit chapter cast list, every character in
// the bundle is included; callers generating long rosters should trim the
// bundle snapshot before calling ComposePrompt.
func characterBlock(bundle settings.Bundle) string {
	if len(bundle.Characters) == 0 {
		return "Characters: (none established yet)"
	}
	var sb strings.Builder
	sb.WriteString("Characters:")
	for _, c := range bundle.Characters {
		sb.WriteString("\n- ")
		sb.WriteString(c.Name)
		if c.Role != "" {
			fmt.Fprintf(&sb, " (%s)", c.Role)
		}
		if len(c.Traits) > 0 {
			fmt.Fprintf(&sb, ", traits: %s", strings.Join(c.Traits, ", "))
		}
		if len(c.Relationships) > 0 {
			var rels []string
			for name, rel := range c.Relationships {
				rels = append(rels, fmt.Sprintf("%s %s", rel, name))
			}
			fmt.Fprintf(&sb, ", relationships: %s", strings.Join(rels, ", "))
		}
	}
	return sb.String()
}

func taskBlock(req Request) string {
	var directive string
	switch req.Mode {
	case Full:
		directive = fmt.Sprintf("Write chapter %d as a new scene following the established outline.", req.ChapterNumber)
	case Continue:
		directive = fmt.Sprintf("Write chapter %d, continuing directly from the previous chapter.", req.ChapterNumber)
	case Expand:
		directive = "Expand the referenced passage with more sensory detail and dialogue, preserving its events and meaning."
	case Rewrite:
		directive = fmt.Sprintf("Rewrite chapter %d under the new constraint below, preserving established continuity.", req.ChapterNumber)
	case Outline:
		directive = "Produce a chapter-by-chapter outline: one short paragraph per chapter summarizing its events."
	default:
		directive = "Write the requested content."
	}

	var sb strings.Builder
	sb.WriteString("Task: ")
	sb.WriteString(directive)
	if req.TargetLengthWords > 0 {
		fmt.Fprintf(&sb, " Target length: approximately %d words.", req.TargetLengthWords)
	}
	if req.Constraints != "" {
		sb.WriteString("\nConstraints: ")
		sb.WriteString(req.Constraints)
	}
	return sb.String()
}

// continuationSeed returns the trailing paragraphs of previousContent whose
// cumulative token count is at most continuationSeedBudget, preserving
// reading order (spec.md §4.F: "last ≤ 800 tokens of previous_content").
func continuationSeed(previousContent string, counter tokenizer.Counter) string {
	if previousContent == "" {
		return ""
	}
	paras := strings.Split(previousContent, "\n\n")

	var kept []string
	used := 0
	for i := len(paras) - 1; i >= 0; i-- {
		p := paras[i]
		if strings.TrimSpace(p) == "" {
			continue
		}
		n, err := counter.Count(p)
		if err != nil {
			n = len(p) / 4
		}
		if used > 0 && used+n > continuationSeedBudget {
			break
		}
		kept = append([]string{p}, kept...)
		used += n
	}
	return strings.Join(kept, "\n\n")
}
