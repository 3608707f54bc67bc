package agent

import (
	"context"
	"strings"

	"github.com/yantianqi1/write-agent/internal/memory"
	"github.com/yantianqi1/write-agent/internal/settings"
)

// loadProjectBundle reconstructs a best-effort settings.Bundle from
// component B's durable GLOBAL/CHARACTER/PLOT/STYLE tiers, for the
// sessionless GenerateChapter entry point. It mirrors the key layout
// syncBundleToMemory writes (name/traits/relationships for CHARACTER,
// key for GLOBAL, aspect for STYLE) but cannot recover fields
// syncBundleToMemory never projects (Role, AIGenerated, PlotPoint.Kind
// beyond what was stored) — reconstruction is necessarily lossy relative to
// a session's own DerivedSettings.
func (a *Agent) loadProjectBundle(ctx context.Context, projectID string) settings.Bundle {
	bundle := settings.Bundle{StyleHints: map[string]string{}}
	if a.mem == nil {
		return bundle
	}

	if items, err := a.mem.List(ctx, projectID, memory.Character, 0); err == nil {
		for _, it := range items {
			bundle.Characters = append(bundle.Characters, characterFromItem(it))
		}
	}

	if items, err := a.mem.List(ctx, projectID, memory.Global, 0); err == nil {
		for _, it := range items {
			applyGlobalItem(&bundle.World, it)
		}
	}

	if items, err := a.mem.List(ctx, projectID, memory.Plot, 0); err == nil {
		for _, it := range items {
			bundle.PlotPoints = append(bundle.PlotPoints, plotPointFromItem(it))
		}
	}

	if items, err := a.mem.List(ctx, projectID, memory.Style, 0); err == nil {
		for _, it := range items {
			if aspect, ok := it.Metadata["aspect"].(string); ok {
				bundle.StyleHints[aspect] = it.Content
			}
		}
	}

	return bundle
}

func characterFromItem(it memory.Item) settings.Character {
	c := settings.Character{Background: it.Content}
	if name, ok := it.Metadata["name"].(string); ok {
		c.Name = name
	}
	if traits, ok := it.Metadata["traits"].([]string); ok {
		c.Traits = traits
	}
	if rel, ok := it.Metadata["relationships"].(map[string]string); ok {
		c.Relationships = rel
	}
	return c
}

func applyGlobalItem(w *settings.World, it memory.Item) {
	key, _ := it.Metadata["key"].(string)
	switch key {
	case "genre":
		w.Genre = it.Content
	case "era":
		w.Era = it.Content
	case "technology_level":
		w.TechnologyLevel = it.Content
	case "locations":
		w.Locations = splitNonEmpty(it.Content, ", ")
	case "rules":
		w.Rules = splitNonEmpty(it.Content, "; ")
	}
}

func plotPointFromItem(it memory.Item) settings.PlotPoint {
	p := settings.PlotPoint{Summary: it.Content}
	if kind, ok := it.Metadata["kind"].(string); ok {
		p.Kind = settings.PlotKind(kind)
	}
	if chars, ok := it.Metadata["involved_characters"].([]string); ok {
		p.InvolvedCharacters = chars
	}
	if rc, ok := it.Metadata["resolution_chapter"].(bool); ok {
		p.ResolutionChapter = rc
	}
	return p
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
