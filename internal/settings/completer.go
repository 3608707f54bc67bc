package settings

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/yantianqi1/write-agent/internal/llm"
)

// Generator is the narrow slice of llm.Gateway the Completer needs, kept as
// an interface so tests can stub it without constructing a real provider.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (llm.Response, error)
}

// Completer fills missing bundle slots via the LLM gateway (spec.md §4.D
// step 4): it asks for compact JSON-shaped text and parses it tolerantly,
// since model output is not guaranteed to be valid JSON.
type Completer struct {
	gen Generator
}

// NewCompleter constructs a Completer over gen.
func NewCompleter(gen Generator) *Completer {
	return &Completer{gen: gen}
}

// Complete fills bundle's missing required slots (spec.md §4.D step 3/4).
// If the bundle is already complete, it returns it unchanged. If the model
// response fails to parse twice, the prior bundle is kept and the failure
// is logged, per spec.md §4.D step 4 — this is never a caller-visible
// error.
func (c *Completer) Complete(ctx context.Context, bundle Bundle) (Bundle, []Edit, error) {
	missing := bundle.MissingSlots()
	if len(missing) == 0 {
		return bundle, nil, nil
	}

	prompt := completionPrompt(bundle, missing)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := c.gen.Generate(ctx, llm.Request{
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: "You fill in missing fiction-project settings. Reply with ONLY a compact JSON object, no prose."},
				{Role: llm.RoleUser, Content: prompt},
			},
			Temperature: 0.4,
			MaxTokens:   300,
		})
		if err != nil {
			lastErr = err
			continue
		}

		fields, ok := parseTolerant(resp.Content)
		if !ok {
			lastErr = fmt.Errorf("could not parse completion response")
			continue
		}

		edits := fieldsToEdits(fields, missing)
		return Apply(bundle, edits), edits, nil
	}

	slog.Warn("setting completion failed twice, keeping prior bundle", "error", lastErr, "missing", missing)
	return bundle, nil, nil
}

func completionPrompt(b Bundle, missing []string) string {
	var sb strings.Builder
	sb.WriteString("Current known settings:\n")
	fmt.Fprintf(&sb, "genre=%q era=%q locations=%v characters=%d plot_points=%d\n",
		b.World.Genre, b.World.Era, b.World.Locations, len(b.Characters), len(b.PlotPoints))
	sb.WriteString("Missing required fields: " + strings.Join(missing, ", ") + "\n")
	sb.WriteString(`Respond with JSON using only the keys you need to fill, e.g. {"genre":"...","locations":["..."],"protagonist_name":"...","conflict_summary":"..."}`)
	return sb.String()
}

// balancedBraceScan returns the first top-level {...} substring of s, or ""
// if braces never balance (spec.md §4.D: "parse tolerantly (balanced-brace
// scan, keyed field extraction)").
func balancedBraceScan(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

var keyedStringRe = regexp.MustCompile(`"(\w+)"\s*:\s*"([^"]*)"`)
var keyedArrayRe = regexp.MustCompile(`"(\w+)"\s*:\s*\[([^\]]*)\]`)
var arrayElemRe = regexp.MustCompile(`"([^"]*)"`)

// parseTolerant scans text for a balanced-brace JSON-shaped block and
// extracts string and string-array fields by key, without requiring the
// block to be strictly valid JSON.
func parseTolerant(text string) (map[string]any, bool) {
	block := balancedBraceScan(text)
	if block == "" {
		return nil, false
	}

	fields := map[string]any{}
	for _, m := range keyedStringRe.FindAllStringSubmatch(block, -1) {
		fields[m[1]] = m[2]
	}
	for _, m := range keyedArrayRe.FindAllStringSubmatch(block, -1) {
		var elems []string
		for _, em := range arrayElemRe.FindAllStringSubmatch(m[2], -1) {
			elems = append(elems, em[1])
		}
		fields[m[1]] = elems
	}
	if len(fields) == 0 {
		return nil, false
	}
	return fields, true
}

func fieldsToEdits(fields map[string]any, missing []string) []Edit {
	var edits []Edit
	need := func(slot string) bool {
		for _, m := range missing {
			if m == slot {
				return true
			}
		}
		return false
	}

	if need("genre") {
		if v, ok := fields["genre"].(string); ok && v != "" {
			edits = append(edits, Edit{Kind: EditUpsertWorldField, WorldField: FieldGenre, WorldValue: v, AIGenerated: true})
		}
	}
	if v, ok := fields["era"].(string); ok && v != "" {
		edits = append(edits, Edit{Kind: EditUpsertWorldField, WorldField: FieldEra, WorldValue: v, AIGenerated: true})
	}
	if need("location") {
		if locs, ok := fields["locations"].([]string); ok {
			for _, l := range locs {
				edits = append(edits, Edit{Kind: EditAddLocation, Location: l})
			}
		}
	}
	if need("protagonist") {
		if name, ok := fields["protagonist_name"].(string); ok && name != "" {
			edits = append(edits, Edit{Kind: EditUpsertCharacter, CharacterName: name, Role: Protagonist, AIGenerated: true})
		}
	}
	if need("conflict") {
		if summary, ok := fields["conflict_summary"].(string); ok && summary != "" {
			edits = append(edits, Edit{Kind: EditAddPlotPoint, PlotPoint: PlotPoint{Summary: summary, Kind: Inciting}})
		}
	}
	return edits
}
