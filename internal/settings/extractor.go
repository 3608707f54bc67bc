package settings

import (
	"regexp"
	"strings"
)

// Extractor derives candidate Edit operations from raw user turn text
// (spec.md §4.D step 1: "character mentions... world signals... plot
// signals... style signals"). It never blocks the turn — it is pure,
// stateless pattern matching with no I/O, so it cannot itself fail.
type Extractor struct{}

// NewExtractor constructs an Extractor.
func NewExtractor() *Extractor { return &Extractor{} }

var roleCueRe = regexp.MustCompile(`(?i)\b(protagonist|antagonist|hero|villain|supporting character|side character|minor character)\b(?:\s+is)?\s+([A-Z][\p{L}'-]+(?:\s[A-Z][\p{L}'-]+)?)`)

var roleWords = map[string]Role{
	"protagonist":       Protagonist,
	"antagonist":        Antagonist,
	"hero":              Protagonist,
	"villain":           Antagonist,
	"supporting character": Supporting,
	"side character":    Supporting,
	"minor character":   Minor,
}

// traitAfterNameRe captures a short appositive descriptor directly after a
// character's name, e.g. "Lin Feng, ex-detective hunting a missing AI".
var traitAfterNameRe = regexp.MustCompile(`,\s*(?:an?\s+)?([a-z][a-zA-Z'-]*(?:-[a-zA-Z]+)?)`)

var yearRe = regexp.MustCompile(`\b(1[0-9]{3}|2[0-9]{3})\b`)

var genreWords = []string{
	"cyberpunk", "steampunk", "dystopian", "fantasy", "science fiction", "sci-fi",
	"mystery", "romance", "horror", "thriller", "western", "historical fiction",
	"space opera", "noir", "post-apocalyptic", "adventure", "comedy", "literary fiction",
}

var gazetteer = []string{
	"Shanghai", "Tokyo", "Beijing", "London", "Paris", "New York", "Los Angeles",
	"Berlin", "Moscow", "Hong Kong", "Seoul", "Cairo", "Mars", "Neo Tokyo",
	"San Francisco", "Chicago", "Singapore", "Mumbai", "Sydney",
}

var conflictCues = []string{
	"hunting", "hunts", "searching for", "chasing", "must stop", "must find",
	"trying to find", "seeking", "fighting", "battling", "war against",
	"on the run from", "investigating", "racing to stop", "pursued by",
}

var toneWords = []string{
	"dark", "gritty", "hopeful", "whimsical", "grim", "lighthearted",
	"melancholic", "noir", "tense", "cheerful", "bleak", "uplifting",
}

// Extract derives a sequence of Edit operations from one user turn. The
// sequence is applied via Apply, not mutated in place, so repeated
// extraction of the same turn is idempotent (spec.md §8).
func (e *Extractor) Extract(turn string) []Edit {
	var edits []Edit
	var names []string

	for _, m := range roleCueRe.FindAllStringSubmatch(turn, -1) {
		roleWord := strings.ToLower(m[1])
		name := strings.TrimSpace(m[2])
		role := roleWords[roleWord]
		edits = append(edits, Edit{Kind: EditUpsertCharacter, CharacterName: name, Role: role})
		names = append(names, name)

		if idx := strings.Index(turn, m[0]); idx >= 0 {
			rest := turn[idx+len(m[0]):]
			if tm := traitAfterNameRe.FindStringSubmatch(rest); tm != nil && strings.Index(rest, tm[0]) < 3 {
				edits = append(edits, Edit{Kind: EditAddTrait, CharacterName: name, Trait: strings.TrimSpace(tm[1])})
			}
		}
	}

	if ym := yearRe.FindString(turn); ym != "" {
		edits = append(edits, Edit{Kind: EditUpsertWorldField, WorldField: FieldEra, WorldValue: ym})
	}

	lower := strings.ToLower(turn)
	for _, g := range genreWords {
		if strings.Contains(lower, g) {
			edits = append(edits, Edit{Kind: EditUpsertWorldField, WorldField: FieldGenre, WorldValue: g})
			break
		}
	}

	for _, place := range gazetteer {
		if strings.Contains(turn, place) {
			edits = append(edits, Edit{Kind: EditAddLocation, Location: place})
		}
	}

	for _, cue := range conflictCues {
		if strings.Contains(lower, cue) {
			edits = append(edits, Edit{Kind: EditAddPlotPoint, PlotPoint: PlotPoint{
				Summary:            strings.TrimSpace(turn),
				Kind:               Inciting,
				InvolvedCharacters: append([]string(nil), names...),
			}})
			break
		}
	}

	for _, tone := range toneWords {
		if strings.Contains(lower, tone) {
			edits = append(edits, Edit{Kind: EditSetStyle, StyleAspect: "tone", StyleValue: tone})
			break
		}
	}

	return edits
}
