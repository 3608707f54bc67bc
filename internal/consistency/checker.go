// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package consistency

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/yantianqi1/write-agent/internal/llm"
	"github.com/yantianqi1/write-agent/internal/settings"
)

// Generator is the narrow slice of llm.Gateway the world rule checker uses
// for ambiguous-contradiction verdicts (spec.md §4.E: "compared for
// negation via a light contradiction matrix + LLM verdict when
// ambiguous").
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (llm.Response, error)
}

// Checker implements component E's three sub-checkers.
type Checker struct {
	weights Weights
	gen     Generator // optional; nil means ambiguous world-rule pairs are not flagged
}

// NewChecker constructs a Checker. gen may be nil.
func NewChecker(gen Generator) *Checker {
	return &Checker{weights: DefaultWeights, gen: gen}
}

// WithWeights overrides the scoring weights (config-overridable per
// SPEC_FULL.md's Open Question decision #2).
func (c *Checker) WithWeights(w Weights) *Checker {
	c.weights = w
	return c
}

// CheckSettingsChange runs the character tracker and world rule checker
// against a candidate settings edit: prior is the bundle before the turn,
// next is the bundle after extraction+merge (spec.md §4.D step 5).
func (c *Checker) CheckSettingsChange(ctx context.Context, prior, next settings.Bundle) (Report, error) {
	var issues []Issue
	issues = append(issues, checkRoleStability(prior, next)...)
	issues = append(issues, checkRelationshipSymmetry(next)...)
	issues = append(issues, checkUnknownPlotCharacters(next)...)

	worldIssues, err := c.checkWorldRules(ctx, prior, next)
	if err != nil {
		return Report{}, err
	}
	issues = append(issues, worldIssues...)

	return aggregate(issues, c.weights), nil
}

// CheckChapter runs the character tracker and plot consistency checker
// against freshly generated chapter text (spec.md §4.F: "invoke 4.E over
// the new text against the bundle").
func (c *Checker) CheckChapter(bundle settings.Bundle, chapterText string, resolutionChapter bool) Report {
	var issues []Issue
	issues = append(issues, checkUnknownMentions(bundle, chapterText)...)
	issues = append(issues, checkUnresolvedPlotPoints(bundle, resolutionChapter)...)
	return aggregate(issues, c.weights)
}

// --- character tracker ---

func checkRoleStability(prior, next settings.Bundle) []Issue {
	var issues []Issue
	for _, p := range prior.Characters {
		n, ok := next.CharacterByName(p.Name)
		if !ok {
			continue
		}
		if p.Role != "" && n.Role != "" && p.Role != n.Role {
			issues = append(issues, Issue{
				Kind:        KindRoleContradiction,
				Severity:    Error,
				Locus:       p.Name,
				Description: fmt.Sprintf("%s was %s, now claimed %s", p.Name, p.Role, n.Role),
			})
		}
	}
	return issues
}

// checkRelationshipSymmetry flags a relationship claim A->relation(B) that
// has no corresponding entry from B (spec.md §4.E: "relationship claims
// are symmetric... or justified note"). This checker has no channel for a
// justification note, so any asymmetric pair is WARN.
func checkRelationshipSymmetry(b settings.Bundle) []Issue {
	var issues []Issue
	for _, a := range b.Characters {
		for target := range a.Relationships {
			other, ok := b.CharacterByName(target)
			if !ok {
				continue
			}
			if _, has := other.Relationships[a.Name]; !has {
				issues = append(issues, Issue{
					Kind:        KindRelationshipAsymmetry,
					Severity:    Warn,
					Locus:       a.Name + "/" + target,
					Description: fmt.Sprintf("%s claims a relationship to %s with no reciprocal entry", a.Name, target),
				})
			}
		}
	}
	return issues
}

func checkUnknownPlotCharacters(b settings.Bundle) []Issue {
	var issues []Issue
	for _, pp := range b.PlotPoints {
		for _, name := range pp.InvolvedCharacters {
			if _, ok := b.CharacterByName(name); !ok {
				issues = append(issues, Issue{
					Kind:        KindUnknownName,
					Severity:    Warn,
					Locus:       name,
					Description: fmt.Sprintf("plot point references unknown character %q", name),
				})
			}
		}
	}
	return issues
}

var wordRe = regexp.MustCompile(`[A-Z][a-zA-Z'-]{2,}`)

func checkUnknownMentions(b settings.Bundle, text string) []Issue {
	var issues []Issue
	seen := map[string]bool{}
	for _, name := range wordRe.FindAllString(text, -1) {
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := b.CharacterByName(name); ok {
			continue
		}
		for _, loc := range b.World.Locations {
			if loc == name {
				goto next
			}
		}
		issues = append(issues, Issue{
			Kind:        KindUnknownName,
			Severity:    Warn,
			Locus:       name,
			Description: fmt.Sprintf("chapter mentions %q, not in any known character or location", name),
		})
	next:
	}
	return issues
}

// --- plot consistency checker ---

func checkUnresolvedPlotPoints(b settings.Bundle, resolutionChapter bool) []Issue {
	var issues []Issue
	for _, pp := range b.PlotPoints {
		if pp.Resolved {
			continue
		}
		severity := Info
		if resolutionChapter || pp.ResolutionChapter {
			severity = Warn
		}
		issues = append(issues, Issue{
			Kind:        KindUnresolvedPlotPoint,
			Severity:    severity,
			Locus:       pp.Summary,
			Description: "foreshadowed plot point has not been resolved",
		})
	}
	return issues
}

// --- world rule checker ---

var negationWords = []string{"no ", "not ", "n't", "never ", "without "}

func isNegated(s string) bool {
	low := strings.ToLower(s)
	for _, n := range negationWords {
		if strings.Contains(low, n) {
			return true
		}
	}
	return false
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "in": true,
	"of": true, "there": true, "exists": true, "exist": true, "this": true,
	"world": true, "at": true, "all": true,
}

func keywords(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w == "" || stopwords[w] {
			continue
		}
		out[w] = true
	}
	return out
}

func overlapFraction(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var hits int
	for w := range a {
		if b[w] {
			hits++
		}
	}
	denom := len(a)
	if len(b) < denom {
		denom = len(b)
	}
	return float64(hits) / float64(denom)
}

// checkWorldRules compares each rule newly added in next against every
// rule already known (prior ∪ next, deduplicated) for a negation-based
// contradiction (spec.md §4.E's "light contradiction matrix"), falling
// back to an LLM verdict when the overlap is ambiguous.
func (c *Checker) checkWorldRules(ctx context.Context, prior, next settings.Bundle) ([]Issue, error) {
	existing := map[string]bool{}
	for _, r := range prior.World.Rules {
		existing[r] = true
	}

	var issues []Issue
	for _, newRule := range next.World.Rules {
		if existing[newRule] {
			continue
		}
		for oldRule := range existing {
			verdict, err := c.compareRules(ctx, oldRule, newRule)
			if err != nil {
				return nil, err
			}
			if verdict == "contradict" {
				issues = append(issues, Issue{
					Kind:        KindWorldRuleContradiction,
					Severity:    Error,
					Locus:       newRule,
					Description: fmt.Sprintf("%q contradicts established rule %q", newRule, oldRule),
				})
			}
		}
		existing[newRule] = true
	}
	return issues, nil
}

// compareRules returns "contradict", "consistent", or "ambiguous" (only
// when no Generator is configured — otherwise ambiguous cases are
// resolved via the LLM and normalized to "contradict"/"consistent").
func (c *Checker) compareRules(ctx context.Context, a, b string) (string, error) {
	overlap := overlapFraction(keywords(a), keywords(b))
	switch {
	case overlap >= 0.5 && isNegated(a) != isNegated(b):
		return "contradict", nil
	case overlap >= 0.5:
		return "consistent", nil
	case overlap < 0.2:
		return "consistent", nil
	}

	if c.gen == nil {
		return "ambiguous", nil
	}
	resp, err := c.gen.Generate(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Reply with exactly one word: CONTRADICT or CONSISTENT."},
			{Role: llm.RoleUser, Content: fmt.Sprintf("Rule A: %s\nRule B: %s\nDo these two world rules contradict each other?", a, b)},
		},
		Temperature: 0,
		MaxTokens:   5,
	})
	if err != nil {
		return "", err
	}
	if strings.Contains(strings.ToUpper(resp.Content), "CONTRADICT") {
		return "contradict", nil
	}
	return "consistent", nil
}
