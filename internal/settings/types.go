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

// Package settings implements component D's data model: the extracted
// settings bundle (spec.md §3) and the closed union of edit operations
// spec.md §9 prescribes in place of duck-typed patch objects.
package settings

// Role is a character's narrative function.
type Role string

const (
	Protagonist Role = "PROTAGONIST"
	Antagonist  Role = "ANTAGONIST"
	Supporting  Role = "SUPPORTING"
	Minor       Role = "MINOR"
)

// Character is spec.md §3's Character profile.
type Character struct {
	Name          string
	Role          Role
	Traits        []string // set semantics: Apply keeps this deduplicated
	Background    string
	Relationships map[string]string // name -> relation
	AIGenerated   bool
}

// World is spec.md §3's World setting.
type World struct {
	Genre           string
	Era             string
	Locations       []string // ordered
	Rules           []string // set semantics
	TechnologyLevel string
	AIGenerated     bool
}

// PlotKind is the closed set of plot-point kinds.
type PlotKind string

const (
	Setup      PlotKind = "SETUP"
	Inciting   PlotKind = "INCITING"
	Rising     PlotKind = "RISING"
	Climax     PlotKind = "CLIMAX"
	Resolution PlotKind = "RESOLUTION"
	Subplot    PlotKind = "SUBPLOT"
)

// PlotPoint is spec.md §3's Plot point. ResolutionChapter is this spec's
// Open-Question decision #4 (SPEC_FULL.md §5): an explicit flag rather than
// an inferred "is this the resolution chapter" signal.
type PlotPoint struct {
	ChapterHint        *int
	Summary            string
	Kind               PlotKind
	InvolvedCharacters []string
	Resolved           bool
	ResolutionChapter  bool
}

// Bundle is spec.md §3's "authoritative project-level state": the
// Extracted settings bundle every generation reads a snapshot of.
type Bundle struct {
	Characters []Character
	World      World
	PlotPoints []PlotPoint
	Themes     []string
	StyleHints map[string]string // aspect -> value (tone, pacing, POV...)
}

// Clone returns a deep copy, used both for generation snapshots (spec.md
// §3: "all generation reads from a snapshot") and for the conflict-check
// rollback the agent performs when component E flags an ERROR.
func (b Bundle) Clone() Bundle {
	out := Bundle{
		Characters: make([]Character, len(b.Characters)),
		World:      b.World,
		PlotPoints: make([]PlotPoint, len(b.PlotPoints)),
		Themes:     append([]string(nil), b.Themes...),
		StyleHints: make(map[string]string, len(b.StyleHints)),
	}
	for i, c := range b.Characters {
		cc := c
		cc.Traits = append([]string(nil), c.Traits...)
		cc.Relationships = make(map[string]string, len(c.Relationships))
		for k, v := range c.Relationships {
			cc.Relationships[k] = v
		}
		out.Characters[i] = cc
	}
	out.World.Locations = append([]string(nil), b.World.Locations...)
	out.World.Rules = append([]string(nil), b.World.Rules...)
	copy(out.PlotPoints, b.PlotPoints)
	for i, p := range b.PlotPoints {
		pp := p
		pp.InvolvedCharacters = append([]string(nil), p.InvolvedCharacters...)
		out.PlotPoints[i] = pp
	}
	for k, v := range b.StyleHints {
		out.StyleHints[k] = v
	}
	return out
}

// CharacterByName returns the character named name, if present.
func (b Bundle) CharacterByName(name string) (Character, bool) {
	for _, c := range b.Characters {
		if c.Name == name {
			return c, true
		}
	}
	return Character{}, false
}

// slotWeight is spec.md §4.D step 3's equal weighting across the four
// required completeness slots.
const slotWeight = 0.25

// Completeness computes spec.md §4.D's "weighted sum" over the boolean
// vector of required slots: >=1 protagonist, >=1 conflict (plot point),
// genre known, >=1 location.
func (b Bundle) Completeness() float64 {
	var score float64
	if hasProtagonist(b) {
		score += slotWeight
	}
	if len(b.PlotPoints) > 0 {
		score += slotWeight
	}
	if b.World.Genre != "" {
		score += slotWeight
	}
	if len(b.World.Locations) > 0 {
		score += slotWeight
	}
	return score
}

func hasProtagonist(b Bundle) bool {
	for _, c := range b.Characters {
		if c.Role == Protagonist {
			return true
		}
	}
	return false
}

// MissingSlots names the required slots Completeness found absent, used to
// build the Completer's gap-filling prompt.
func (b Bundle) MissingSlots() []string {
	var missing []string
	if !hasProtagonist(b) {
		missing = append(missing, "protagonist")
	}
	if len(b.PlotPoints) == 0 {
		missing = append(missing, "conflict")
	}
	if b.World.Genre == "" {
		missing = append(missing, "genre")
	}
	if len(b.World.Locations) == 0 {
		missing = append(missing, "location")
	}
	return missing
}
