package settings

// EditKind is the closed union spec.md §9 prescribes in place of "dynamic
// merge of loose extracted fields": UpsertCharacter, AddTrait, AddLocation,
// UpsertWorldField, AddPlotPoint, SetStyle.
type EditKind string

const (
	EditUpsertCharacter EditKind = "UPSERT_CHARACTER"
	EditAddTrait        EditKind = "ADD_TRAIT"
	EditAddLocation     EditKind = "ADD_LOCATION"
	EditUpsertWorldField EditKind = "UPSERT_WORLD_FIELD"
	EditAddPlotPoint    EditKind = "ADD_PLOT_POINT"
	EditSetStyle        EditKind = "SET_STYLE"
)

// WorldField names the scalar World fields UpsertWorldField can set, plus
// "rule" which appends to the World.Rules set instead of replacing a field.
type WorldField string

const (
	FieldGenre           WorldField = "genre"
	FieldEra             WorldField = "era"
	FieldTechnologyLevel WorldField = "technology_level"
	FieldRule            WorldField = "rule"
)

// Edit is one tagged member of the closed union. Only the fields relevant
// to Kind are populated; Apply ignores the rest.
type Edit struct {
	Kind EditKind

	// UpsertCharacter / AddTrait
	CharacterName string
	Role          Role
	Background    string
	Trait         string
	Relationship  struct {
		With    string
		Relation string
	}

	// AddLocation
	Location string

	// UpsertWorldField
	WorldField WorldField
	WorldValue string

	// AddPlotPoint
	PlotPoint PlotPoint

	// SetStyle
	StyleAspect string
	StyleValue  string

	// AIGenerated marks a value as completer-filled rather than
	// user-stated (spec.md §4.D step 4).
	AIGenerated bool
}

// Apply applies edits to b in order and returns the resulting bundle,
// deterministically (spec.md §9: "the bundle applies them deterministically").
// b is not mutated; Apply operates on (and returns) a clone.
func Apply(b Bundle, edits []Edit) Bundle {
	out := b.Clone()
	for _, e := range edits {
		applyOne(&out, e)
	}
	return out
}

func applyOne(b *Bundle, e Edit) {
	switch e.Kind {
	case EditUpsertCharacter:
		upsertCharacter(b, e)
	case EditAddTrait:
		addTrait(b, e.CharacterName, e.Trait)
	case EditAddLocation:
		addLocation(b, e.Location)
	case EditUpsertWorldField:
		upsertWorldField(b, e)
	case EditAddPlotPoint:
		addPlotPoint(b, e.PlotPoint)
	case EditSetStyle:
		if b.StyleHints == nil {
			b.StyleHints = map[string]string{}
		}
		b.StyleHints[e.StyleAspect] = e.StyleValue
	}
}

func upsertCharacter(b *Bundle, e Edit) {
	for i, c := range b.Characters {
		if c.Name == e.CharacterName {
			if e.Role != "" {
				b.Characters[i].Role = e.Role
			}
			if e.Background != "" {
				b.Characters[i].Background = e.Background
			}
			if e.Relationship.With != "" {
				if b.Characters[i].Relationships == nil {
					b.Characters[i].Relationships = map[string]string{}
				}
				b.Characters[i].Relationships[e.Relationship.With] = e.Relationship.Relation
			}
			if e.AIGenerated {
				b.Characters[i].AIGenerated = true
			}
			return
		}
	}
	c := Character{
		Name:          e.CharacterName,
		Role:          e.Role,
		Background:    e.Background,
		Relationships: map[string]string{},
		AIGenerated:   e.AIGenerated,
	}
	if e.Relationship.With != "" {
		c.Relationships[e.Relationship.With] = e.Relationship.Relation
	}
	b.Characters = append(b.Characters, c)
}

func addTrait(b *Bundle, name, trait string) {
	if trait == "" {
		return
	}
	for i, c := range b.Characters {
		if c.Name == name {
			for _, t := range c.Traits {
				if t == trait {
					return
				}
			}
			b.Characters[i].Traits = append(b.Characters[i].Traits, trait)
			return
		}
	}
	// Trait for an as-yet-unknown character: create a MINOR placeholder so
	// the trait isn't silently dropped; a later UpsertCharacter can refine
	// its role.
	b.Characters = append(b.Characters, Character{Name: name, Role: Minor, Traits: []string{trait}, Relationships: map[string]string{}})
}

// addPlotPoint appends p unless an existing plot point already has the
// identical summary, so repeated extraction of the same turn is idempotent
// (spec.md §8: "extract(turn) ⊕ extract(turn) is equal to extract(turn)").
func addPlotPoint(b *Bundle, p PlotPoint) {
	for _, existing := range b.PlotPoints {
		if existing.Summary == p.Summary {
			return
		}
	}
	b.PlotPoints = append(b.PlotPoints, p)
}

func addLocation(b *Bundle, loc string) {
	if loc == "" {
		return
	}
	for _, l := range b.World.Locations {
		if l == loc {
			return
		}
	}
	b.World.Locations = append(b.World.Locations, loc)
}

func addRule(b *Bundle, rule string) {
	if rule == "" {
		return
	}
	for _, r := range b.World.Rules {
		if r == rule {
			return
		}
	}
	b.World.Rules = append(b.World.Rules, rule)
}

func upsertWorldField(b *Bundle, e Edit) {
	switch e.WorldField {
	case FieldGenre:
		b.World.Genre = e.WorldValue
	case FieldEra:
		b.World.Era = e.WorldValue
	case FieldTechnologyLevel:
		b.World.TechnologyLevel = e.WorldValue
	case FieldRule:
		addRule(b, e.WorldValue)
	}
	if e.AIGenerated {
		b.World.AIGenerated = true
	}
}
