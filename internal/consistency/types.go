// Package consistency implements component E: three sub-checkers
// (character tracker, world rule checker, plot consistency checker) that
// emit issues against a settings bundle and/or generated chapter text, and
// an aggregate score spec.md §4.E defines.
package consistency

// Severity is the closed set of issue severities.
type Severity string

const (
	Info  Severity = "INFO"
	Warn  Severity = "WARN"
	Error Severity = "ERROR"
)

// Issue kinds. Spec.md §4.E names unknown-name, role-contradiction and
// trait-reversal-without-reason explicitly for the character tracker;
// relationship-asymmetry, world-rule-contradiction and the two plot flags
// are this checker's concrete names for the remaining checks §4.E
// describes in prose.
const (
	KindUnknownName           = "unknown_name"
	KindRoleContradiction     = "role_contradiction"
	KindTraitReversal         = "trait_reversal_without_reason"
	KindRelationshipAsymmetry = "relationship_asymmetry"
	KindWorldRuleContradiction = "world_rule_contradiction"
	KindUnresolvedPlotPoint   = "unresolved_plot_point"
)

// Issue is one detected problem (spec.md §3: "{ kind, severity, locus,
// description }").
type Issue struct {
	Kind        string
	Severity    Severity
	Locus       string // character/plot/chapter reference
	Description string
}

// Report is spec.md §3's Consistency report: a score in [0,1] plus issues
// ordered by severity (ERROR, then WARN, then INFO).
type Report struct {
	Score  float64
	Issues []Issue
}

// HasError reports whether the report contains any ERROR-severity issue —
// the signal the agent and 4.F use to block generation or roll back a
// field (spec.md §4.D step 5, §4.G step 3).
func (r Report) HasError() bool {
	for _, is := range r.Issues {
		if is.Severity == Error {
			return true
		}
	}
	return false
}

// Weights are the scoring coefficients spec.md §4.E's aggregation uses:
// score = 1 - (errors*ErrorWeight + warns*WarnWeight + infos*InfoWeight),
// clamped to [0,1]. Spec.md §9 marks these as asserted-but-unjustified in
// the source, hence tunable rather than hardcoded (SPEC_FULL.md Open
// Question decision #2).
type Weights struct {
	Error float64
	Warn  float64
	Info  float64
}

// DefaultWeights are the literal coefficients spec.md §4.E states.
var DefaultWeights = Weights{Error: 0.3, Warn: 0.1, Info: 0.02}

func aggregate(issues []Issue, w Weights) Report {
	sortBySeverity(issues)
	var errors, warns, infos int
	for _, is := range issues {
		switch is.Severity {
		case Error:
			errors++
		case Warn:
			warns++
		case Info:
			infos++
		}
	}
	score := 1 - (float64(errors)*w.Error + float64(warns)*w.Warn + float64(infos)*w.Info)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return Report{Score: score, Issues: issues}
}

func sortBySeverity(issues []Issue) {
	rank := map[Severity]int{Error: 0, Warn: 1, Info: 2}
	// Simple stable insertion sort: issue counts per check are small and
	// this keeps detection order stable within a severity band.
	for i := 1; i < len(issues); i++ {
		j := i
		for j > 0 && rank[issues[j-1].Severity] > rank[issues[j].Severity] {
			issues[j-1], issues[j] = issues[j], issues[j-1]
			j--
		}
	}
}
