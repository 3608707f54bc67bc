package consistency

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yantianqi1/write-agent/internal/settings"
)

func TestScoreInRangeAndMonotonic(t *testing.T) {
	clean := aggregate(nil, DefaultWeights)
	assert.Equal(t, 1.0, clean.Score)

	withWarn := aggregate([]Issue{{Severity: Warn}}, DefaultWeights)
	assert.Less(t, withWarn.Score, clean.Score)

	withError := aggregate([]Issue{{Severity: Error}}, DefaultWeights)
	assert.Less(t, withError.Score, withWarn.Score)
	assert.GreaterOrEqual(t, withError.Score, 0.0)
}

func TestCheckSettingsChangeFlagsRoleContradiction(t *testing.T) {
	prior := settings.Bundle{Characters: []settings.Character{{Name: "Lin Feng", Role: settings.Protagonist}}}
	next := settings.Bundle{Characters: []settings.Character{{Name: "Lin Feng", Role: settings.Antagonist}}}

	c := NewChecker(nil)
	report, err := c.CheckSettingsChange(context.Background(), prior, next)
	require.NoError(t, err)
	require.True(t, report.HasError())
	assert.Equal(t, KindRoleContradiction, report.Issues[0].Kind)
}

func TestCheckSettingsChangeFlagsRelationshipAsymmetry(t *testing.T) {
	next := settings.Bundle{Characters: []settings.Character{
		{Name: "A", Relationships: map[string]string{"B": "friend"}},
		{Name: "B", Relationships: map[string]string{}},
	}}
	c := NewChecker(nil)
	report, err := c.CheckSettingsChange(context.Background(), settings.Bundle{}, next)
	require.NoError(t, err)
	found := false
	for _, is := range report.Issues {
		if is.Kind == KindRelationshipAsymmetry {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCheckWorldRuleContradictionDirect(t *testing.T) {
	prior := settings.Bundle{World: settings.World{Rules: []string{"magic exists in this world"}}}
	next := settings.Bundle{World: settings.World{Rules: []string{"magic exists in this world", "no magic exists in this world"}}}

	c := NewChecker(nil)
	report, err := c.CheckSettingsChange(context.Background(), prior, next)
	require.NoError(t, err)
	require.True(t, report.HasError())
	assert.Equal(t, KindWorldRuleContradiction, report.Issues[0].Kind)
}

func TestCheckChapterUnresolvedPlotPointSeverity(t *testing.T) {
	bundle := settings.Bundle{PlotPoints: []settings.PlotPoint{{Summary: "The AI's origin is never explained.", Resolved: false}}}

	c := NewChecker(nil)
	ongoing := c.CheckChapter(bundle, "some chapter text", false)
	require.Len(t, ongoing.Issues, 1)
	assert.Equal(t, Info, ongoing.Issues[0].Severity)

	resolution := c.CheckChapter(bundle, "some chapter text", true)
	require.Len(t, resolution.Issues, 1)
	assert.Equal(t, Warn, resolution.Issues[0].Severity)
}

func TestCheckChapterFlagsUnknownMention(t *testing.T) {
	bundle := settings.Bundle{Characters: []settings.Character{{Name: "Lin Feng"}}}
	report := NewChecker(nil).CheckChapter(bundle, "Zhao Wei stepped out of the rain.", false)
	found := false
	for _, is := range report.Issues {
		if is.Kind == KindUnknownName {
			found = true
		}
	}
	assert.True(t, found)
}
