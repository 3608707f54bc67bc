package generator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/yantianqi1/write-agent/internal/settings"
)

// SettingsFingerprint computes the stable hash spec.md §4.F requires every
// chapter record to carry, "to detect drift on later reads": the bundle is
// canonicalized (sorted, order-independent fields) before hashing so two
// bundles with the same content in different slice order fingerprint
// identically.
func SettingsFingerprint(b settings.Bundle) string {
	var sb strings.Builder

	names := make([]string, 0, len(b.Characters))
	byName := make(map[string]settings.Character, len(b.Characters))
	for _, c := range b.Characters {
		names = append(names, c.Name)
		byName[c.Name] = c
	}
	sort.Strings(names)
	for _, n := range names {
		c := byName[n]
		traits := append([]string(nil), c.Traits...)
		sort.Strings(traits)
		fmt.Fprintf(&sb, "C|%s|%s|%s|%s\n", c.Name, c.Role, strings.Join(traits, ","), c.Background)
	}

	locations := append([]string(nil), b.World.Locations...)
	sort.Strings(locations)
	rules := append([]string(nil), b.World.Rules...)
	sort.Strings(rules)
	fmt.Fprintf(&sb, "W|%s|%s|%s|%s|%s\n", b.World.Genre, b.World.Era, strings.Join(locations, ","), strings.Join(rules, ","), b.World.TechnologyLevel)

	plots := make([]string, 0, len(b.PlotPoints))
	for _, p := range b.PlotPoints {
		plots = append(plots, fmt.Sprintf("%s|%s|%v", p.Summary, p.Kind, p.Resolved))
	}
	sort.Strings(plots)
	for _, p := range plots {
		fmt.Fprintf(&sb, "P|%s\n", p)
	}

	aspects := make([]string, 0, len(b.StyleHints))
	for k := range b.StyleHints {
		aspects = append(aspects, k)
	}
	sort.Strings(aspects)
	for _, k := range aspects {
		fmt.Fprintf(&sb, "S|%s|%s\n", k, b.StyleHints[k])
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
