package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicCounterLatin(t *testing.T) {
	n, err := HeuristicCounter{}.Count(strings.Repeat("a", 40))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestHeuristicCounterCJK(t *testing.T) {
	n, err := HeuristicCounter{}.Count(strings.Repeat("龙", 20))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestHeuristicCounterMixed(t *testing.T) {
	n, err := HeuristicCounter{}.Count("hello世界")
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestHeuristicCounterEmpty(t *testing.T) {
	n, err := HeuristicCounter{}.Count("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestForProviderPicksTiktokenForOpenAI(t *testing.T) {
	c := ForProvider("openai", "gpt-4o")
	_, ok := c.(*TiktokenCounter)
	assert.True(t, ok)
}

func TestForProviderPicksHeuristicForOthers(t *testing.T) {
	c := ForProvider("anthropic", "claude-sonnet")
	_, ok := c.(HeuristicCounter)
	assert.True(t, ok)
}
