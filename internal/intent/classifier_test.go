package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yantianqi1/write-agent/internal/llm"
)

func TestRuleStageHighConfidenceCases(t *testing.T) {
	cases := []struct {
		turn string
		want Kind
	}{
		{"I want a 2077 Shanghai cyberpunk novel, protagonist Lin Feng", CreateStory},
		{"Change the protagonist's role to antagonist", ModifySetting},
		{"Please rewrite chapter 3, it's too slow", ModifyContent},
		{"Write chapter 4 now", GenerateContent},
		{"Continue, what happens next", ContinueContent},
		{"What is Lin Feng's job?", Query},
	}
	c := New(nil)
	for _, tc := range cases {
		res, err := c.Classify(context.Background(), tc.turn)
		require.NoError(t, err)
		assert.Equalf(t, tc.want, res.Intent, "turn=%q", tc.turn)
		assert.GreaterOrEqual(t, res.Confidence, fallbackThreshold)
	}
}

func TestLowConfidenceFallsBackToDefaultChatWithoutGenerator(t *testing.T) {
	c := New(nil)
	res, err := c.Classify(context.Background(), "hmm, interesting weather today")
	require.NoError(t, err)
	assert.Equal(t, Chat, res.Intent)
	assert.Less(t, res.Confidence, fallbackThreshold)
}

type stubGen struct {
	reply string
}

func (s *stubGen) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	return llm.Response{Content: s.reply, FinishReason: llm.FinishStop}, nil
}

func TestLLMFallbackEscalatesBelowThreshold(t *testing.T) {
	gen := &stubGen{reply: "QUERY | the turn asks a factual question"}
	c := New(gen)
	res, err := c.Classify(context.Background(), "hmm, interesting weather today")
	require.NoError(t, err)
	assert.Equal(t, Query, res.Intent)
	assert.Equal(t, 0.75, res.Confidence)
	assert.Contains(t, res.Rationale, "factual")
}

func TestLLMFallbackUnparseableKeepsRuleCandidate(t *testing.T) {
	gen := &stubGen{reply: "I'm not sure what that means"}
	c := New(gen)
	res, err := c.Classify(context.Background(), "hmm, interesting weather today")
	require.NoError(t, err)
	assert.Equal(t, Chat, res.Intent)
}

func TestHasGenerationCue(t *testing.T) {
	assert.True(t, HasGenerationCue("please write the next chapter"))
	assert.True(t, HasGenerationCue("continue the story"))
	assert.False(t, HasGenerationCue("what is the protagonist's name?"))
}
