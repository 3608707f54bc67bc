package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yantianqi1/write-agent/internal/llm"
)

func TestGenerateEchoesLastUserMessage(t *testing.T) {
	p := New("mock-model")
	resp, err := p.Generate(context.Background(), llm.Request{Messages: []llm.Message{
		{Role: llm.RoleSystem, Content: "be terse"},
		{Role: llm.RoleUser, Content: "hello there"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "mock: hello there", resp.Content)
	assert.Equal(t, 1, p.Calls())
}

func TestGenerateUsesScriptedResponseFunc(t *testing.T) {
	p := New("mock-model").WithResponseFunc(func(req llm.Request) (llm.Response, error) {
		return llm.Response{Content: "scripted", FinishReason: llm.FinishStop}, nil
	})
	resp, err := p.Generate(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "scripted", resp.Content)
}

func TestGenerateStreamYieldsWordsThenDone(t *testing.T) {
	p := New("mock-model")
	ch, err := p.GenerateStream(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "two words"}}})
	require.NoError(t, err)

	var chunks int
	var done bool
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		chunks++
		if chunk.Done {
			done = true
		}
	}
	assert.True(t, done)
	assert.Greater(t, chunks, 1)
}

func TestCountTokensDelegatesToHeuristic(t *testing.T) {
	p := New("mock-model")
	n, err := p.CountTokens("some text to count")
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}
