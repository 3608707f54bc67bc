package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yantianqi1/write-agent/internal/coreerr"
	"github.com/yantianqi1/write-agent/internal/httpclient"
	"github.com/yantianqi1/write-agent/internal/llm"
)

func testProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{Model: "claude-sonnet-4", APIKey: "key", BaseURL: srv.URL}, httpclient.New())
}

func TestGenerateSeparatesSystemMessages(t *testing.T) {
	var captured request
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(`{"content":[{"type":"text","text":"hi"}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":1}}`))
	})

	resp, err := p.Generate(context.Background(), llm.Request{Messages: []llm.Message{
		{Role: llm.RoleSystem, Content: "be terse"},
		{Role: llm.RoleUser, Content: "hello"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, 4, resp.Usage.TotalTokens)
	assert.Equal(t, "be terse", captured.System)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
}

func TestGenerateDefaultsMaxTokens(t *testing.T) {
	var captured request
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(`{"content":[{"type":"text","text":"ok"}],"stop_reason":"end_turn","usage":{}}`))
	})

	_, err := p.Generate(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, 1024, captured.MaxTokens)
}

func TestGenerateClassifiesTimeout(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestTimeout)
		w.Write([]byte(`{"error":{"type":"timeout","message":"too slow"}}`))
	})

	_, err := p.Generate(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.Equal(t, coreerr.Timeout, coreerr.OfKind(err))
}

func TestGenerateStreamAccumulatesDeltas(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Write([]byte("data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"hel\"}}\n\n"))
		flusher.Flush()
		w.Write([]byte("data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n"))
		flusher.Flush()
		w.Write([]byte("data: {\"type\":\"message_delta\",\"usage\":{\"input_tokens\":3,\"output_tokens\":2}}\n\n"))
		flusher.Flush()
		w.Write([]byte("data: {\"type\":\"message_stop\"}\n\n"))
		flusher.Flush()
	})

	ch, err := p.GenerateStream(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.NoError(t, err)

	var text string
	var usage *llm.Usage
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		text += chunk.Text
		if chunk.Done {
			usage = chunk.Usage
		}
	}
	assert.Equal(t, "hello", text)
	require.NotNil(t, usage)
	assert.Equal(t, 5, usage.TotalTokens)
}
