package ollama

import (
	"context"
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
	return New(Config{Model: "llama3", BaseURL: srv.URL}, httpclient.New())
}

func TestGenerateReturnsContentAndUsage(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		w.Write([]byte(`{"message":{"role":"assistant","content":"hi"},"done":true,"done_reason":"stop","prompt_eval_count":4,"eval_count":2}`))
	})

	resp, err := p.Generate(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hello"}}})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, 6, resp.Usage.TotalTokens)
}

func TestGenerateClassifiesNotFound(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'llama3' not found"}`))
	})

	_, err := p.Generate(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.Equal(t, coreerr.ProviderError, coreerr.OfKind(err))
}

func TestGenerateStreamYieldsLineDelimitedChunks(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Write([]byte("{\"message\":{\"role\":\"assistant\",\"content\":\"hel\"},\"done\":false}\n"))
		flusher.Flush()
		w.Write([]byte("{\"message\":{\"role\":\"assistant\",\"content\":\"lo\"},\"done\":false}\n"))
		flusher.Flush()
		w.Write([]byte("{\"message\":{\"role\":\"assistant\",\"content\":\"\"},\"done\":true,\"done_reason\":\"stop\",\"prompt_eval_count\":4,\"eval_count\":2}\n"))
		flusher.Flush()
	})

	ch, err := p.GenerateStream(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.NoError(t, err)

	var text string
	var done bool
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		text += chunk.Text
		if chunk.Done {
			done = true
		}
	}
	assert.Equal(t, "hello", text)
	assert.True(t, done)
}
