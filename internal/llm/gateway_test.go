package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yantianqi1/write-agent/internal/coreerr"
)

type stubProvider struct {
	name    string
	model   string
	calls   int
	failFor int
	resp    Response
}

func (s *stubProvider) Name() string  { return s.name }
func (s *stubProvider) Model() string { return s.model }

func (s *stubProvider) Generate(ctx context.Context, req Request) (Response, error) {
	s.calls++
	if s.calls <= s.failFor {
		return Response{}, coreerr.New(coreerr.RateLimit, "throttled")
	}
	return s.resp, nil
}

func (s *stubProvider) GenerateStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 2)
	ch <- StreamChunk{Text: s.resp.Content}
	ch <- StreamChunk{Done: true, Usage: &s.resp.Usage}
	close(ch)
	return ch, nil
}

func (s *stubProvider) CountTokens(text string) (int, error) { return len(text), nil }

type stubMetrics struct {
	calls  int
	errors int
}

func (m *stubMetrics) RecordLLMCall(provider, model string, durationSeconds float64, tokensIn, tokensOut int) {
	m.calls++
}
func (m *stubMetrics) RecordLLMError(provider, kind string) { m.errors++ }

func TestGatewayGenerateRetriesThenSucceeds(t *testing.T) {
	provider := &stubProvider{name: "mock", model: "m1", failFor: 1, resp: Response{Content: "ok", Usage: Usage{TotalTokens: 3}}}
	metrics := &stubMetrics{}
	gw := NewGateway(provider, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, metrics)

	resp, err := gw.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 2, provider.calls)
	assert.Equal(t, 1, metrics.calls)
	assert.Equal(t, 0, metrics.errors)
}

func TestGatewayGenerateRecordsError(t *testing.T) {
	provider := &stubProvider{name: "mock", model: "m1", failFor: 10}
	metrics := &stubMetrics{}
	gw := NewGateway(provider, RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, metrics)

	_, err := gw.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.Equal(t, 1, metrics.errors)
	assert.Equal(t, 0, metrics.calls)
}

func TestGatewayGenerateStreamYieldsChunks(t *testing.T) {
	provider := &stubProvider{name: "mock", model: "m1", resp: Response{Content: "hello", Usage: Usage{TotalTokens: 1}}}
	gw := NewGateway(provider, DefaultRetryPolicy(), nil)

	ch, err := gw.GenerateStream(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)

	var text string
	for chunk := range ch {
		text += chunk.Text
	}
	assert.Equal(t, "hello", text)
}
