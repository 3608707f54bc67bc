// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package llm is the uniform request/response gateway (component A): any
// provider variant translates Request into its native call and normalizes
// the result back into Response, so callers never see a provider-specific
// shape or error string.
package llm

import (
	"context"
	"time"
)

// Role is one of the three roles a Message may carry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation sent to a provider.
type Message struct {
	Role    Role
	Content string
}

// Request is the uniform shape every provider variant accepts.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	TopP        float64
	Stop        []string
	Timeout     time.Duration
}

// FinishReason is the closed set of reasons a generation stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishError         FinishReason = "error"
)

// Usage reports token accounting for a single call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the uniform shape every provider variant returns.
type Response struct {
	Content      string
	Usage        Usage
	FinishReason FinishReason
}

// StreamChunk is one increment of a streaming generation. The final chunk
// carries Done=true and a populated Usage; an error chunk carries Err and
// ends the stream.
type StreamChunk struct {
	Text  string
	Done  bool
	Usage *Usage
	Err   error
}

// Provider is implemented once per LLM variant (openai, anthropic, gemini,
// ollama, mock; azure-openai is a thin configuration variant of openai).
type Provider interface {
	Name() string
	Model() string

	Generate(ctx context.Context, req Request) (Response, error)

	// GenerateStream yields incremental chunks on the returned channel. The
	// channel is closed after a Done or Err chunk. Cancelling ctx aborts the
	// underlying provider call and closes the channel.
	GenerateStream(ctx context.Context, req Request) (<-chan StreamChunk, error)

	// CountTokens estimates the token count of text, using a provider
	// tokenizer if one is registered or the chars-per-token heuristic
	// otherwise (internal/tokenizer).
	CountTokens(text string) (int, error)
}

// Gateway wraps a Provider with the retry policy from spec §4.A and records
// call and error metrics on its MetricsSink (GenerateStream records errors
// only); it starts no tracing spans. The gateway never mutates memory; it
// is a pure request/response boundary.
type Gateway struct {
	provider Provider
	retry    RetryPolicy
	metrics  MetricsSink
}

// MetricsSink is the subset of internal/observability.Metrics the gateway
// needs, kept as an interface so tests can stub it without an import cycle.
type MetricsSink interface {
	RecordLLMCall(provider, model string, durationSeconds float64, tokensIn, tokensOut int)
	RecordLLMError(provider, kind string)
}

// NewGateway builds a Gateway over provider using the given retry policy.
// metrics may be nil, in which case calls are simply not recorded.
func NewGateway(provider Provider, retry RetryPolicy, metrics MetricsSink) *Gateway {
	return &Gateway{provider: provider, retry: retry, metrics: metrics}
}

// Generate performs a non-streaming call, retrying per g.retry on the error
// kinds spec §4.A marks retryable.
func (g *Gateway) Generate(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	resp, err := Do(ctx, g.retry, func() (Response, error) {
		return g.provider.Generate(ctx, req)
	})
	g.record(start, resp, err)
	return resp, err
}

// GenerateStream performs a streaming call. Streaming is not retried once
// the first chunk has been delivered — only the initial connection attempt
// goes through the retry policy, matching spec §4.A's "gateway propagates
// cancellation as a provider abort" model rather than silently restarting a
// partially-delivered stream.
func (g *Gateway) GenerateStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	start := time.Now()
	type result struct {
		ch <-chan StreamChunk
	}
	r, err := Do(ctx, g.retry, func() (result, error) {
		ch, err := g.provider.GenerateStream(ctx, req)
		return result{ch: ch}, err
	})
	if err != nil {
		g.record(start, Response{}, err)
		return nil, err
	}
	return r.ch, nil
}

// CountTokens delegates to the provider.
func (g *Gateway) CountTokens(text string) (int, error) {
	return g.provider.CountTokens(text)
}

func (g *Gateway) record(start time.Time, resp Response, err error) {
	if g.metrics == nil {
		return
	}
	elapsed := time.Since(start).Seconds()
	if err != nil {
		g.metrics.RecordLLMError(g.provider.Name(), errKind(err))
		return
	}
	g.metrics.RecordLLMCall(g.provider.Name(), g.provider.Model(), elapsed, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
}
