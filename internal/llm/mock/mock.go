// Package mock implements the Mock provider variant spec §4.A lists
// explicitly — a zero-dependency runtime option and the fixture every other
// package's tests build on, per hector's pkg/memory test-double pattern.
package mock

import (
	"context"
	"fmt"
	"strings"

	"github.com/yantianqi1/write-agent/internal/llm"
	"github.com/yantianqi1/write-agent/internal/tokenizer"
)

// ResponseFunc lets a test script the reply for each call instead of the
// canned echo.
type ResponseFunc func(req llm.Request) (llm.Response, error)

// Provider is a deterministic, in-process llm.Provider. With no
// ResponseFunc set, Generate echoes the last user message prefixed with
// "mock: ", which is enough to drive the agent pipeline end-to-end in
// tests without a network dependency.
type Provider struct {
	model    string
	respond  ResponseFunc
	counter  tokenizer.Counter
	calls    int
}

// New creates a Mock provider. model is cosmetic — it only appears in
// gateway metrics/traces.
func New(model string) *Provider {
	return &Provider{model: model, counter: tokenizer.HeuristicCounter{}}
}

// WithResponseFunc overrides the canned echo behavior.
func (p *Provider) WithResponseFunc(fn ResponseFunc) *Provider {
	p.respond = fn
	return p
}

func (p *Provider) Name() string  { return "mock" }
func (p *Provider) Model() string { return p.model }

func (p *Provider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	p.calls++
	if p.respond != nil {
		return p.respond(req)
	}

	last := lastUserMessage(req)
	content := fmt.Sprintf("mock: %s", last)
	tokens, _ := p.counter.Count(content)
	return llm.Response{
		Content:      content,
		Usage:        llm.Usage{PromptTokens: promptTokens(req, p.counter), CompletionTokens: tokens, TotalTokens: tokens},
		FinishReason: llm.FinishStop,
	}, nil
}

func (p *Provider) GenerateStream(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, error) {
	resp, err := p.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamChunk, 4)
	go func() {
		defer close(ch)
		words := strings.Fields(resp.Content)
		for _, w := range words {
			select {
			case <-ctx.Done():
				ch <- llm.StreamChunk{Err: ctx.Err()}
				return
			case ch <- llm.StreamChunk{Text: w + " "}:
			}
		}
		usage := resp.Usage
		ch <- llm.StreamChunk{Done: true, Usage: &usage}
	}()
	return ch, nil
}

func (p *Provider) CountTokens(text string) (int, error) {
	return p.counter.Count(text)
}

// Calls reports how many Generate invocations this provider instance has
// served, for test assertions.
func (p *Provider) Calls() int { return p.calls }

func lastUserMessage(req llm.Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == llm.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

func promptTokens(req llm.Request, c tokenizer.Counter) int {
	total := 0
	for _, m := range req.Messages {
		n, _ := c.Count(m.Content)
		total += n
	}
	return total
}
