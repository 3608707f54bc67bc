// Package openai implements the OpenAI-compatible llm.Provider, shared by
// both the "openai" and "azure-openai" configuration variants (the latter
// only changes the base URL, auth header, and query-string API version).
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/yantianqi1/write-agent/internal/coreerr"
	"github.com/yantianqi1/write-agent/internal/httpclient"
	"github.com/yantianqi1/write-agent/internal/llm"
	"github.com/yantianqi1/write-agent/internal/tokenizer"
)

const defaultHost = "https://api.openai.com/v1"

// Config configures an OpenAI-compatible provider.
type Config struct {
	Model   string
	APIKey  string
	BaseURL string // overridden for azure-openai and self-hosted gateways

	// Azure carries the two fields only the azure-openai variant sets.
	AzureDeployment string
	AzureAPIVersion string
}

// Provider talks the OpenAI Chat Completions wire format directly, in
// hector's style of hand-rolled REST clients over a shared retrying
// transport rather than a vendored SDK.
type Provider struct {
	cfg     Config
	http    *httpclient.Client
	counter tokenizer.Counter
}

// New builds a Provider. http may be shared across providers targeting the
// same process-wide concurrency cap.
func New(cfg Config, client *httpclient.Client) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultHost
	}
	return &Provider{cfg: cfg, http: client, counter: tokenizer.ForProvider("openai", cfg.Model)}
}

func (p *Provider) Name() string  { return "openai" }
func (p *Provider) Model() string { return p.cfg.Model }

func (p *Provider) CountTokens(text string) (int, error) {
	return p.counter.Count(text)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
	Delta        chatMessage `json:"delta"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
	Error   *apiError    `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

func toChatMessages(msgs []llm.Message) []chatMessage {
	out := make([]chatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

func (p *Provider) buildRequest(ctx context.Context, body any, stream bool) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Parse, err, "encoding openai request")
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/chat/completions"
	if p.cfg.AzureDeployment != "" {
		url = fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.AzureDeployment, p.cfg.AzureAPIVersion)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Network, err, "building openai request")
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.AzureDeployment != "" {
		req.Header.Set("api-key", p.cfg.APIKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(p.cfg.APIKey))
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

func (p *Provider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	body := chatRequest{
		Model:       p.cfg.Model,
		Messages:    toChatMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}

	httpReq, err := p.buildRequest(ctx, body, false)
	if err != nil {
		return llm.Response{}, err
	}

	resp, err := p.http.Do(httpReq)
	if err != nil && resp == nil {
		return llm.Response{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	var parsed chatResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
	if err := classifyStatus(resp.StatusCode, parsed.Error); err != nil {
		return llm.Response{}, err
	}
	if decodeErr != nil {
		return llm.Response{}, coreerr.Wrap(coreerr.Parse, decodeErr, "decoding openai response")
	}
	if len(parsed.Choices) == 0 {
		return llm.Response{}, coreerr.New(coreerr.ProviderError, "openai response had no choices")
	}

	choice := parsed.Choices[0]
	return llm.Response{
		Content:      choice.Message.Content,
		Usage:        llm.Usage{PromptTokens: parsed.Usage.PromptTokens, CompletionTokens: parsed.Usage.CompletionTokens, TotalTokens: parsed.Usage.TotalTokens},
		FinishReason: normalizeFinishReason(choice.FinishReason),
	}, nil
}

func (p *Provider) GenerateStream(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, error) {
	body := chatRequest{
		Model:       p.cfg.Model,
		Messages:    toChatMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      true,
	}

	httpReq, err := p.buildRequest(ctx, body, true)
	if err != nil {
		return nil, err
	}

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if err := classifyStatus(resp.StatusCode, nil); err != nil {
		resp.Body.Close()
		return nil, err
	}

	ch := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		var usage llm.Usage
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				ch <- llm.StreamChunk{Err: ctx.Err()}
				return
			default:
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				ch <- llm.StreamChunk{Done: true, Usage: &usage}
				return
			}

			var chunk chatResponse
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if chunk.Usage.TotalTokens > 0 {
				usage = llm.Usage{PromptTokens: chunk.Usage.PromptTokens, CompletionTokens: chunk.Usage.CompletionTokens, TotalTokens: chunk.Usage.TotalTokens}
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				ch <- llm.StreamChunk{Text: chunk.Choices[0].Delta.Content}
			}
		}
		if err := scanner.Err(); err != nil {
			ch <- llm.StreamChunk{Err: coreerr.Wrap(coreerr.Network, err, "reading openai stream")}
		}
	}()
	return ch, nil
}

func normalizeFinishReason(r string) llm.FinishReason {
	switch r {
	case "length":
		return llm.FinishLength
	case "content_filter":
		return llm.FinishContentFilter
	case "stop", "":
		return llm.FinishStop
	default:
		return llm.FinishStop
	}
}

func classifyStatus(statusCode int, apiErr *apiError) error {
	msg := "openai request failed"
	if apiErr != nil && apiErr.Message != "" {
		msg = apiErr.Message
	}
	switch {
	case statusCode == http.StatusOK:
		return nil
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return coreerr.New(coreerr.Auth, msg)
	case statusCode == http.StatusTooManyRequests:
		return coreerr.New(coreerr.RateLimit, msg)
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return coreerr.New(coreerr.Timeout, msg)
	case statusCode == http.StatusRequestEntityTooLarge:
		return coreerr.New(coreerr.ContextOverflow, msg)
	case statusCode >= 500:
		return coreerr.New(coreerr.ProviderError, msg)
	case statusCode >= 400:
		return coreerr.New(coreerr.ProviderError, msg)
	default:
		return nil
	}
}

func classifyTransportError(err error) error {
	if re, ok := err.(*httpclient.RetryableError); ok {
		return coreerr.Wrap(coreerr.Network, re, "openai transport retry exhausted")
	}
	return coreerr.Wrap(coreerr.Network, err, "openai request failed")
}
