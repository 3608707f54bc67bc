// Package anthropic implements the Claude llm.Provider over the Messages API.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/yantianqi1/write-agent/internal/coreerr"
	"github.com/yantianqi1/write-agent/internal/httpclient"
	"github.com/yantianqi1/write-agent/internal/llm"
	"github.com/yantianqi1/write-agent/internal/tokenizer"
)

const (
	defaultHost      = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

// Config configures the Anthropic provider.
type Config struct {
	Model   string
	APIKey  string
	BaseURL string
}

// Provider talks the Anthropic Messages API wire format directly.
type Provider struct {
	cfg     Config
	http    *httpclient.Client
	counter tokenizer.Counter
}

// New builds a Provider.
func New(cfg Config, client *httpclient.Client) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultHost
	}
	return &Provider{cfg: cfg, http: client, counter: tokenizer.ForProvider("anthropic", cfg.Model)}
}

func (p *Provider) Name() string                         { return "anthropic" }
func (p *Provider) Model() string                         { return p.cfg.Model }
func (p *Provider) CountTokens(text string) (int, error) { return p.counter.Count(text) }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	StopSeqs    []string  `json:"stop_sequences,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type response struct {
	Content    []contentBlock `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      usage           `json:"usage"`
	Error      *apiError       `json:"error,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage *usage `json:"usage,omitempty"`
}

func split(msgs []llm.Message) (system string, rest []message) {
	for _, m := range msgs {
		if m.Role == llm.RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, message{Role: string(m.Role), Content: m.Content})
	}
	return system, rest
}

func (p *Provider) buildRequest(ctx context.Context, body request) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Parse, err, "encoding anthropic request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Network, err, "building anthropic request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	return httpReq, nil
}

func (p *Provider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	system, msgs := split(req.Messages)
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	body := request{
		Model: p.cfg.Model, System: system, Messages: msgs,
		MaxTokens: maxTokens, Temperature: req.Temperature, TopP: req.TopP, StopSeqs: req.Stop,
	}

	httpReq, err := p.buildRequest(ctx, body)
	if err != nil {
		return llm.Response{}, err
	}
	resp, err := p.http.Do(httpReq)
	if err != nil && resp == nil {
		return llm.Response{}, coreerr.Wrap(coreerr.Network, err, "anthropic request failed")
	}
	defer resp.Body.Close()

	var parsed response
	decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
	if err := classifyStatus(resp.StatusCode, parsed.Error); err != nil {
		return llm.Response{}, err
	}
	if decodeErr != nil {
		return llm.Response{}, coreerr.Wrap(coreerr.Parse, decodeErr, "decoding anthropic response")
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return llm.Response{
		Content: text.String(),
		Usage: llm.Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
		FinishReason: normalizeFinishReason(parsed.StopReason),
	}, nil
}

func (p *Provider) GenerateStream(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, error) {
	system, msgs := split(req.Messages)
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	body := request{
		Model: p.cfg.Model, System: system, Messages: msgs,
		MaxTokens: maxTokens, Temperature: req.Temperature, TopP: req.TopP, StopSeqs: req.Stop, Stream: true,
	}

	httpReq, err := p.buildRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Network, err, "anthropic request failed")
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
		var u usage
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				ch <- llm.StreamChunk{Err: ctx.Err()}
				return
			default:
			}
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var ev streamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &ev); err != nil {
				continue
			}
			switch ev.Type {
			case "content_block_delta":
				if ev.Delta.Text != "" {
					ch <- llm.StreamChunk{Text: ev.Delta.Text}
				}
			case "message_delta":
				if ev.Usage != nil {
					u = *ev.Usage
				}
			case "message_stop":
				usageOut := llm.Usage{PromptTokens: u.InputTokens, CompletionTokens: u.OutputTokens, TotalTokens: u.InputTokens + u.OutputTokens}
				ch <- llm.StreamChunk{Done: true, Usage: &usageOut}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			ch <- llm.StreamChunk{Err: coreerr.Wrap(coreerr.Network, err, "reading anthropic stream")}
		}
	}()
	return ch, nil
}

func normalizeFinishReason(r string) llm.FinishReason {
	switch r {
	case "max_tokens":
		return llm.FinishLength
	case "end_turn", "stop_sequence", "":
		return llm.FinishStop
	default:
		return llm.FinishStop
	}
}

func classifyStatus(statusCode int, apiErr *apiError) error {
	msg := "anthropic request failed"
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
	case statusCode == http.StatusRequestTimeout:
		return coreerr.New(coreerr.Timeout, msg)
	case statusCode >= 500:
		return coreerr.New(coreerr.ProviderError, msg)
	case statusCode >= 400:
		return coreerr.New(coreerr.ProviderError, msg)
	default:
		return nil
	}
}
