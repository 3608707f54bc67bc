// Package ollama implements the llm.Provider over a local Ollama
// /api/chat endpoint. No API key is required.
package ollama

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

const defaultHost = "http://localhost:11434"

// Config configures the Ollama provider.
type Config struct {
	Model   string
	BaseURL string
}

// Provider talks the local Ollama chat API.
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
	return &Provider{cfg: cfg, http: client, counter: tokenizer.ForProvider("ollama", cfg.Model)}
}

func (p *Provider) Name() string                         { return "ollama" }
func (p *Provider) Model() string                         { return p.cfg.Model }
func (p *Provider) CountTokens(text string) (int, error) { return p.counter.Count(text) }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type options struct {
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  options       `json:"options,omitempty"`
}

type chatResponse struct {
	Message   chatMessage `json:"message"`
	Done      bool        `json:"done"`
	DoneReason string     `json:"done_reason"`

	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`

	Error string `json:"error,omitempty"`
}

func toChatMessages(msgs []llm.Message) []chatMessage {
	out := make([]chatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

func (p *Provider) buildRequest(ctx context.Context, body chatRequest) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Parse, err, "encoding ollama request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Network, err, "building ollama request")
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (p *Provider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	body := chatRequest{
		Model:    p.cfg.Model,
		Messages: toChatMessages(req.Messages),
		Stream:   false,
		Options:  options{Temperature: req.Temperature, TopP: req.TopP, NumPredict: req.MaxTokens, Stop: req.Stop},
	}

	httpReq, err := p.buildRequest(ctx, body)
	if err != nil {
		return llm.Response{}, err
	}
	resp, err := p.http.Do(httpReq)
	if err != nil && resp == nil {
		return llm.Response{}, coreerr.Wrap(coreerr.Network, err, "ollama request failed")
	}
	defer resp.Body.Close()

	var parsed chatResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
	if err := classifyStatus(resp.StatusCode, parsed.Error); err != nil {
		return llm.Response{}, err
	}
	if decodeErr != nil {
		return llm.Response{}, coreerr.Wrap(coreerr.Parse, decodeErr, "decoding ollama response")
	}

	return llm.Response{
		Content: parsed.Message.Content,
		Usage: llm.Usage{
			PromptTokens:     parsed.PromptEvalCount,
			CompletionTokens: parsed.EvalCount,
			TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
		},
		FinishReason: normalizeFinishReason(parsed.DoneReason),
	}, nil
}

func (p *Provider) GenerateStream(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, error) {
	body := chatRequest{
		Model:    p.cfg.Model,
		Messages: toChatMessages(req.Messages),
		Stream:   true,
		Options:  options{Temperature: req.Temperature, TopP: req.TopP, NumPredict: req.MaxTokens, Stop: req.Stop},
	}

	httpReq, err := p.buildRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Network, err, "ollama request failed")
	}
	if err := classifyStatus(resp.StatusCode, ""); err != nil {
		resp.Body.Close()
		return nil, err
	}

	ch := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				ch <- llm.StreamChunk{Err: ctx.Err()}
				return
			default:
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var chunk chatResponse
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				continue
			}
			if chunk.Message.Content != "" {
				ch <- llm.StreamChunk{Text: chunk.Message.Content}
			}
			if chunk.Done {
				usage := llm.Usage{PromptTokens: chunk.PromptEvalCount, CompletionTokens: chunk.EvalCount, TotalTokens: chunk.PromptEvalCount + chunk.EvalCount}
				ch <- llm.StreamChunk{Done: true, Usage: &usage}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			ch <- llm.StreamChunk{Err: coreerr.Wrap(coreerr.Network, err, "reading ollama stream")}
		}
	}()
	return ch, nil
}

func normalizeFinishReason(r string) llm.FinishReason {
	switch r {
	case "length":
		return llm.FinishLength
	case "stop", "":
		return llm.FinishStop
	default:
		return llm.FinishStop
	}
}

func classifyStatus(statusCode int, apiErr string) error {
	msg := apiErr
	if msg == "" {
		msg = "ollama request failed"
	}
	switch {
	case statusCode == http.StatusOK:
		return nil
	case statusCode == http.StatusNotFound:
		return coreerr.New(coreerr.ProviderError, "ollama model not found: "+msg)
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
