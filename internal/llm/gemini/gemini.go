// Package gemini implements the Google Gemini llm.Provider over the
// generateContent / streamGenerateContent REST endpoints.
package gemini

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

const defaultHost = "https://generativelanguage.googleapis.com/v1beta"

// Config configures the Gemini provider.
type Config struct {
	Model   string
	APIKey  string
	BaseURL string
}

// Provider talks the Gemini REST API directly.
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
	return &Provider{cfg: cfg, http: client, counter: tokenizer.ForProvider("gemini", cfg.Model)}
}

func (p *Provider) Name() string                         { return "gemini" }
func (p *Provider) Model() string                         { return p.cfg.Model }
func (p *Provider) CountTokens(text string) (int, error) { return p.counter.Count(text) }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64  `json:"temperature,omitempty"`
	TopP            float64  `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type request struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig  `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type response struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata usageMetadata `json:"usageMetadata"`
	Error         *apiError     `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func toContents(msgs []llm.Message) (sys *content, contents []content) {
	for _, m := range msgs {
		if m.Role == llm.RoleSystem {
			sys = &content{Parts: []part{{Text: m.Content}}}
			continue
		}
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	return sys, contents
}

func (p *Provider) endpoint(method string) string {
	return fmt.Sprintf("%s/models/%s:%s?key=%s", strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.Model, method, p.cfg.APIKey)
}

func (p *Provider) buildRequest(ctx context.Context, method string, body request) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Parse, err, "encoding gemini request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(method), bytes.NewReader(payload))
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Network, err, "building gemini request")
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (p *Provider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	sys, contents := toContents(req.Messages)
	body := request{
		Contents:          contents,
		SystemInstruction: sys,
		GenerationConfig: generationConfig{
			Temperature: req.Temperature, TopP: req.TopP, MaxOutputTokens: req.MaxTokens, StopSequences: req.Stop,
		},
	}

	httpReq, err := p.buildRequest(ctx, "generateContent", body)
	if err != nil {
		return llm.Response{}, err
	}
	resp, err := p.http.Do(httpReq)
	if err != nil && resp == nil {
		return llm.Response{}, coreerr.Wrap(coreerr.Network, err, "gemini request failed")
	}
	defer resp.Body.Close()

	var parsed response
	decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
	if err := classifyStatus(resp.StatusCode, parsed.Error); err != nil {
		return llm.Response{}, err
	}
	if decodeErr != nil {
		return llm.Response{}, coreerr.Wrap(coreerr.Parse, decodeErr, "decoding gemini response")
	}
	if len(parsed.Candidates) == 0 {
		return llm.Response{}, coreerr.New(coreerr.ProviderError, "gemini response had no candidates")
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	return llm.Response{
		Content: text.String(),
		Usage: llm.Usage{
			PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
			CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
		},
		FinishReason: normalizeFinishReason(parsed.Candidates[0].FinishReason),
	}, nil
}

func (p *Provider) GenerateStream(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, error) {
	sys, contents := toContents(req.Messages)
	body := request{
		Contents:          contents,
		SystemInstruction: sys,
		GenerationConfig: generationConfig{
			Temperature: req.Temperature, TopP: req.TopP, MaxOutputTokens: req.MaxTokens, StopSequences: req.Stop,
		},
	}

	httpReq, err := p.buildRequest(ctx, "streamGenerateContent", body)
	if err != nil {
		return nil, err
	}
	q := httpReq.URL.Query()
	q.Set("alt", "sse")
	httpReq.URL.RawQuery = q.Encode()

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Network, err, "gemini request failed")
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
		var usage usageMetadata
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
			var chunk response
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &chunk); err != nil {
				continue
			}
			if chunk.UsageMetadata.TotalTokenCount > 0 {
				usage = chunk.UsageMetadata
			}
			if len(chunk.Candidates) > 0 {
				for _, part := range chunk.Candidates[0].Content.Parts {
					if part.Text != "" {
						ch <- llm.StreamChunk{Text: part.Text}
					}
				}
			}
		}
		u := llm.Usage{PromptTokens: usage.PromptTokenCount, CompletionTokens: usage.CandidatesTokenCount, TotalTokens: usage.TotalTokenCount}
		if err := scanner.Err(); err != nil {
			ch <- llm.StreamChunk{Err: coreerr.Wrap(coreerr.Network, err, "reading gemini stream")}
			return
		}
		ch <- llm.StreamChunk{Done: true, Usage: &u}
	}()
	return ch, nil
}

func normalizeFinishReason(r string) llm.FinishReason {
	switch r {
	case "MAX_TOKENS":
		return llm.FinishLength
	case "SAFETY", "RECITATION":
		return llm.FinishContentFilter
	case "STOP", "":
		return llm.FinishStop
	default:
		return llm.FinishStop
	}
}

func classifyStatus(statusCode int, apiErr *apiError) error {
	msg := "gemini request failed"
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
