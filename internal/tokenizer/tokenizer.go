// Package tokenizer counts tokens for the LLM gateway's count_tokens
// contract (spec §4.A): a real tokenizer where a provider's model family has
// one registered (OpenAI/Azure-OpenAI, via tiktoken-go), and a chars-per-token
// heuristic everywhere else.
package tokenizer

import (
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

const (
	latinCharsPerToken = 4.0
	cjkCharsPerToken   = 2.0
)

// Counter estimates the number of tokens a string will consume.
type Counter interface {
	Count(text string) (int, error)
}

// TiktokenCounter wraps github.com/pkoukk/tiktoken-go for model families
// that have a registered BPE encoding (the OpenAI and azure-openai
// providers).
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter resolves the encoding for model. Falls back to the
// cl100k_base encoding (used by gpt-3.5/gpt-4 family models) when the exact
// model name isn't recognized, matching tiktoken-go's own fallback.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count returns the exact BPE token count.
func (c *TiktokenCounter) Count(text string) (int, error) {
	return len(c.enc.Encode(text, nil, nil)), nil
}

// HeuristicCounter estimates tokens at ≈4 chars/token for Latin-script text
// and ≈2 chars/token for CJK text, the fallback spec §4.A names for
// providers without a registered tokenizer (Anthropic, Gemini, Ollama, Mock).
type HeuristicCounter struct{}

// Count splits text into runs of CJK vs. non-CJK runes and sums each run's
// estimate at its own chars-per-token rate.
func (HeuristicCounter) Count(text string) (int, error) {
	if text == "" {
		return 0, nil
	}

	var total float64
	runLen := 0
	runIsCJK := isCJK(rune(text[0]))

	flush := func() {
		if runLen == 0 {
			return
		}
		rate := latinCharsPerToken
		if runIsCJK {
			rate = cjkCharsPerToken
		}
		total += float64(runLen) / rate
	}

	for _, r := range text {
		cjk := isCJK(r)
		if cjk != runIsCJK {
			flush()
			runIsCJK = cjk
			runLen = 0
		}
		runLen++
	}
	flush()

	tokens := int(total)
	if total-float64(tokens) > 0 {
		tokens++
	}
	if tokens == 0 && len(text) > 0 {
		tokens = 1
	}
	return tokens, nil
}

// isCJK reports whether r falls in a CJK Unicode range (Han, Hiragana,
// Katakana, Hangul) — the same ranges internal/generator's word-count
// heuristic uses to detect script for the locale-less fallback path.
func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// ForProvider resolves the right Counter for a provider/model pair: a
// TiktokenCounter for openai/azure-openai, the heuristic otherwise.
func ForProvider(providerType, model string) Counter {
	if providerType == "openai" || providerType == "azure-openai" {
		if c, err := NewTiktokenCounter(model); err == nil {
			return c
		}
	}
	return HeuristicCounter{}
}
