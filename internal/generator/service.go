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

package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yantianqi1/write-agent/internal/consistency"
	"github.com/yantianqi1/write-agent/internal/coreerr"
	"github.com/yantianqi1/write-agent/internal/llm"
	"github.com/yantianqi1/write-agent/internal/memory"
	"github.com/yantianqi1/write-agent/internal/settings"
	"github.com/yantianqi1/write-agent/internal/tokenizer"
)

// Generator is the narrow slice of llm.Gateway the content generator calls.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (llm.Response, error)
}

// MemoryWriter is the narrow slice of memory.Service this package depends
// on: the 4.B retrieval call prompt composition needs, and the two writes
// post-generation produces (the chapter's PLOT summary and its CONTEXT
// entry). memory.Service satisfies this directly; the interface exists so
// tests can stub it without an in-memory backend.
type MemoryWriter interface {
	BuildContext(ctx context.Context, projectID, query string, budgetTokens int, counter tokenizer.Counter) (string, error)
	AppendPlotPoint(ctx context.Context, projectID, content string, metadata map[string]any) (memory.Item, error)
	AppendContext(ctx context.Context, projectID, content string, order int) (memory.Item, error)
}

// ChapterStore is the persistence boundary for Chapter records (spec.md
// §4.F's lifecycle state machine). Narrow, local interface — the same
// cycle-avoidance pattern as internal/memory.Backend and internal/session.Store;
// internal/repository provides the concrete implementation.
type ChapterStore interface {
	Save(ctx context.Context, ch Chapter) error
	Get(ctx context.Context, id string) (Chapter, bool, error)
	ListByNumber(ctx context.Context, projectID string, chapterNumber int) ([]Chapter, error)
	CurrentByNumber(ctx context.Context, projectID string, chapterNumber int) (Chapter, bool, error)
}

// Config carries the token-budget inputs spec.md §4.F's budget rule needs.
type Config struct {
	ContextWindowTokens int // model's total context window
	RetrievalK          int // default 4.B search k
	DefaultLocale       string
}

const (
	promptBudgetFraction     = 0.60
	completionBudgetFraction = 0.35
)

// Service implements component F.
type Service struct {
	gen     Generator
	mem     MemoryWriter
	checker *consistency.Checker
	store   ChapterStore
	cfg     Config
}

// NewService constructs a Service.
func NewService(gen Generator, mem MemoryWriter, checker *consistency.Checker, store ChapterStore, cfg Config) *Service {
	if cfg.ContextWindowTokens <= 0 {
		cfg.ContextWindowTokens = 8192
	}
	if cfg.RetrievalK <= 0 {
		cfg.RetrievalK = 8
	}
	return &Service{gen: gen, mem: mem, checker: checker, store: store, cfg: cfg}
}

// Generate runs spec.md §4.F's full contract: compose the prompt under the
// token budget rule (re-running build_context tighter if settings+memory
// overflow 60% of the context window), call the gateway, persist a DRAFT (or
// FAILED) chapter record, then run post-generation consistency checking and
// PLOT summarization.
func (s *Service) Generate(ctx context.Context, bundle settings.Bundle, req Request) (Result, error) {
	chapter := Chapter{
		ID:                  uuid.NewString(),
		ProjectID:           req.ProjectID,
		ChapterNumber:       req.ChapterNumber,
		Mode:                req.Mode,
		Status:              Generating,
		SettingsFingerprint: SettingsFingerprint(bundle),
		CreatedAt:           timeNow(),
	}
	chapter.UpdatedAt = chapter.CreatedAt
	if req.Mode == Rewrite {
		if prior, ok, err := s.store.CurrentByNumber(ctx, req.ProjectID, req.ChapterNumber); err == nil && ok {
			chapter.Parent = prior.ID
		}
	}
	if err := s.store.Save(ctx, chapter); err != nil {
		return Result{}, coreerr.Wrap(coreerr.Storage, err, "persist generating chapter record")
	}

	counter := tokenizer.HeuristicCounter{}
	promptBudget := int(float64(s.cfg.ContextWindowTokens) * promptBudgetFraction)
	completionBudget := int(float64(s.cfg.ContextWindowTokens) * completionBudgetFraction)

	messages, err := s.composeWithBudget(ctx, bundle, req, counter, promptBudget)
	if err != nil {
		chapter.Status = Failed
		chapter.UpdatedAt = timeNow()
		_ = s.store.Save(ctx, chapter)
		return Result{}, err
	}

	resp, err := s.gen.Generate(ctx, llm.Request{
		Messages:    messages,
		Temperature: 0.8,
		MaxTokens:   completionBudget,
	})
	if err != nil {
		chapter.Status = Failed
		chapter.UpdatedAt = timeNow()
		_ = s.store.Save(ctx, chapter)
		return Result{}, coreerr.Wrap(coreerr.ProviderError, err, "generate chapter content")
	}

	chapter.Content = resp.Content
	chapter.Usage = resp.Usage
	chapter.WordCount = WordCount(resp.Content, localeHint(bundle, req))
	chapter.Status = Draft
	chapter.UpdatedAt = timeNow()

	var report consistency.Report
	if s.checker != nil {
		report = s.checker.CheckChapter(bundle, resp.Content, hasResolutionChapterFlag(bundle))
		chapter.ConsistencyReport = report
	}

	if err := s.store.Save(ctx, chapter); err != nil {
		return Result{}, coreerr.Wrap(coreerr.Storage, err, "persist draft chapter record")
	}

	if s.mem != nil {
		if _, err := s.mem.AppendContext(ctx, req.ProjectID, resp.Content, req.ChapterNumber); err != nil {
			return Result{}, coreerr.Wrap(coreerr.Storage, err, "append chapter to context memory")
		}
		summary, err := s.summarizeForPlot(ctx, resp.Content)
		if err != nil {
			return Result{}, err
		}
		if summary != "" {
			if _, err := s.mem.AppendPlotPoint(ctx, req.ProjectID, summary, map[string]any{"chapter": req.ChapterNumber}); err != nil {
				return Result{}, coreerr.Wrap(coreerr.Storage, err, "append chapter summary to plot memory")
			}
		}
	}

	return Result{Chapter: chapter, ConsistencyReport: report}, nil
}

// composeWithBudget builds the prompt, re-running build_context at a tighter
// budget if the composed prompt exceeds promptBudget (spec.md §4.F: "If
// settings+memory exceed 60%, 4.B build_context is re-run with a tighter
// budget and lower k"). Each retry halves the memory budget passed to
// BuildContext, which is itself what drives a smaller k's worth of retrieved
// items (BuildContext's per-section search already caps candidates to what
// fits the budget, so tightening the budget is equivalent to lowering k).
func (s *Service) composeWithBudget(ctx context.Context, bundle settings.Bundle, req Request, counter tokenizer.Counter, promptBudget int) ([]llm.Message, error) {
	memoryBudget := promptBudget / 2

	for attempt := 0; attempt < 3; attempt++ {
		var memoryBlock string
		if s.mem != nil {
			var err error
			memoryBlock, err = s.mem.BuildContext(ctx, req.ProjectID, req.Constraints, memoryBudget, counter)
			if err != nil {
				return nil, coreerr.Wrap(coreerr.Storage, err, "build retrieval context")
			}
		}

		messages := ComposePrompt(bundle, memoryBlock, req, counter)
		total := 0
		for _, m := range messages {
			n, _ := counter.Count(m.Content)
			total += n
		}
		if total <= promptBudget || memoryBudget <= 0 {
			return messages, nil
		}
		memoryBudget = memoryBudget / 2
	}
	return nil, coreerr.New(coreerr.ContextOverflow, fmt.Sprintf("prompt exceeds budget of %d tokens after retries", promptBudget))
}

// summarizeForPlot asks the gateway for a <=200-word PLOT summary of the
// newly generated chapter (spec.md §4.F: "summarize the chapter into a PLOT
// item (≤ 200 words, via LLM)").
func (s *Service) summarizeForPlot(ctx context.Context, chapterText string) (string, error) {
	resp, err := s.gen.Generate(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Summarize the following chapter in 200 words or fewer, focused on plot-relevant events."},
			{Role: llm.RoleUser, Content: chapterText},
		},
		Temperature: 0.2,
		MaxTokens:   400,
	})
	if err != nil {
		return "", coreerr.Wrap(coreerr.ProviderError, err, "summarize chapter for plot memory")
	}
	return resp.Content, nil
}

func localeHint(bundle settings.Bundle, req Request) string {
	if req.LocaleHint != "" {
		return req.LocaleHint
	}
	return bundle.StyleHints["locale"]
}

func hasResolutionChapterFlag(bundle settings.Bundle) bool {
	for _, p := range bundle.PlotPoints {
		if p.ResolutionChapter && !p.Resolved {
			return true
		}
	}
	return false
}

// timeNow is a thin indirection so tests can't accidentally depend on wall
// clock ordering across fast-running assertions; production code always
// takes this path.
func timeNow() time.Time { return time.Now() }
