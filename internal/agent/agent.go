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

package agent

import (
	"context"
	"time"

	"github.com/yantianqi1/write-agent/internal/consistency"
	"github.com/yantianqi1/write-agent/internal/coordination"
	"github.com/yantianqi1/write-agent/internal/generator"
	"github.com/yantianqi1/write-agent/internal/intent"
	"github.com/yantianqi1/write-agent/internal/llm"
	"github.com/yantianqi1/write-agent/internal/memory"
	"github.com/yantianqi1/write-agent/internal/session"
	"github.com/yantianqi1/write-agent/internal/settings"
)

// Generator is the narrow slice of llm.Gateway this package calls directly
// (conversational replies outside generation), the same cycle-avoidance
// pattern internal/generator and internal/consistency already use.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (llm.Response, error)
}

// ChapterLister is the slice of internal/repository.InMemoryChapterStore
// list_generations needs (spec.md §6: "list_generations(project_id) ->
// records"), kept narrow so this package never imports internal/repository.
type ChapterLister interface {
	ListByProject(ctx context.Context, projectID string) ([]generator.Chapter, error)
}

// Transactor is the slice of internal/repository.Repositories this package
// needs: one atomic commit boundary per turn (spec.md §5: "commit
// atomically, all-or-nothing").
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// MetricsSink is the slice of internal/observability.Metrics this package
// records against.
type MetricsSink interface {
	RecordAgentTurn(intent string, duration float64)
}

// Agent implements component G over every other component: the per-turn
// pipeline spec.md §4.G describes, plus the direct generate_chapter and
// list_generations entry points spec.md §6 lists alongside chat/chat_stream.
type Agent struct {
	sessions   *session.Service
	classifier *intent.Classifier
	extractor  *settings.Extractor
	completer  *settings.Completer
	checker    *consistency.Checker
	generator  *generator.Service
	mem        *memory.Service
	gen        Generator
	chapters   ChapterLister
	genCoord   *coordination.GenerationCoordinator
	limiter    *coordination.ProviderLimiter
	tx         Transactor
	metrics    MetricsSink
	cfg        Config
}

// New constructs an Agent. metrics may be nil to disable turn recording.
func New(
	sessions *session.Service,
	classifier *intent.Classifier,
	extractor *settings.Extractor,
	completer *settings.Completer,
	checker *consistency.Checker,
	gen *generator.Service,
	mem *memory.Service,
	llmGen Generator,
	chapters ChapterLister,
	genCoord *coordination.GenerationCoordinator,
	limiter *coordination.ProviderLimiter,
	tx Transactor,
	metrics MetricsSink,
	cfg Config,
) *Agent {
	if cfg.CompletionThreshold <= 0 {
		cfg.CompletionThreshold = 0.7
	}
	if cfg.ConsistencyThreshold <= 0 {
		cfg.ConsistencyThreshold = 0.5
	}
	return &Agent{
		sessions:   sessions,
		classifier: classifier,
		extractor:  extractor,
		completer:  completer,
		checker:    checker,
		generator:  gen,
		mem:        mem,
		gen:        llmGen,
		chapters:   chapters,
		genCoord:   genCoord,
		limiter:    limiter,
		tx:         tx,
		metrics:    metrics,
		cfg:        cfg,
	}
}

// timeNow is a thin indirection so tests can't accidentally depend on wall
// clock ordering; production code always takes this path.
func timeNow() time.Time { return time.Now() }

func lastTurns(turns []session.Turn, n int) []session.Turn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
