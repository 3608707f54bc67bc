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

package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig controls the metrics registry.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

func (c *MetricsConfig) setDefaults() {
	if c.Namespace == "" {
		c.Namespace = "storyagent"
	}
}

// Metrics collects the engine's Prometheus series: one counter/histogram
// family per long-running component (LLM gateway, memory, generator,
// consistency checker, conversational agent).
type Metrics struct {
	registry *prometheus.Registry

	llmCalls        *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmTokensInput  *prometheus.CounterVec
	llmTokensOutput *prometheus.CounterVec
	llmErrors       *prometheus.CounterVec

	memorySearches  *prometheus.CounterVec
	memorySearchDur *prometheus.HistogramVec
	memoryItemsKept *prometheus.CounterVec

	generationRuns     *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	generationWords    *prometheus.HistogramVec

	consistencyChecks *prometheus.CounterVec
	consistencyScore  *prometheus.HistogramVec

	agentTurns        *prometheus.CounterVec
	agentTurnDuration *prometheus.HistogramVec
}

// NewMetrics builds a Metrics instance registered against a fresh registry.
// Returns nil, nil when metrics are disabled so callers can treat a nil
// *Metrics as a no-op sink.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	cfg.setDefaults()

	reg := prometheus.NewRegistry()
	ns := cfg.Namespace

	m := &Metrics{
		registry: reg,
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "llm", Name: "calls_total",
			Help: "LLM gateway calls by provider and model.",
		}, []string{"provider", "model"}),
		llmCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "llm", Name: "call_duration_seconds",
			Help: "LLM gateway call latency.", Buckets: prometheus.DefBuckets,
		}, []string{"provider", "model"}),
		llmTokensInput: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "llm", Name: "tokens_input_total",
			Help: "Prompt tokens sent to providers.",
		}, []string{"provider", "model"}),
		llmTokensOutput: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "llm", Name: "tokens_output_total",
			Help: "Completion tokens received from providers.",
		}, []string{"provider", "model"}),
		llmErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "llm", Name: "errors_total",
			Help: "LLM gateway failures by error kind.",
		}, []string{"provider", "kind"}),

		memorySearches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "memory", Name: "searches_total",
			Help: "Layered memory search invocations by tier.",
		}, []string{"tier"}),
		memorySearchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "memory", Name: "search_duration_seconds",
			Help: "Layered memory search latency.", Buckets: prometheus.DefBuckets,
		}, []string{"tier"}),
		memoryItemsKept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "memory", Name: "context_items_kept_total",
			Help: "Memory items selected into a build_context budget by tier.",
		}, []string{"tier"}),

		generationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "generator", Name: "runs_total",
			Help: "Content generation runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "generator", Name: "run_duration_seconds",
			Help: "Content generation run latency.", Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
		generationWords: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "generator", Name: "run_word_count",
			Help:    "Word count of generated chapter drafts.",
			Buckets: []float64{250, 500, 1000, 2000, 4000, 8000},
		}, []string{"mode"}),

		consistencyChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "consistency", Name: "checks_total",
			Help: "Consistency checker runs by verdict.",
		}, []string{"verdict"}),
		consistencyScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "consistency", Name: "score",
			Help:    "Aggregate consistency score per check.",
			Buckets: []float64{0.1, 0.3, 0.5, 0.7, 0.9, 1.0},
		}, []string{"verdict"}),

		agentTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "agent", Name: "turns_total",
			Help: "Conversational agent turns by intent.",
		}, []string{"intent"}),
		agentTurnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "agent", Name: "turn_duration_seconds",
			Help: "Conversational agent turn latency.", Buckets: prometheus.DefBuckets,
		}, []string{"intent"}),
	}

	reg.MustRegister(
		m.llmCalls, m.llmCallDuration, m.llmTokensInput, m.llmTokensOutput, m.llmErrors,
		m.memorySearches, m.memorySearchDur, m.memoryItemsKept,
		m.generationRuns, m.generationDuration, m.generationWords,
		m.consistencyChecks, m.consistencyScore,
		m.agentTurns, m.agentTurnDuration,
	)

	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics not enabled"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordLLMCall(provider, model string, duration float64, tokensIn, tokensOut int) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(provider, model).Inc()
	m.llmCallDuration.WithLabelValues(provider, model).Observe(duration)
	m.llmTokensInput.WithLabelValues(provider, model).Add(float64(tokensIn))
	m.llmTokensOutput.WithLabelValues(provider, model).Add(float64(tokensOut))
}

func (m *Metrics) RecordLLMError(provider, kind string) {
	if m == nil {
		return
	}
	m.llmErrors.WithLabelValues(provider, kind).Inc()
}

func (m *Metrics) RecordMemorySearch(tier string, duration float64) {
	if m == nil {
		return
	}
	m.memorySearches.WithLabelValues(tier).Inc()
	m.memorySearchDur.WithLabelValues(tier).Observe(duration)
}

func (m *Metrics) RecordContextItemsKept(tier string, n int) {
	if m == nil {
		return
	}
	m.memoryItemsKept.WithLabelValues(tier).Add(float64(n))
}

func (m *Metrics) RecordGenerationRun(mode, outcome string, duration float64, words int) {
	if m == nil {
		return
	}
	m.generationRuns.WithLabelValues(mode, outcome).Inc()
	m.generationDuration.WithLabelValues(mode).Observe(duration)
	if words > 0 {
		m.generationWords.WithLabelValues(mode).Observe(float64(words))
	}
}

func (m *Metrics) RecordConsistencyCheck(verdict string, score float64) {
	if m == nil {
		return
	}
	m.consistencyChecks.WithLabelValues(verdict).Inc()
	m.consistencyScore.WithLabelValues(verdict).Observe(score)
}

func (m *Metrics) RecordAgentTurn(intent string, duration float64) {
	if m == nil {
		return
	}
	m.agentTurns.WithLabelValues(intent).Inc()
	m.agentTurnDuration.WithLabelValues(intent).Observe(duration)
}
