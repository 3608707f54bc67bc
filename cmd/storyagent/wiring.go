package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yantianqi1/write-agent/internal/agent"
	"github.com/yantianqi1/write-agent/internal/config"
	"github.com/yantianqi1/write-agent/internal/consistency"
	"github.com/yantianqi1/write-agent/internal/coordination"
	"github.com/yantianqi1/write-agent/internal/generator"
	"github.com/yantianqi1/write-agent/internal/httpclient"
	"github.com/yantianqi1/write-agent/internal/intent"
	"github.com/yantianqi1/write-agent/internal/llm"
	"github.com/yantianqi1/write-agent/internal/llm/anthropic"
	"github.com/yantianqi1/write-agent/internal/llm/gemini"
	"github.com/yantianqi1/write-agent/internal/llm/mock"
	"github.com/yantianqi1/write-agent/internal/llm/ollama"
	"github.com/yantianqi1/write-agent/internal/llm/openai"
	"github.com/yantianqi1/write-agent/internal/memory"
	"github.com/yantianqi1/write-agent/internal/observability"
	"github.com/yantianqi1/write-agent/internal/repository"
	"github.com/yantianqi1/write-agent/internal/session"
	"github.com/yantianqi1/write-agent/internal/settings"
	"github.com/yantianqi1/write-agent/internal/vector"
)

// app bundles every wired collaborator a cobra command needs, mirroring
// hector's own single-struct runtime wiring in cmd/hector/executor.go.
type app struct {
	agent   *agent.Agent
	metrics *observability.Metrics
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	tp, err := observability.InitGlobalTracer(ctx, observability.TracerConfig{
		Enabled:      cfg.Observability.TracingEnabled,
		LogSpans:     cfg.Observability.LogSpans,
		SamplingRate: cfg.Observability.SamplingRate,
		ServiceName:  "storyagent",
	})
	if err != nil {
		return nil, err
	}
	_ = tp

	metrics, err := observability.NewMetrics(observability.MetricsConfig{
		Enabled:   cfg.Observability.MetricsEnabled,
		Namespace: cfg.Observability.MetricsNS,
	})
	if err != nil {
		return nil, err
	}

	httpClient := httpclient.New(
		httpclient.WithMaxRetries(cfg.RetryMaxAttempts),
		httpclient.WithBaseDelay(time.Second),
		httpclient.WithMaxDelay(30*time.Second),
	)

	provider, err := buildProvider(cfg, httpClient)
	if err != nil {
		return nil, err
	}

	registry := llm.NewRegistry()
	if err := registry.RegisterProvider(provider.Name(), provider); err != nil {
		return nil, err
	}
	activeProvider, err := registry.GetProvider(provider.Name())
	if err != nil {
		return nil, err
	}

	var metricsSink llm.MetricsSink
	if metrics != nil {
		metricsSink = metrics
	}
	gateway := llm.NewGateway(activeProvider, llm.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}, metricsSink)

	vectorStore, err := vector.New(vector.Config{
		Backend: vectorBackend(cfg.Vector.Backend),
		Memory:  vector.MemoryConfig{PersistPath: cfg.Vector.PersistPath},
		Qdrant: vector.QdrantConfig{
			Host:   cfg.Vector.QdrantHost,
			Port:   cfg.Vector.QdrantPort,
			APIKey: cfg.Vector.QdrantAPIKey,
			UseTLS: cfg.Vector.QdrantUseTLS,
		},
	})
	if err != nil {
		return nil, err
	}

	locker := buildLocker(cfg.Coordination)

	repos := repository.New()

	// No Embedder is wired by default: component B degrades to lexical-only
	// search (memory.New's documented nil-Embedder mode) until a
	// concrete embedding client is chosen — none of the retrieved example
	// repos ship one distinct from the chat completion API itself, and
	// spec.md does not mandate a specific embedding provider.
	memSvc := memory.New(repos.Memory, vectorStore, nil)

	checker := consistency.NewChecker(gateway)
	generatorSvc := generator.NewService(gateway, memSvc, checker, repos.Chapter, generator.Config{
		ContextWindowTokens: cfg.ContextWindow,
		RetrievalK:          cfg.RetrievalK,
		DefaultLocale:       cfg.DefaultLocale,
	})

	summarizer := &turnSummarizer{gen: gateway}
	sessSvc := session.NewService(repos.Session, cfg.SessionTurnCap, summarizer, &memoryContextSink{mem: memSvc}, locker)

	classifier := intent.New(gateway)
	extractor := settings.NewExtractor()
	completer := settings.NewCompleter(gateway)

	genCoord := coordination.NewGenerationCoordinator(coordination.Coalesce, locker)
	limiter := coordination.NewProviderLimiter(cfg.PerProviderConcurrency, 0)

	var metricsForAgent agent.MetricsSink
	if metrics != nil {
		metricsForAgent = metrics
	}

	ag := agent.New(
		sessSvc, classifier, extractor, completer, checker,
		generatorSvc, memSvc, gateway, repos.Chapter,
		genCoord, limiter, repos, metricsForAgent,
		agent.Config{
			CompletionThreshold:  cfg.CompletionThreshold,
			ConsistencyThreshold: cfg.ConsistencyThreshold,
			DefaultLocale:        cfg.DefaultLocale,
		},
	)

	return &app{agent: ag, metrics: metrics}, nil
}

// vectorBackend maps config's "chromem"/"qdrant" yaml values onto the
// vector package's own Backend enum, which names the chromem-go-backed
// store "memory" after its in-process representation rather than its
// client library.
func vectorBackend(cfgBackend string) vector.Backend {
	if cfgBackend == "qdrant" {
		return vector.BackendQdrant
	}
	return vector.BackendMemory
}

// buildLocker selects the coordination.Locker backend spec.md §5's
// per-session and per-(project_id, chapter_number) mutexes run on, per
// cfg.Coordination.Backend: "inproc" (default) keeps the in-process
// KeyedLock; "redis" dials the configured Redis instance so those same
// mutexes hold across multiple engine processes.
func buildLocker(cfg config.CoordinationConfig) coordination.Locker {
	if cfg.Backend != "redis" {
		return coordination.NewKeyedLock()
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	return coordination.NewRedisLock(client)
}

func buildProvider(cfg *config.Config, httpClient *httpclient.Client) (llm.Provider, error) {
	pc := cfg.Models[cfg.Provider]
	model := cfg.Model

	switch cfg.Provider {
	case "openai", "azure-openai":
		return openai.New(openai.Config{
			Model:           model,
			APIKey:          pc.APIKey,
			BaseURL:         pc.BaseURL,
			AzureDeployment: pc.AzureDeployment,
			AzureAPIVersion: pc.AzureAPIVersion,
		}, httpClient), nil
	case "anthropic":
		return anthropic.New(anthropic.Config{Model: model, APIKey: pc.APIKey, BaseURL: pc.BaseURL}, httpClient), nil
	case "gemini":
		return gemini.New(gemini.Config{Model: model, APIKey: pc.APIKey, BaseURL: pc.BaseURL}, httpClient), nil
	case "ollama":
		return ollama.New(ollama.Config{Model: model, BaseURL: pc.BaseURL}, httpClient), nil
	case "mock":
		return mock.New(model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// turnSummarizer adapts the gateway into session.Summarizer: a single LLM
// call condensing evicted turns into one CONTEXT-sized line (spec.md §3's
// "older turns are summarized into a single CONTEXT item on eviction").
type turnSummarizer struct {
	gen *llm.Gateway
}

func (s *turnSummarizer) Summarize(ctx context.Context, evicted []session.Turn) (string, error) {
	if len(evicted) == 0 {
		return "", nil
	}
	var sb []llm.Message
	sb = append(sb, llm.Message{Role: llm.RoleSystem, Content: "Summarize this exchange in one short sentence for long-term memory."})
	for _, t := range evicted {
		role := llm.RoleUser
		if t.Role == session.RoleAssistant {
			role = llm.RoleAssistant
		}
		sb = append(sb, llm.Message{Role: role, Content: t.Text})
	}
	resp, err := s.gen.Generate(ctx, llm.Request{Messages: sb, Temperature: 0.2, MaxTokens: 80})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// memoryContextSink adapts memory.Service.AppendContext (which returns an
// Item) to session.ContextSink's error-only contract.
type memoryContextSink struct {
	mem *memory.Service
}

func (s *memoryContextSink) AppendContext(ctx context.Context, projectID, content string, order int) error {
	_, err := s.mem.AppendContext(ctx, projectID, content, order)
	return err
}
