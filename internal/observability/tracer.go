// Package observability installs the global OpenTelemetry tracer provider
// and registers Prometheus metrics. No component starts a span; of the
// metrics, only the LLM call/error and agent-turn series are recorded.
package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span names for component operations; no code in the tree starts them.
const (
	SpanLLMGenerate       = "llm.generate"
	SpanLLMGenerateStream = "llm.generate_stream"
	SpanMemorySearch      = "memory.search"
	SpanMemoryBuildCtx    = "memory.build_context"
	SpanGeneratorRun      = "generator.run"
	SpanConsistencyCheck  = "consistency.check"
	SpanAgentTurn         = "agent.turn"
)

// TracerConfig controls span export.
type TracerConfig struct {
	Enabled      bool    `yaml:"enabled"`
	LogSpans     bool    `yaml:"log_spans"`
	SamplingRate float64 `yaml:"sampling_rate"`
	ServiceName  string  `yaml:"service_name"`
}

// InitGlobalTracer installs the process-wide TracerProvider. With tracing
// disabled it installs a noop provider so every call site can unconditionally
// start spans without a nil check.
func InitGlobalTracer(ctx context.Context, cfg TracerConfig) (trace.TracerProvider, error) {
	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	}
	if cfg.LogSpans {
		opts = append(opts, sdktrace.WithBatcher(&slogSpanExporter{}))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// GetTracer returns a named tracer from the global provider.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// slogSpanExporter emits finished spans as structured log lines. It exists so
// a developer running without a collector still sees span timing and
// attributes, mirroring the teacher's in-memory debug exporter but routed
// through the engine's own logging pipeline instead of a private buffer.
type slogSpanExporter struct{}

func (e *slogSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		attrs := make([]any, 0, len(s.Attributes())*2+2)
		attrs = append(attrs, "duration_ms", float64(s.EndTime().Sub(s.StartTime()).Microseconds())/1000.0)
		for _, kv := range s.Attributes() {
			attrs = append(attrs, string(kv.Key), kv.Value.Emit())
		}
		slog.Debug("span: "+s.Name(), attrs...)
	}
	return nil
}

func (e *slogSpanExporter) Shutdown(ctx context.Context) error { return nil }

// StringAttr is a convenience constructor used by callers composing span
// attributes without importing attribute directly.
func StringAttr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}
