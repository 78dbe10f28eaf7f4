// Package telemetry provides OpenTelemetry distributed tracing for the
// per-request trace spans carried through a Batch (spec.md §9 "opaque
// per-request trace span"), grounded on the teacher-pack's telemetry
// provider (Siddhant-K-code-distill/pkg/telemetry/telemetry.go)
// generalized from pipeline-stage spans to batcher/worker-stage spans.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/amdinfer/amdinfer"

// Config holds tracing configuration, layered the same way as the rest
// of the ambient stack (spec.md §6 AMDINFER_* env vars / viper config).
type Config struct {
	Enabled     bool
	Exporter    string // "otlp", "stdout", or "none"
	Endpoint    string
	SampleRate  float64
	ServiceName string
	Insecure    bool
}

// DefaultConfig returns tracing defaults (disabled).
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		Exporter:    "none",
		Endpoint:    "localhost:4317",
		SampleRate:  1.0,
		ServiceName: "amdinfer",
		Insecure:    true,
	}
}

// Provider wraps the OTEL TracerProvider plus the carrier propagator
// used to serialize a span into the map[string]string every Batch/
// Request.Trace field carries across stage boundaries.
type Provider struct {
	tp         *sdktrace.TracerProvider
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// Init builds a Provider from cfg. A disabled or "none" config returns
// a no-op provider so callers never need to branch on cfg.Enabled.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	propagator := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})

	if !cfg.Enabled || cfg.Exporter == "none" || cfg.Exporter == "" {
		return &Provider{
			tracer:     trace.NewNoopTracerProvider().Tracer(tracerName),
			propagator: propagator,
		}, nil
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.Exporter {
	case "otlp":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unsupported exporter: %q (supported: otlp, stdout, none)", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s exporter: %w", cfg.Exporter, err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
		resource.WithProcessRuntimeDescription(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate < 1.0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagator)

	return &Provider{tp: tp, tracer: tp.Tracer(tracerName), propagator: propagator}, nil
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// carrier adapts a plain map[string]string (the type Batch.Trace and
// Request.Trace use) to propagation.TextMapCarrier.
type carrier map[string]string

func (c carrier) Get(key string) string       { return c[key] }
func (c carrier) Set(key, value string)       { c[key] = value }
func (c carrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Continue derives a context carrying the span described by trace_ (if
// any), so that a later stage's span links as its child even though the
// two stages only share state through the serialized per-request
// carrier (spec.md §9).
func (p *Provider) Continue(ctx context.Context, trace_ map[string]string) context.Context {
	if len(trace_) == 0 {
		return ctx
	}
	return p.propagator.Extract(ctx, carrier(trace_))
}

// StartBatch starts a span for a batcher's batch-assembly stage,
// serializing the resulting span context into a fresh trace carrier
// map suitable for Batch.Trace/Request.Trace (spec.md §9).
func (p *Provider) StartBatch(ctx context.Context, endpoint string, batchSize int) (context.Context, trace.Span, map[string]string) {
	ctx, span := p.tracer.Start(ctx, "amdinfer.batch",
		trace.WithAttributes(
			attribute.String("amdinfer.endpoint", endpoint),
			attribute.Int("amdinfer.batch.size", batchSize),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	c := make(carrier)
	p.propagator.Inject(ctx, c)
	return ctx, span, map[string]string(c)
}

// StartWorkerStage resumes the span context carried by trace (as
// produced by StartBatch or a previous stage) and starts a child span
// for a worker's doRun call, returning an updated carrier so a
// downstream ensemble stage's span chains off this one in turn.
func (p *Provider) StartWorkerStage(ctx context.Context, name string, trace_ map[string]string) (context.Context, trace.Span, map[string]string) {
	ctx = p.Continue(ctx, trace_)
	ctx, span := p.tracer.Start(ctx, "amdinfer.worker."+name)
	c := make(carrier)
	p.propagator.Inject(ctx, c)
	return ctx, span, map[string]string(c)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetAttributes(attribute.Bool("error", true))
}
