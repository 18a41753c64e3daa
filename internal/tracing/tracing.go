// Package tracing wires the gateway's tool-call spans to an OTLP
// HTTP exporter when configured, falling back to a no-op tracer otherwise.
// New package: the teacher does not carry OpenTelemetry, but
// otlptracehttp/otel/sdk are present in the wider example pack's go.sum
// surface (SPEC_FULL.md Domain Stack) and the tool runtime (internal/
// tools/runtime.go) already expects a trace.Tracer, so this gives that
// dependency a concrete home instead of leaving it unwired.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config controls whether and where spans are exported.
type Config struct {
	Enabled        bool
	OTLPEndpoint   string
	ServiceName    string
	ShutdownTimeout time.Duration
}

// Provider wraps the configured sdktrace.TracerProvider (or a no-op
// shell when tracing is disabled) so callers have one place to obtain a
// trace.Tracer and a single Shutdown to flush on gateway stop.
type Provider struct {
	tp       *sdktrace.TracerProvider // nil when tracing is disabled
	tracer   trace.Tracer
}

// New builds a Provider from cfg. A disabled cfg, or one with no
// endpoint, yields a Provider backed by otel's global no-op tracer and a
// nil error. If the OTLP exporter cannot be built, New returns a usable
// no-op Provider together with that error.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled || cfg.OTLPEndpoint == "" {
		return &Provider{tracer: otel.Tracer("drost")}, nil
	}

	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
	if err != nil {
		return &Provider{tracer: otel.Tracer("drost")}, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "drost-gateway"
	}
	res, _ := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", serviceName)))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	return &Provider{tp: tp, tracer: tp.Tracer("drost")}, nil
}

// Tracer returns the tracer every tool-call span is created from.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Shutdown flushes any buffered spans. Safe to call on a disabled
// Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// NoopTracer returns a tracer that records nothing, for tests and for
// tool-runtime construction before tracing is configured.
func NoopTracer() trace.Tracer {
	return otel.Tracer("drost-noop")
}
