// Package tracing provides OpenTelemetry tracing integration for the chflow action layer.
//
// Every flow gets one span named after its category, every mutation one named
// after its kind, and every upstream call a client span beneath them. Flow and
// mutation spans carry the fence key and request id so a late, discarded DONE
// can be matched to the INIT that started it.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on chflow spans.
const (
	CategoryKey  = attribute.Key("chflow.category")
	FenceKeyKey  = attribute.Key("chflow.fence_key")
	RequestIDKey = attribute.Key("chflow.request_id")
	MutationKey  = attribute.Key("chflow.mutation")
	UpstreamKey  = attribute.Key("chflow.upstream")
	PathKey      = attribute.Key("chflow.path")
)

// Tracer defines the interface for distributed tracing.
type Tracer interface {
	// StartFlow starts a span covering the DONE half of a fetch flow.
	StartFlow(ctx context.Context, category, fenceKey, requestID string) (context.Context, Span)

	// StartMutation starts a span covering a register, unregister or submit.
	StartMutation(ctx context.Context, kind, fenceKey, requestID string) (context.Context, Span)

	// StartFetch starts a child span for a single call to upstream.
	StartFetch(ctx context.Context, upstream, path string) (context.Context, Span)
}

// Span represents an active tracing span.
type Span interface {
	End()

	// SetError marks the span failed. A nil err is ignored.
	SetError(err error)

	SetAttributes(attrs ...attribute.KeyValue)
}

// RequestAttributes identifies one INIT/DONE pair.
func RequestAttributes(fenceKey, requestID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		FenceKeyKey.String(fenceKey),
		RequestIDKey.String(requestID),
	}
}

// OTelTracer implements Tracer using OpenTelemetry.
type OTelTracer struct {
	tracer trace.Tracer
}

var _ Tracer = (*OTelTracer)(nil)

// Config holds configuration for OTelTracer.
type Config struct {
	// ServiceName names the instrumentation scope.
	ServiceName string
	// TracerProvider is the OpenTelemetry tracer provider. If nil, the global provider is used.
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{ServiceName: "chflow"}
}

// NewOTelTracer creates a new OTelTracer with the given configuration.
func NewOTelTracer(cfg Config) *OTelTracer {
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &OTelTracer{tracer: tp.Tracer(cfg.ServiceName)}
}

func (t *OTelTracer) StartFlow(ctx context.Context, category, fenceKey, requestID string) (context.Context, Span) {
	attrs := append(RequestAttributes(fenceKey, requestID), CategoryKey.String(category))
	return t.start(ctx, "resolve "+category, trace.SpanKindInternal, attrs)
}

func (t *OTelTracer) StartMutation(ctx context.Context, kind, fenceKey, requestID string) (context.Context, Span) {
	attrs := append(RequestAttributes(fenceKey, requestID), MutationKey.String(kind))
	return t.start(ctx, kind, trace.SpanKindInternal, attrs)
}

func (t *OTelTracer) StartFetch(ctx context.Context, upstream, path string) (context.Context, Span) {
	attrs := []attribute.KeyValue{UpstreamKey.String(upstream), PathKey.String(path)}
	return t.start(ctx, "fetch "+upstream, trace.SpanKindClient, attrs)
}

func (t *OTelTracer) start(ctx context.Context, name string, kind trace.SpanKind, attrs []attribute.KeyValue) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
	return ctx, otelSpan{span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End() { s.span.End() }

func (s otelSpan) SetError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s otelSpan) SetAttributes(attrs ...attribute.KeyValue) { s.span.SetAttributes(attrs...) }

// NoopTracer traces nothing.
type NoopTracer struct{}

var _ Tracer = NoopTracer{}

func (NoopTracer) StartFlow(ctx context.Context, _, _, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (NoopTracer) StartMutation(ctx context.Context, _, _, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (NoopTracer) StartFetch(ctx context.Context, _, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End()                                {}
func (noopSpan) SetError(error)                      {}
func (noopSpan) SetAttributes(...attribute.KeyValue) {}
