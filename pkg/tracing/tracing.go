package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	headerTraceParent = "traceparent"
	headerTraceState  = "tracestate"
)

var tracer trace.Tracer

// SetTracer sets the tracer used by StartSpan. Until it is called spans are
// no-ops.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan starts a span named after the calling method, e.g.
// "indexer.Indexer.Update".
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError marks span failed and returns err unchanged
func RecordError(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// ContextWithRemoteParent continues a trace propagated through message
// headers. Empty values leave ctx unchanged.
func ContextWithRemoteParent(ctx context.Context, traceParent, traceState string) context.Context {
	if traceParent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{headerTraceParent: traceParent}
	if traceState != "" {
		carrier[headerTraceState] = traceState
	}
	return propagation.TraceContext{}.Extract(ctx, carrier)
}

// Propagation returns the traceparent and tracestate of the active span, or
// empty strings when nothing is being traced.
func Propagation(ctx context.Context) (traceParent, traceState string) {
	if !active(ctx) {
		return "", ""
	}
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	return carrier.Get(headerTraceParent), carrier.Get(headerTraceState)
}

// GetTraceID returns the active trace id, or "" when nothing is being traced
func GetTraceID(ctx context.Context) string {
	if !active(ctx) {
		return ""
	}
	return trace.SpanContextFromContext(ctx).TraceID().String()
}

func active(ctx context.Context) bool {
	return tracer != nil && trace.SpanContextFromContext(ctx).IsValid()
}
