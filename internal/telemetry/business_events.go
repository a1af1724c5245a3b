package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BusinessEvents provides spans for feed operations above the HTTP/DB level,
// such as an optimistic reaction or a realtime merge
type BusinessEvents struct {
	tracer trace.Tracer
}

// NewBusinessEvents creates a new business events tracer
func NewBusinessEvents() *BusinessEvents {
	return &BusinessEvents{
		tracer: otel.Tracer("sparkfeed/business-events"),
	}
}

var defaultEvents = NewBusinessEvents()

// GetBusinessEvents returns the shared tracer. It resolves the global tracer
// provider lazily, so InitTracer may run after package init.
func GetBusinessEvents() *BusinessEvents {
	return defaultEvents
}

// ============================================================================
// FEED CACHE STORE
// ============================================================================

// TraceStoreAction opens a span covering one optimistic action from apply to settle
func (be *BusinessEvents) TraceStoreAction(ctx context.Context, action, targetID string) (context.Context, trace.Span) {
	ctx, span := be.tracer.Start(ctx, "feed.store."+action,
		trace.WithAttributes(attribute.String("feed.action", action)),
	)
	if targetID != "" {
		span.SetAttributes(attribute.String("feed.target_id", targetID))
	}
	return ctx, span
}

// TracePageLoad opens a span for a feed page fetch
func (be *BusinessEvents) TracePageLoad(ctx context.Context, reset bool, limit int) (context.Context, trace.Span) {
	return be.tracer.Start(ctx, "feed.store.load_page",
		trace.WithAttributes(
			attribute.Bool("feed.reset", reset),
			attribute.Int("feed.limit", limit),
		),
	)
}

// EndStoreAction records the outcome and closes the span
func EndStoreAction(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String("feed.outcome", outcome))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	span.End()
}

// ============================================================================
// REALTIME
// ============================================================================

// TraceChangeEvent opens a span for merging one change event
func (be *BusinessEvents) TraceChangeEvent(ctx context.Context, collection, op, recordID string) (context.Context, trace.Span) {
	return be.tracer.Start(ctx, "realtime.apply",
		trace.WithAttributes(
			attribute.String("realtime.collection", collection),
			attribute.String("realtime.op", op),
			attribute.String("realtime.record_id", recordID),
		),
	)
}

// TracePublish opens a span for fanning out a change event on the server
func (be *BusinessEvents) TracePublish(ctx context.Context, collection, op string) (context.Context, trace.Span) {
	return be.tracer.Start(ctx, "realtime.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("realtime.collection", collection),
			attribute.String("realtime.op", op),
		),
	)
}

// ============================================================================
// EXTERNAL SERVICES
// ============================================================================

// TraceExternalAPI creates a span for calls to blob storage or other services
func (be *BusinessEvents) TraceExternalAPI(ctx context.Context, service string, operation string) (context.Context, trace.Span) {
	return be.tracer.Start(ctx, service+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("external.service", service),
			attribute.String("external.operation", operation),
		),
	)
}

// RecordExternalAPIError marks a span failed
func RecordExternalAPIError(span trace.Span, err error, retryable bool) {
	if err == nil {
		return
	}
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
	span.SetAttributes(attribute.Bool("error.retryable", retryable))
}
