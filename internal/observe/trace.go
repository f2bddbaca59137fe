package observe

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/vocalis"

// StartSpan starts a span on the global tracer provider.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// StartTurn starts the root span of one conversational turn. Stage spans
// started from the returned context become its children.
func StartTurn(ctx context.Context, sessionID, turnID, mode string) (context.Context, trace.Span) {
	return StartSpan(ctx, "vocalis.turn", trace.WithAttributes(
		attribute.String("vocalis.session_id", sessionID),
		attribute.String("vocalis.turn_id", turnID),
		attribute.String("vocalis.mode", mode),
	))
}

// StartStage starts a span for one stage of a turn (transcribe, respond,
// speak).
func StartStage(ctx context.Context, stage, sessionID, turnID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "vocalis."+stage, trace.WithAttributes(
		attribute.String("vocalis.session_id", sessionID),
		attribute.String("vocalis.turn_id", turnID),
	))
}

// EndSpan records err, if any, on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID returns the trace ID of the span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// TraceLogger returns base with trace_id and span_id attached when ctx
// carries a valid span, and base itself otherwise.
func TraceLogger(ctx context.Context, base *slog.Logger) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return base
	}
	return base.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}

// Since returns the seconds elapsed since start, the unit of every latency
// histogram in [Metrics].
func Since(start time.Time) float64 {
	return time.Since(start).Seconds()
}
