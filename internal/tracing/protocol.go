package tracing

import (
	"context"
	"encoding/json"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	protocolTracerName = "bufo-acp"
	maxAttrValueLen    = 8192 // 8KB truncation for span event payloads
)

// payloadsEnabled reports whether raw protocol payloads should be attached to
// spans. Payloads can carry prompt text, so they stay off unless asked for.
var payloadsEnabled = os.Getenv("BUFO_DEBUG_AGENT_MESSAGES") == "true"

func protocolTracer() trace.Tracer {
	return Tracer(protocolTracerName)
}

// TraceControlCall starts a span for an outgoing agent-protocol request.
// Caller must call span.End() when the response is received.
func TraceControlCall(ctx context.Context, method, sessionID string) (context.Context, trace.Span) {
	ctx, span := protocolTracer().Start(ctx, "acp."+method,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("rpc.method", method),
		attribute.String("session_id", sessionID),
	)
	return ctx, span
}

// TraceControlResult records the outcome of a control call on its span.
func TraceControlResult(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// TracePrompt starts a span covering one full prompt turn.
// Caller must call span.End() when the turn finishes.
func TracePrompt(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	ctx, span := protocolTracer().Start(ctx, "acp.session/prompt",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(attribute.String("session_id", sessionID))
	return ctx, span
}

// TracePromptResult records the turn's stop reason, or its error, on the span.
func TracePromptResult(span trace.Span, stopReason string, err error) {
	if stopReason != "" {
		span.SetAttributes(attribute.String("stop_reason", stopReason))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// TraceSessionUpdate creates a single span for a received session update. The
// raw protocol JSON is attached as a span event when payload capture is on,
// allowing side-by-side inspection in Jaeger/Tempo.
func TraceSessionUpdate(ctx context.Context, updateKind, sessionID string, raw json.RawMessage) {
	_, span := protocolTracer().Start(ctx, "acp.update."+updateKind,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	span.SetAttributes(
		attribute.String("update_kind", updateKind),
		attribute.String("session_id", sessionID),
	)
	if payloadsEnabled && len(raw) > 0 {
		span.AddEvent("raw", trace.WithAttributes(
			attribute.String("data", truncate(string(raw), maxAttrValueLen)),
		))
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "...(truncated)"
}
