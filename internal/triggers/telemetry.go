package triggers

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer covers the three trigger handlers. It resolves through the global
// provider, so spans are no-ops until a binary registers one at startup.
var tracer trace.Tracer = otel.Tracer("github.com/louisbranch/identitymesh/internal/triggers")

// startSpan opens one span per trigger invocation.
func startSpan(ctx context.Context, name, triggerSource string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("cognito.trigger_source", triggerSource),
	))
}

// endSpan closes the invocation span, recording the handler's outcome.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
