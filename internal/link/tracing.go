package link

import (
	"context"

	"github.com/danz-app/danz/internal/graphql"
	apperrors "github.com/danz-app/danz/internal/platform/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/danz-app/danz/internal/link"

// Tracer opens one client span per operation.
type Tracer struct {
	tracer trace.Tracer
}

// Tracing builds the tracing link. A nil provider uses the global one.
func Tracing(provider trace.TracerProvider) *Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracer{tracer: provider.Tracer(tracerName)}
}

// Execute wraps next in a span.
func (t *Tracer) Execute(ctx context.Context, req graphql.Request, next Next) (*graphql.Response, error) {
	ctx, span := t.tracer.Start(ctx, "graphql "+req.Operation.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("graphql.operation.name", req.Operation.Name),
			attribute.String("graphql.operation.type", req.Operation.Kind.String()),
		),
	)
	defer span.End()

	resp, err := next(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.KindOf(err)))
	}
	return resp, err
}

var _ Link = (*Tracer)(nil)
