package peerlink

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Zereker/peerlink"

func startQuerySpan(ctx context.Context, c *Conn, payload string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "peerlink.Query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("peerlink.payload", payload),
			attribute.String("peerlink.conn", c.ID()),
		),
	)
}

func startAnswerSpan(ctx context.Context, c *Conn, payload string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "peerlink.Answer",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("peerlink.payload", payload),
			attribute.String("peerlink.conn", c.ID()),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
