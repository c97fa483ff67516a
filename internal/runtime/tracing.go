package runtime

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/drblury/omsn"

// Span names for forwarded datagrams.
const (
	SpanUplinkPublish = "omsn.uplink.publish"
	SpanDownlinkSend  = "omsn.downlink.send"
)

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

func startForwardSpan(ctx context.Context, name string, kind trace.SpanKind, key string, size int) (context.Context, trace.Span) {
	return tracer().Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(
			attribute.String("omsn.key", key),
			attribute.Int("omsn.datagram.bytes", size),
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
