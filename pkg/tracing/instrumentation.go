package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HTTP span attributes
const (
	HTTPMethodKey = attribute.Key("http.method")
	HTTPURLKey    = attribute.Key("http.url")
	HTTPStatusKey = attribute.Key("http.status_code")
)

// Dispatch span attributes
const (
	RequestIDKey     = attribute.Key("dispatch.request_id")
	VehicleIDKey     = attribute.Key("dispatch.vehicle_id")
	AgentKey         = attribute.Key("dispatch.agent")
	FareAmountKey    = attribute.Key("dispatch.fare")
	DistanceMilesKey = attribute.Key("dispatch.distance_miles")
)

// TraceHTTPClient wraps an outbound HTTP call with a client span. The span
// context is handed to fn so it can be injected into the request.
func TraceHTTPClient(ctx context.Context, tracerName, method, url string, fn func(context.Context) (int, error)) (int, error) {
	ctx, span := StartSpan(ctx, tracerName, fmt.Sprintf("HTTP %s", method),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	span.SetAttributes(
		HTTPMethodKey.String(method),
		HTTPURLKey.String(url),
	)

	statusCode, err := fn(ctx)

	span.SetAttributes(HTTPStatusKey.Int(statusCode))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if statusCode >= 400 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", statusCode))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return statusCode, err
}

// TraceOperation wraps a unit of work with an internal span
func TraceOperation(ctx context.Context, tracerName, operation string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	ctx, span := StartSpan(ctx, tracerName, operation,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return err
}
