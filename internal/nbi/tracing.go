package nbi

import (
	"context"

	"github.com/signalsfoundry/cellular-simulator/internal/logging"
	"github.com/signalsfoundry/cellular-simulator/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const tracerName = "github.com/signalsfoundry/cellular-simulator/internal/nbi"

// Request keys copied onto the RPC span when present.
var spanIDKeys = []string{"tower_id", "device_id", "from_device_id", "to_tower_id"}

// TracingUnaryServerInterceptor annotates the RPC span with the method,
// request id and the tower and device ids of the request. It opens a server
// span itself only when no stats handler has done so.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	tracer := otel.Tracer(tracerName)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		service, method := observability.SplitMethod(info.FullMethod)
		span := trace.SpanFromContext(ctx)
		if !span.SpanContext().IsValid() {
			ctx, span = tracer.Start(ctx, info.FullMethod, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
		}

		span.SetAttributes(
			attribute.String("cellsim.service", service),
			attribute.String("cellsim.method", method),
		)
		if id := logging.RequestIDFromContext(ctx); id != "" {
			span.SetAttributes(attribute.String("cellsim.request_id", id))
		}
		if body, ok := req.(*structpb.Struct); ok {
			span.SetAttributes(requestAttributes(body)...)
		}

		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, status.Code(err).String())
		}
		return resp, err
	}
}

func requestAttributes(body *structpb.Struct) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for _, key := range spanIDKeys {
		if n, ok, err := optionalInt(body, key); ok && err == nil {
			attrs = append(attrs, attribute.Int("cellsim."+key, n))
		}
	}
	return attrs
}

// startSpan opens a child span for work inside a handler.
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}
