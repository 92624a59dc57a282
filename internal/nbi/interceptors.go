package nbi

import (
	"context"
	"time"

	"github.com/signalsfoundry/cellular-simulator/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestIDHeader carries a caller-chosen request id in both directions.
const RequestIDHeader = "x-request-id"

// RequestIDUnaryServerInterceptor adopts the caller's x-request-id (or
// mints one), echoes it in the response header and stores a logger tagged
// with the id and method on the context. Each call is logged once on
// completion: Warn for failures, Debug otherwise.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	base = logging.OrNoop(base)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(RequestIDHeader); len(vals) > 0 && vals[0] != "" {
				ctx = logging.ContextWithRequestID(ctx, vals[0])
			}
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(logging.String("method", info.FullMethod)))
		ctx = logging.ContextWithLogger(ctx, reqLog)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, logging.RequestIDFromContext(ctx)))

		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []logging.Field{
			logging.String("code", status.Code(err).String()),
			logging.String("duration", time.Since(start).String()),
		}
		if err != nil {
			reqLog.Warn(ctx, "rpc failed", append(fields, logging.Err(err))...)
		} else {
			reqLog.Debug(ctx, "rpc", fields...)
		}
		return resp, err
	}
}

// requestLogger returns the logger the interceptor stored on ctx, or a
// request-scoped child of fallback when the handler is called directly.
func requestLogger(ctx context.Context, fallback logging.Logger) (context.Context, logging.Logger) {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return ctx, l
	}
	return logging.WithRequestLogger(ctx, fallback)
}
