package observability

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-live-hints-service/internal/observability/metrics"
)

// recoverPanic turns a handler panic into codes.Internal.
func recoverPanic(m *metrics.Metrics, method string, err *error) {
	if r := recover(); r != nil {
		m.RecordPanic()
		log.Error().
			Str("method", method).
			Interface("panic", r).
			Bytes("stack", debug.Stack()).
			Msg("gRPC handler panicked")
		*err = status.Error(codes.Internal, "internal error")
	}
}

// UnaryServerInterceptor records latency and status code of unary calls
// and recovers panicking handlers.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		start := time.Now()
		defer func() {
			st, _ := status.FromError(err)
			m.RecordRPC(info.FullMethod, st.Code().String(), time.Since(start).Seconds())

			ev := log.Debug()
			if err != nil {
				ev = log.Warn().Str("error", st.Message())
			}
			ev.Str("method", info.FullMethod).
				Str("code", st.Code().String()).
				Dur("duration", time.Since(start)).
				Msg("gRPC unary call")
		}()
		defer recoverPanic(m, info.FullMethod, &err)

		return handler(ctx, req)
	}
}

// StreamServerInterceptor tracks active streams and their outcome.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		start := time.Now()
		m.RecordStreamStart()
		defer func() {
			duration := time.Since(start)
			m.RecordStreamEnd(err == nil, duration.Seconds())

			st, _ := status.FromError(err)
			log.Info().
				Str("method", info.FullMethod).
				Str("code", st.Code().String()).
				Dur("duration", duration).
				Msg("gRPC stream finished")
		}()
		defer recoverPanic(m, info.FullMethod, &err)

		return handler(srv, ss)
	}
}
