package interceptor

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// LoggingUnary logs unary RPC calls with method, duration, and status code.
// Failed calls are logged at warn level with the error message.
func LoggingUnary(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(ctx, logger, "unary", info.FullMethod, start, err)
		return resp, err
	}
}

// LoggingStream logs stream RPC calls.
func LoggingStream(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logCall(ss.Context(), logger, "stream", info.FullMethod, start, err)
		return err
	}
}

func logCall(ctx context.Context, logger *slog.Logger, kind, method string, start time.Time, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	st := status.Convert(err)
	attrs := []any{
		"method", method,
		"code", st.Code().String(),
		"duration", time.Since(start),
	}
	if p, ok := peer.FromContext(ctx); ok {
		attrs = append(attrs, "peer", p.Addr.String())
	}
	if st.Code() == codes.OK {
		logger.InfoContext(ctx, kind, attrs...)
		return
	}
	logger.WarnContext(ctx, kind, append(attrs, "error", st.Message())...)
}
