package grpc

import (
	"context"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// loggingInterceptor logs every unary call and turns handler panics into
// codes.Internal.
func (s *GRPCServer) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			s.logger.Error(ctx, "panic recovered", "method", info.FullMethod, "error", p, "stack", string(debug.Stack()))
			resp, err = nil, status.Error(codes.Internal, "internal error")
		}

		code := status.Code(err)
		args := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start)}
		if code == codes.Internal || code == codes.Unknown {
			s.logger.Error(ctx, "grpc.request", args...)
			return
		}
		s.logger.Debug(ctx, "grpc.request", args...)
	}()

	return handler(ctx, req)
}
