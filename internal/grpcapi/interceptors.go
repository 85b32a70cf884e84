package grpcapi

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Leganyst/dispatch-core/internal/logger"
	"github.com/Leganyst/dispatch-core/internal/service"
)

// Authenticator turns a bearer token into a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*service.Principal, error)
}

type principalKey struct{}

// PrincipalFrom returns the caller set by the auth interceptor.
func PrincipalFrom(ctx context.Context) (*service.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*service.Principal)
	return p, ok
}

// publicPrefixes are reachable without a token.
var publicPrefixes = []string{
	"/grpc.health.v1.Health/",
	"/grpc.reflection.",
}

func LoggingInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		args := []any{"method", info.FullMethod, "code", code.String(), "latency", time.Since(start).String()}
		if p, ok := PrincipalFrom(ctx); ok {
			args = append(args, "user_id", p.UserID)
		}
		switch code {
		case codes.OK, codes.NotFound, codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
			log.InfoContext(ctx, "grpc request", args...)
		default:
			log.ErrorContext(ctx, "grpc request", append(args, "err", err)...)
		}
		return resp, err
	}
}

func AuthInterceptor(auth Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		for _, prefix := range publicPrefixes {
			if strings.HasPrefix(info.FullMethod, prefix) {
				return handler(ctx, req)
			}
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization")
		}
		token, ok := strings.CutPrefix(values[0], "Bearer ")
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "authorization must be a bearer token")
		}
		p, err := auth.Authenticate(ctx, strings.TrimSpace(token))
		if err != nil {
			return nil, toStatus(err)
		}
		return handler(context.WithValue(ctx, principalKey{}, p), req)
	}
}
