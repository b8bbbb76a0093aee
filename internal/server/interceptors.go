package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// authExemptMethods never require a token.
var authExemptMethods = map[string]bool{
	"/grpc.health.v1.Health/Check": true,
	"/grpc.health.v1.Health/Watch": true,
}

// LoggingInterceptor logs the method, duration and error of every unary call.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		attrs := []any{"method", info.FullMethod, "duration", time.Since(start)}
		switch code := status.Code(err); {
		case err == nil:
			logger.Debug("rpc completed", attrs...)
		case code == codes.Internal || code == codes.Unknown:
			logger.Error("rpc failed", append(attrs, "error", err)...)
		default:
			// Rejections are routine on a scanning floor.
			logger.Info("rpc rejected", append(attrs, "code", code.String(), "error", err)...)
		}
		return resp, err
	}
}

// RecoveryInterceptor turns a handler panic into codes.Internal.
func RecoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered in gRPC handler",
					"method", info.FullMethod,
					"panic", fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()),
				)
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// checkBearer validates an Authorization header value against token and
// returns a non-empty problem description on failure.
func checkBearer(header, token string) string {
	if header == "" {
		return "missing authorization header"
	}
	provided, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "invalid authorization scheme"
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
		return "invalid token"
	}
	return ""
}

// AuthInterceptor requires "authorization: Bearer <token>" metadata on every
// call except health checks. An empty token disables the check.
func AuthInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if token == "" || authExemptMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		var header string
		if vals := md.Get("authorization"); len(vals) > 0 {
			header = vals[0]
		}
		if problem := checkBearer(header, token); problem != "" {
			return nil, status.Error(codes.Unauthenticated, problem)
		}
		return handler(ctx, req)
	}
}

// AuthMiddleware is the HTTP counterpart of AuthInterceptor. GET /v1/health
// is always exempt.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/v1/health" {
			next.ServeHTTP(w, r)
			return
		}
		if problem := checkBearer(r.Header.Get("Authorization"), token); problem != "" {
			writeError(w, http.StatusUnauthorized, problem)
			return
		}
		next.ServeHTTP(w, r)
	})
}
