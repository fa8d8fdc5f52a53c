package rpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"connectrpc.com/connect"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// identityKey is the context key for the stamped client identity.
const identityKey contextKey = "identity"

// IdentityFromContext extracts the stamped identity from the context.
// Returns empty string if the request carried no valid bearer token.
func IdentityFromContext(ctx context.Context) string {
	id, _ := ctx.Value(identityKey).(string)
	return id
}

// StampIdentity returns an interceptor that validates a bearer token when
// present and places the identity it carries on the request context. Requests
// without a token are still served: there is no permission enforcement beyond
// identity stamping.
func StampIdentity(verify func(token string) (string, error)) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			authHeader := req.Header().Get("Authorization")
			if authHeader != "" {
				parts := strings.Split(authHeader, " ")
				if len(parts) == 2 && parts[0] == "Bearer" {
					if id, err := verify(parts[1]); err == nil {
						ctx = context.WithValue(ctx, identityKey, id)
					}
				}
			}

			return next(ctx, req)
		}
	}
}

// LoggingInterceptor returns a Connect interceptor that logs every RPC call.
// It logs the procedure name, stamped identity, duration, and any error
// codes/messages.
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			procedure := req.Spec().Procedure
			identity := IdentityFromContext(ctx)

			resp, err := next(ctx, req)

			duration := time.Since(start).Milliseconds()
			if err != nil {
				var connectErr *connect.Error
				if errors.As(err, &connectErr) {
					slog.Warn("RPC error",
						"procedure", procedure,
						"code", connectErr.Code(),
						"error", connectErr.Message(),
						"identity", identity,
						"duration_ms", duration,
					)
				} else {
					slog.Error("RPC error",
						"procedure", procedure,
						"error", err,
						"identity", identity,
						"duration_ms", duration,
					)
				}
			} else {
				slog.Info("RPC ok",
					"procedure", procedure,
					"identity", identity,
					"duration_ms", duration,
				)
			}

			return resp, err
		}
	}
}
