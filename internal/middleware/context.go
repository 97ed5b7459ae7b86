package middleware

import (
	"context"

	"github.com/keihi-platform/api/internal/session"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	principalKey contextKey = "principal"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok {
		return ""
	}
	return v
}

func WithPrincipal(ctx context.Context, p *session.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal stored by RequireAuth.
func PrincipalFromContext(ctx context.Context) (*session.Principal, bool) {
	v, ok := ctx.Value(principalKey).(*session.Principal)
	return v, ok && v != nil
}
