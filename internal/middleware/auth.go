package middleware

import (
	"net/http"

	"github.com/keihi-platform/api/internal/session"
)

const (
	msgUnauthorized = "認証が必要です"
	msgForbidden    = "この操作を行う権限がありません"
)

// Resolver is satisfied by *session.Resolver.
type Resolver interface {
	Resolve(r *http.Request) *session.Principal
}

// RequireAuth resolves the request's principal and stores it in the
// context. Requests without a usable principal get 401.
func RequireAuth(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := resolver.Resolve(r)
			if principal == nil {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", msgUnauthorized, nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(roles ...session.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", msgUnauthorized, nil)
				return
			}
			if !session.HasRequiredRole(principal, roles...) {
				writeError(w, r, http.StatusForbidden, "forbidden", msgForbidden, map[string]any{"role": principal.Role})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOperation gates a route on an operation class.
func RequireOperation(op session.Operation) func(http.Handler) http.Handler {
	return RequireRole(session.RolesFor(op)...)
}
