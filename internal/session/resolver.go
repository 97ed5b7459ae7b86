package session

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/keihi-platform/api/internal/identity"
)

const DefaultCookieName = "token"

const (
	claimRole         = "role"
	claimCompanyID    = "companyId"
	claimDepartmentID = "departmentId"
)

// Verifier checks an ID token. identity.Provider satisfies it.
type Verifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*identity.Token, error)
}

type Resolver struct {
	verifier   Verifier
	cookieName string
	logger     *slog.Logger
}

func NewResolver(verifier Verifier, cookieName string, logger *slog.Logger) *Resolver {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{verifier: verifier, cookieName: cookieName, logger: logger}
}

func (s *Resolver) CookieName() string {
	return s.cookieName
}

// Resolve returns the principal for the request, or nil when there is no
// usable session. Missing, invalid and claim-incomplete tokens are
// indistinguishable to the caller.
func (s *Resolver) Resolve(r *http.Request) *Principal {
	raw := s.bearerToken(r)
	if raw == "" {
		return nil
	}

	token, err := s.verifier.VerifyIDToken(r.Context(), raw)
	if err != nil {
		s.logger.Warn("session_verify_failed", "path", r.URL.Path, "error", err)
		return nil
	}
	return PrincipalFromClaims(token)
}

// PrincipalFromClaims applies the claim rules: role must be a known role and
// companyId must be non-empty.
func PrincipalFromClaims(token *identity.Token) *Principal {
	if token == nil || token.UID == "" {
		return nil
	}
	role, ok := ParseRole(identity.ClaimString(token.Claims, claimRole))
	if !ok {
		return nil
	}
	companyID := identity.ClaimString(token.Claims, claimCompanyID)
	if companyID == "" {
		return nil
	}
	return &Principal{
		UID:          token.UID,
		Email:        token.Email,
		Role:         role,
		CompanyID:    companyID,
		DepartmentID: identity.ClaimString(token.Claims, claimDepartmentID),
	}
}

// Claims builds the custom claims for a principal's identity.
func Claims(role Role, companyID, departmentID string) map[string]any {
	claims := map[string]any{claimRole: string(role), claimCompanyID: companyID}
	if departmentID != "" {
		claims[claimDepartmentID] = departmentID
	}
	return claims
}

func (s *Resolver) bearerToken(r *http.Request) string {
	if c, err := r.Cookie(s.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
