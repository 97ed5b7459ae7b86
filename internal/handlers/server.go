// Package handlers implements the HTTP endpoints mounted under /api.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/keihi-platform/api/internal/audit"
	"github.com/keihi-platform/api/internal/config"
	"github.com/keihi-platform/api/internal/httpx"
	"github.com/keihi-platform/api/internal/identity"
	"github.com/keihi-platform/api/internal/importer"
	"github.com/keihi-platform/api/internal/middleware"
	"github.com/keihi-platform/api/internal/session"
	"github.com/keihi-platform/api/internal/store"
)

type Server struct {
	Config   config.Config
	Store    store.Store
	Paths    store.Paths
	Identity identity.Provider
	Audit    *audit.Logger
	Importer *importer.Importer
	Logger   *slog.Logger

	now func() time.Time
}

func NewServer(cfg config.Config, st store.Store, paths store.Paths, idp identity.Provider, auditLogger *audit.Logger, im *importer.Importer, logger *slog.Logger) *Server {
	return &Server{
		Config:   cfg,
		Store:    st,
		Paths:    paths,
		Identity: idp,
		Audit:    auditLogger,
		Importer: im,
		Logger:   logger,
		now:      time.Now,
	}
}

// SupportsPasswordLogin reports whether the identity provider can sign users
// in on the server side.
func (s *Server) SupportsPasswordLogin() bool {
	_, ok := s.Identity.(identity.PasswordSignIn)
	return ok
}

func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string             `json:"token"`
	User  *session.Principal `json:"user"`
}

func (s *Server) PostAuthLogin(w http.ResponseWriter, r *http.Request) {
	signer, ok := s.Identity.(identity.PasswordSignIn)
	if !ok {
		httpx.WriteError(w, r, http.StatusNotFound, "not_supported", "この環境ではパスワードログインは利用できません", nil)
		return
	}

	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", httpx.MsgInvalidInput, nil)
		return
	}

	token, err := signer.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			httpx.WriteError(w, r, http.StatusUnauthorized, "invalid_credentials", "メールアドレスまたはパスワードが正しくありません", nil)
			return
		}
		s.internalError(w, r, "sign in", err)
		return
	}

	verified, err := s.Identity.VerifyIDToken(r.Context(), token)
	if err != nil {
		s.internalError(w, r, "verify issued token", err)
		return
	}
	principal := session.PrincipalFromClaims(verified)
	if principal == nil {
		httpx.WriteError(w, r, http.StatusForbidden, "account_not_provisioned", "アカウントに会社またはロールが設定されていません", nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.Config.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.Config.SecureCookies,
		MaxAge:   int(s.Config.SessionTTL.Seconds()),
	})

	s.Logger.Info("login_succeeded", "uid", principal.UID, "company_id", principal.CompanyID)
	httpx.WriteJSON(w, http.StatusOK, loginResponse{Token: token, User: principal})
}

func (s *Server) PostAuthLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.Config.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.Config.SecureCookies,
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) GetAuthMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, principal)
}

func requirePrincipal(w http.ResponseWriter, r *http.Request) (*session.Principal, bool) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "認証が必要です", nil)
		return nil, false
	}
	return principal, true
}

// internalError logs err and answers with the generic 500 envelope.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.Logger.Error(op+" failed",
		"error", err,
		"path", r.URL.Path,
		"request_id", middleware.RequestIDFromContext(r.Context()),
	)
	httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", httpx.MsgInternal, nil)
}

// logAudit appends an audit entry outside any batch. Failures are logged
// and do not fail the request.
func (s *Server) logAudit(r *http.Request, entry audit.Entry) {
	entry.RequestID = middleware.RequestIDFromContext(r.Context())
	if err := s.Audit.Log(r.Context(), entry); err != nil {
		s.Logger.Warn("audit_log_failed", "action", entry.Action, "error", err)
	}
}
