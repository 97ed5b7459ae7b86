package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/keihi-platform/api/internal/audit"
	"github.com/keihi-platform/api/internal/auth"
	"github.com/keihi-platform/api/internal/httpx"
	"github.com/keihi-platform/api/internal/identity"
	"github.com/keihi-platform/api/internal/session"
	"github.com/keihi-platform/api/internal/store"
)

const (
	msgMissingFields = "必要な項目が不足しています。"
	msgEmailTaken    = "指定されたメールアドレスは既に使用されています。"
)

type companySettings struct {
	Currency string `json:"currency"`
	Locale   string `json:"locale"`
	Timezone string `json:"timezone"`
}

type companyRegistration struct {
	Name      string `json:"name"`
	AdminUser struct {
		Email       openapi_types.Email `json:"email"`
		Password    string              `json:"password"`
		DisplayName string              `json:"displayName"`
	} `json:"adminUser"`
	Settings *companySettings `json:"settings"`
}

type userRegistration struct {
	Email        openapi_types.Email `json:"email"`
	DisplayName  string              `json:"displayName"`
	Role         string              `json:"role"`
	Password     string              `json:"password"`
	CompanyID    string              `json:"companyId"`
	DepartmentID string              `json:"departmentId"`
}

type registrationResponse struct {
	Success           bool   `json:"success"`
	CompanyID         string `json:"companyId"`
	UserID            string `json:"userId"`
	Message           string `json:"message"`
	TemporaryPassword string `json:"temporaryPassword,omitempty"`
}

func (s *Server) PostRegistrationCompany(w http.ResponseWriter, r *http.Request) {
	var req companyRegistration
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", httpx.MsgInvalidInput, nil)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	email := strings.TrimSpace(string(req.AdminUser.Email))
	if req.Name == "" || email == "" || req.AdminUser.Password == "" || strings.TrimSpace(req.AdminUser.DisplayName) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", msgMissingFields, nil)
		return
	}
	if err := auth.ValidatePassword(req.AdminUser.Password); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "weak_password", "パスワードは8文字以上である必要があります。", nil)
		return
	}

	companyID, err := s.newCompanyID(r.Context())
	if err != nil {
		s.internalError(w, r, "allocate company id", err)
		return
	}

	user, err := s.Identity.CreateUser(r.Context(), identity.NewUser{
		Email:         email,
		Password:      req.AdminUser.Password,
		DisplayName:   req.AdminUser.DisplayName,
		EmailVerified: true,
	})
	if err != nil {
		if errors.Is(err, identity.ErrEmailExists) {
			httpx.WriteError(w, r, http.StatusConflict, "email_exists", msgEmailTaken, nil)
			return
		}
		s.internalError(w, r, "create admin identity", err)
		return
	}

	err = s.provisionCompany(r, companyID, user, req)
	if err != nil {
		s.rollbackIdentity(r.Context(), user.UID)
		s.internalError(w, r, "provision company", err)
		return
	}

	s.Logger.Info("company_registered", "company_id", companyID, "uid", user.UID)
	httpx.WriteJSON(w, http.StatusCreated, registrationResponse{
		Success:   true,
		CompanyID: companyID,
		UserID:    user.UID,
		Message:   "会社とアカウントが正常に作成されました。",
	})
}

// newCompanyID returns "C" plus the current Unix milliseconds, stepping
// forward past IDs already taken by registrations in the same millisecond.
func (s *Server) newCompanyID(ctx context.Context) (string, error) {
	millis := s.now().UnixMilli()
	for {
		id := fmt.Sprintf("C%d", millis)
		taken, err := s.Store.Exists(ctx, s.Paths.Tenant(id))
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
		millis++
	}
}

// provisionCompany sets the admin's claims and commits the tenant, the
// admin profile and the audit entry together.
func (s *Server) provisionCompany(r *http.Request, companyID string, user *identity.User, req companyRegistration) error {
	ctx := r.Context()
	if err := s.Identity.SetCustomClaims(ctx, user.UID, session.Claims(session.RoleAdmin, companyID, "")); err != nil {
		return fmt.Errorf("set claims: %w", err)
	}

	settings := companySettings{Currency: "JPY", Locale: "ja-JP", Timezone: "Asia/Tokyo"}
	if req.Settings != nil {
		if req.Settings.Currency != "" {
			settings.Currency = req.Settings.Currency
		}
		if req.Settings.Locale != "" {
			settings.Locale = req.Settings.Locale
		}
		if req.Settings.Timezone != "" {
			settings.Timezone = req.Settings.Timezone
		}
	}

	now := s.now().UTC()
	tenantPath := s.Paths.Tenant(companyID)
	batch := s.Store.Batch()
	batch.Set(tenantPath, map[string]any{
		"name":      req.Name,
		"isActive":  true,
		"createdAt": now,
		"settings": map[string]any{
			"currency": settings.Currency,
			"locale":   settings.Locale,
			"timezone": settings.Timezone,
		},
	})
	batch.Set(s.Paths.Doc(companyID, store.CollUsers, user.UID), map[string]any{
		"email":       user.Email,
		"displayName": req.AdminUser.DisplayName,
		"role":        string(session.RoleAdmin),
		"companyId":   companyID,
		"createdAt":   now,
		"updatedAt":   now,
	})
	s.Audit.Stage(batch, audit.Entry{
		TenantID:   companyID,
		ActorID:    user.UID,
		Action:     "company_created",
		TargetPath: tenantPath,
		After: map[string]any{
			"companyName": req.Name,
			"adminUserId": user.UID,
			"adminEmail":  user.Email,
		},
	})
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("commit company: %w", err)
	}
	return nil
}

func (s *Server) PostRegistrationUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req userRegistration
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", httpx.MsgInvalidInput, nil)
		return
	}
	email := strings.TrimSpace(string(req.Email))
	if email == "" || strings.TrimSpace(req.DisplayName) == "" || req.Role == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", msgMissingFields, nil)
		return
	}
	role, ok := session.ParseRole(req.Role)
	if !ok {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_role", "無効なロールが指定されています。", nil)
		return
	}

	companyID := req.CompanyID
	if companyID == "" {
		companyID = principal.CompanyID
	}
	if companyID != principal.CompanyID {
		httpx.WriteError(w, r, http.StatusForbidden, "cross_tenant", "他の会社にユーザーを追加することはできません。", nil)
		return
	}

	exists, err := s.Store.Exists(r.Context(), s.Paths.Tenant(companyID))
	if err != nil {
		s.internalError(w, r, "check company", err)
		return
	}
	if !exists {
		httpx.WriteError(w, r, http.StatusNotFound, "company_not_found", "指定された会社が見つかりません。", nil)
		return
	}
	if req.DepartmentID != "" {
		exists, err := s.Store.Exists(r.Context(), s.Paths.Doc(companyID, store.CollDepartments, req.DepartmentID))
		if err != nil {
			s.internalError(w, r, "check department", err)
			return
		}
		if !exists {
			httpx.WriteError(w, r, http.StatusNotFound, "department_not_found", "指定された部門が見つかりません。", nil)
			return
		}
	}

	password := req.Password
	generated := false
	if password == "" {
		password, err = auth.GenerateTemporaryPassword()
		if err != nil {
			s.internalError(w, r, "generate temporary password", err)
			return
		}
		generated = true
	} else if err := auth.ValidatePassword(password); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "weak_password", "パスワードは8文字以上である必要があります。", nil)
		return
	}

	user, err := s.Identity.CreateUser(r.Context(), identity.NewUser{
		Email:       email,
		Password:    password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		if errors.Is(err, identity.ErrEmailExists) {
			httpx.WriteError(w, r, http.StatusConflict, "email_exists", msgEmailTaken, nil)
			return
		}
		s.internalError(w, r, "create identity", err)
		return
	}

	if err := s.provisionUser(r, principal, companyID, role, user, req); err != nil {
		s.rollbackIdentity(r.Context(), user.UID)
		s.internalError(w, r, "provision user", err)
		return
	}

	if _, err := s.Identity.EmailVerificationLink(r.Context(), user.Email); err != nil {
		s.Logger.Warn("email_verification_link_failed", "uid", user.UID, "error", err)
	}

	resp := registrationResponse{
		Success:   true,
		CompanyID: companyID,
		UserID:    user.UID,
		Message:   "ユーザーが正常に作成されました。",
	}
	if generated {
		resp.TemporaryPassword = password
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

func (s *Server) provisionUser(r *http.Request, actor *session.Principal, companyID string, role session.Role, user *identity.User, req userRegistration) error {
	ctx := r.Context()
	if err := s.Identity.SetCustomClaims(ctx, user.UID, session.Claims(role, companyID, req.DepartmentID)); err != nil {
		return fmt.Errorf("set claims: %w", err)
	}

	now := s.now().UTC()
	profile := map[string]any{
		"email":       user.Email,
		"displayName": req.DisplayName,
		"role":        string(role),
		"companyId":   companyID,
		"createdAt":   now,
		"updatedAt":   now,
	}
	after := map[string]any{
		"userId":      user.UID,
		"email":       user.Email,
		"displayName": req.DisplayName,
		"role":        string(role),
	}
	if req.DepartmentID != "" {
		profile["departmentId"] = req.DepartmentID
		after["departmentId"] = req.DepartmentID
	}

	profilePath := s.Paths.Doc(companyID, store.CollUsers, user.UID)
	batch := s.Store.Batch()
	batch.Set(profilePath, profile)
	s.Audit.Stage(batch, audit.Entry{
		TenantID:   companyID,
		ActorID:    actor.UID,
		Action:     "user_created",
		TargetPath: profilePath,
		After:      after,
	})
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("commit user profile: %w", err)
	}
	return nil
}

// rollbackIdentity deletes an identity whose tenant records could not be
// written. A failed delete is logged only.
func (s *Server) rollbackIdentity(ctx context.Context, uid string) {
	if err := s.Identity.DeleteUser(context.WithoutCancel(ctx), uid); err != nil {
		s.Logger.Error("identity rollback failed", "uid", uid, "error", err)
		return
	}
	s.Logger.Warn("identity_rolled_back", "uid", uid)
}
