package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/keihi-platform/api/internal/audit"
	"github.com/keihi-platform/api/internal/auth"
	"github.com/keihi-platform/api/internal/httpx"
	"github.com/keihi-platform/api/internal/identity"
	"github.com/keihi-platform/api/internal/session"
	"github.com/keihi-platform/api/internal/store"
)

type companyUser struct {
	UID            string     `json:"uid"`
	Email          string     `json:"email"`
	DisplayName    string     `json:"displayName,omitempty"`
	Role           string     `json:"role"`
	CompanyID      string     `json:"companyId"`
	DepartmentID   string     `json:"departmentId,omitempty"`
	Disabled       bool       `json:"disabled"`
	EmailVerified  bool       `json:"emailVerified"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastSignInTime *time.Time `json:"lastSignInTime,omitempty"`
}

func (s *Server) GetUsers(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	all, err := s.Identity.ListUsers(r.Context())
	if err != nil {
		s.internalError(w, r, "list identities", err)
		return
	}

	users := make([]companyUser, 0)
	for _, u := range all {
		if identity.ClaimString(u.CustomClaims, "companyId") != principal.CompanyID {
			continue
		}
		users = append(users, toCompanyUser(u))
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

func toCompanyUser(u *identity.User) companyUser {
	role := identity.ClaimString(u.CustomClaims, "role")
	if role == "" {
		role = string(session.RoleStaff)
	}
	out := companyUser{
		UID:           u.UID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		Role:          role,
		CompanyID:     identity.ClaimString(u.CustomClaims, "companyId"),
		DepartmentID:  identity.ClaimString(u.CustomClaims, "departmentId"),
		Disabled:      u.Disabled,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
	if !u.LastSignInAt.IsZero() {
		last := u.LastSignInAt
		out.LastSignInTime = &last
	}
	return out
}

type updateUserRequest struct {
	UID          string  `json:"uid"`
	Role         *string `json:"role"`
	DepartmentID *string `json:"departmentId"`
	Disabled     *bool   `json:"disabled"`
	NewPassword  *string `json:"newPassword"`
}

// PutUsers updates another member of the caller's company. The self-edit
// guards run before the admin check so that nobody, whatever their current
// role, can demote or disable themselves.
func (s *Server) PutUsers(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", httpx.MsgInvalidInput, nil)
		return
	}
	if req.UID == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "ユーザーIDは必須です", nil)
		return
	}

	if req.UID == principal.UID {
		if req.Role != nil && *req.Role != string(session.RoleAdmin) {
			httpx.WriteError(w, r, http.StatusBadRequest, "self_demotion", "自分自身の管理者権限は変更できません", nil)
			return
		}
		if req.Disabled != nil && *req.Disabled {
			httpx.WriteError(w, r, http.StatusBadRequest, "self_disable", "自分自身のアカウントは無効化できません", nil)
			return
		}
	}

	if !session.Allowed(principal, session.OpManageUsers) {
		httpx.WriteError(w, r, http.StatusForbidden, "forbidden", "管理者権限が必要です", nil)
		return
	}

	var role session.Role
	if req.Role != nil {
		parsed, ok := session.ParseRole(*req.Role)
		if !ok {
			httpx.WriteError(w, r, http.StatusBadRequest, "invalid_role", "無効なロールが指定されています。", nil)
			return
		}
		role = parsed
	}
	password := ""
	if req.NewPassword != nil {
		password = strings.TrimSpace(*req.NewPassword)
		if password != "" {
			if err := auth.ValidatePassword(password); err != nil {
				httpx.WriteError(w, r, http.StatusBadRequest, "weak_password", "パスワードは8文字以上である必要があります。", nil)
				return
			}
		}
	}

	target, err := s.Identity.GetUser(r.Context(), req.UID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "user_not_found", "ユーザーが見つかりません", nil)
			return
		}
		s.internalError(w, r, "get identity", err)
		return
	}
	if identity.ClaimString(target.CustomClaims, "companyId") != principal.CompanyID {
		httpx.WriteError(w, r, http.StatusForbidden, "cross_tenant", "他の会社のユーザーは変更できません", nil)
		return
	}

	current := toCompanyUser(target)
	newRole := current.Role
	if role != "" {
		newRole = string(role)
	}
	newDepartment := current.DepartmentID
	if req.DepartmentID != nil {
		newDepartment = *req.DepartmentID
	}

	if req.Role != nil || req.DepartmentID != nil {
		claims := map[string]any{}
		for k, v := range target.CustomClaims {
			claims[k] = v
		}
		for k, v := range session.Claims(session.Role(newRole), principal.CompanyID, newDepartment) {
			claims[k] = v
		}
		if newDepartment == "" {
			delete(claims, "departmentId")
		}
		if err := s.Identity.SetCustomClaims(r.Context(), req.UID, claims); err != nil {
			s.internalError(w, r, "update claims", err)
			return
		}
	}

	update := identity.UserUpdate{Disabled: req.Disabled}
	if password != "" {
		update.Password = &password
	}
	if update.Disabled != nil || update.Password != nil {
		if _, err := s.Identity.UpdateUser(r.Context(), req.UID, update); err != nil {
			s.internalError(w, r, "update identity", err)
			return
		}
	}

	disabled := current.Disabled
	if req.Disabled != nil {
		disabled = *req.Disabled
	}

	profilePath := s.Paths.Doc(principal.CompanyID, store.CollUsers, req.UID)
	profile := map[string]any{"role": newRole, "updatedAt": s.now().UTC()}
	if newDepartment != "" {
		profile["departmentId"] = newDepartment
	} else if req.DepartmentID != nil {
		profile["departmentId"] = store.DeleteField
	}
	if err := s.Store.Merge(r.Context(), profilePath, profile); err != nil {
		s.Logger.Warn("user_profile_sync_failed", "uid", req.UID, "error", err)
	}

	after := map[string]any{
		"role":         newRole,
		"departmentId": newDepartment,
		"disabled":     disabled,
	}
	message := "ユーザー情報を更新しました。"
	if password != "" {
		after["passwordChanged"] = true
		message += " パスワードも変更されました。"
	}
	s.logAudit(r, audit.Entry{
		TenantID:   principal.CompanyID,
		ActorID:    principal.UID,
		Action:     "update_user",
		TargetPath: profilePath,
		Before: map[string]any{
			"role":         current.Role,
			"departmentId": current.DepartmentID,
			"disabled":     current.Disabled,
		},
		After: after,
	})

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": message})
}
