// Package session turns a verified identity token into a tenant principal
// and decides which operation classes that principal may perform.
package session

import "slices"

type Role string

const (
	RoleStaff   Role = "staff"
	RoleManager Role = "manager"
	RoleFinance Role = "finance"
	RoleAdmin   Role = "admin"
)

var allRoles = []Role{RoleStaff, RoleManager, RoleFinance, RoleAdmin}

// ParseRole reports whether s names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	if slices.Contains(allRoles, r) {
		return r, true
	}
	return "", false
}

// Principal is rebuilt from the token on every request and never cached.
type Principal struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	Role         Role   `json:"role"`
	CompanyID    string `json:"companyId"`
	DepartmentID string `json:"departmentId,omitempty"`
}

// HasRequiredRole is a pure membership test. A nil principal has no role.
func HasRequiredRole(p *Principal, roles ...Role) bool {
	if p == nil {
		return false
	}
	return slices.Contains(roles, p.Role)
}

var (
	AdminOnly      = []Role{RoleAdmin}
	FinanceOrAdmin = []Role{RoleFinance, RoleAdmin}
	ManagerOrAbove = []Role{RoleManager, RoleFinance, RoleAdmin}
	AnyRole        = allRoles
)

func IsAdmin(p *Principal) bool          { return HasRequiredRole(p, AdminOnly...) }
func IsFinanceOrAdmin(p *Principal) bool { return HasRequiredRole(p, FinanceOrAdmin...) }
func IsManagerOrAbove(p *Principal) bool { return HasRequiredRole(p, ManagerOrAbove...) }

// Operation is a class of guarded actions.
type Operation string

const (
	OpReadMasters      Operation = "masters.read"
	OpImportMasters    Operation = "masters.import"
	OpManageCategories Operation = "masters.categories"
	OpManageUsers      Operation = "users.manage"
	OpExport           Operation = "export"
)

var operationRoles = map[Operation][]Role{
	OpReadMasters:      AnyRole,
	OpImportMasters:    FinanceOrAdmin,
	OpManageCategories: FinanceOrAdmin,
	OpManageUsers:      AdminOnly,
	OpExport:           FinanceOrAdmin,
}

// RolesFor returns the roles allowed to perform op, or nil for an unknown op.
func RolesFor(op Operation) []Role {
	return operationRoles[op]
}

func Allowed(p *Principal, op Operation) bool {
	return HasRequiredRole(p, RolesFor(op)...)
}
