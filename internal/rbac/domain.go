package rbac

import "time"

// Well-known role names.
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleClient     = "CLIENT"
)

// Role represents a high-level permission grouping. Lower Rank is more privileged.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Rank        int       `json:"rank"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission represents an atomic capability identified by a dotted code.
type Permission struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Category    string `json:"category"`
	DisplayName string `json:"display_name"`
}

// RolePermission grants a permission to a role at an access level.
type RolePermission struct {
	RoleID       int64       `json:"role_id"`
	PermissionID int64       `json:"permission_id"`
	Code         string      `json:"code"`
	Level        AccessLevel `json:"access_level"`
}

// UserPermission is a direct grant to a single user. It carries no level.
type UserPermission struct {
	UserID       int64     `json:"user_id"`
	PermissionID int64     `json:"permission_id"`
	Code         string    `json:"code"`
	GrantedBy    int64     `json:"granted_by"`
	GrantedAt    time.Time `json:"granted_at"`
}

// MatrixRow is one permission of a role matrix, including permissions the role lacks.
type MatrixRow struct {
	Permission Permission  `json:"permission"`
	Level      AccessLevel `json:"access_level"`
}
