package roles

import (
	"time"

	"github.com/odyssey-erp/odyssey-quotes/internal/rbac"
)

// Role represents a role for management, with the number of users holding it.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Rank        int       `json:"rank"`
	UserCount   int       `json:"user_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateInput carries a new role definition.
type CreateInput struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
	Rank        int    `json:"rank" validate:"gte=0"`
}

// PermissionInput sets the level of one permission for a role.
type PermissionInput struct {
	Code  string           `json:"code" validate:"required"`
	Level rbac.AccessLevel `json:"level"`
}
