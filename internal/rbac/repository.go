package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/httpx"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = fmt.Errorf("rbac: %w", httpx.ErrNotFound)
	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = fmt.Errorf("rbac: %w", httpx.ErrDuplicate)
)

// Repository defines persistence operations for the permission matrix.
type Repository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	UpsertPermission(ctx context.Context, perm Permission) (Permission, error)
	UserRole(ctx context.Context, userID int64) (Role, error)
	RoleGrants(ctx context.Context, roleID int64) ([]RolePermission, error)
	UserGrants(ctx context.Context, userID int64) ([]UserPermission, error)
	UpsertRolePermission(ctx context.Context, roleID int64, code string, level AccessLevel) error
	AssignRole(ctx context.Context, userID, roleID int64) error
	GrantUserPermission(ctx context.Context, userID int64, code string, grantedBy int64) error
	RevokeUserPermission(ctx context.Context, userID int64, code string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const roleColumns = `id, name, description, rank, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.Rank, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns all roles ordered by rank.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY rank, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

// CreateRole inserts a new role.
func (r *PGRepository) CreateRole(ctx context.Context, role Role) (Role, error) {
	created, err := scanRole(r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, rank, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING `+roleColumns, role.Name, role.Description, role.Rank))
	if isUniqueViolation(err) {
		return Role{}, ErrDuplicate
	}
	return created, err
}

// ListPermissions returns the permission catalogue ordered by category and code.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, category, display_name FROM permissions ORDER BY category, code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Category, &p.DisplayName); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// UpsertPermission inserts or refreshes a catalogue entry by code.
func (r *PGRepository) UpsertPermission(ctx context.Context, perm Permission) (Permission, error) {
	var out Permission
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (code, category, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET category = EXCLUDED.category, display_name = EXCLUDED.display_name
		RETURNING id, code, category, display_name`,
		perm.Code, perm.Category, perm.DisplayName,
	).Scan(&out.ID, &out.Code, &out.Category, &out.DisplayName)
	return out, err
}

// UserRole returns the role assigned to a user.
func (r *PGRepository) UserRole(ctx context.Context, userID int64) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `
		SELECT r.id, r.name, r.description, r.rank, r.created_at, r.updated_at
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1 AND u.is_active`, userID))
}

// RoleGrants lists the permissions granted to a role.
func (r *PGRepository) RoleGrants(ctx context.Context, roleID int64) ([]RolePermission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rp.role_id, rp.permission_id, p.code, rp.access_level
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.code`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []RolePermission
	for rows.Next() {
		var rp RolePermission
		var level string
		if err := rows.Scan(&rp.RoleID, &rp.PermissionID, &rp.Code, &level); err != nil {
			return nil, err
		}
		// Unknown stored levels resolve to none.
		rp.Level, _ = ParseAccessLevel(level)
		grants = append(grants, rp)
	}
	return grants, rows.Err()
}

// UserGrants lists the direct grants of a user.
func (r *PGRepository) UserGrants(ctx context.Context, userID int64) ([]UserPermission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT up.user_id, up.permission_id, p.code, COALESCE(up.granted_by, 0), up.granted_at
		FROM user_permissions up
		JOIN permissions p ON p.id = up.permission_id
		WHERE up.user_id = $1
		ORDER BY p.code`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []UserPermission
	for rows.Next() {
		var up UserPermission
		if err := rows.Scan(&up.UserID, &up.PermissionID, &up.Code, &up.GrantedBy, &up.GrantedAt); err != nil {
			return nil, err
		}
		grants = append(grants, up)
	}
	return grants, rows.Err()
}

// UpsertRolePermission sets the level of a permission for a role.
func (r *PGRepository) UpsertRolePermission(ctx context.Context, roleID int64, code string, level AccessLevel) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, access_level)
		SELECT $1, p.id, $3 FROM permissions p WHERE p.code = $2
		ON CONFLICT (role_id, permission_id) DO UPDATE SET access_level = EXCLUDED.access_level`,
		roleID, strings.ToLower(code), level.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignRole sets the role of a user.
func (r *PGRepository) AssignRole(ctx context.Context, userID, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET role_id = $2, updated_at = NOW() WHERE id = $1`, userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GrantUserPermission adds a direct grant. Granting twice is a no-op.
func (r *PGRepository) GrantUserPermission(ctx context.Context, userID int64, code string, grantedBy int64) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO user_permissions (user_id, permission_id, granted_by, granted_at)
		SELECT $1, p.id, NULLIF($3, 0), NOW() FROM permissions p WHERE p.code = $2
		ON CONFLICT (user_id, permission_id) DO NOTHING`,
		userID, strings.ToLower(code), grantedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM permissions WHERE code = $1)`, strings.ToLower(code)).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

// RevokeUserPermission removes a direct grant.
func (r *PGRepository) RevokeUserPermission(ctx context.Context, userID int64, code string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM user_permissions up
		USING permissions p
		WHERE up.permission_id = p.id AND up.user_id = $1 AND p.code = $2`,
		userID, strings.ToLower(code))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Repository = (*PGRepository)(nil)
