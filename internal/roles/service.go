package roles

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/odyssey-quotes/internal/rbac"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
}

// MatrixPort is the permission matrix API roles are managed through.
type MatrixPort interface {
	CreateRole(ctx context.Context, name, description string, rank int) (rbac.Role, error)
	RoleMatrix(ctx context.Context, roleID int64) ([]rbac.MatrixRow, error)
	SetRolePermission(ctx context.Context, roleID int64, code string, level rbac.AccessLevel) error
}

// Service handles role business logic.
type Service struct {
	repo   RepositoryPort
	matrix MatrixPort
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, matrix MatrixPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, matrix: matrix, audit: audit, logger: logger}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// CreateRole adds a role with an empty matrix.
func (s *Service) CreateRole(ctx context.Context, input CreateInput) (rbac.Role, error) {
	role, err := s.matrix.CreateRole(ctx, input.Name, input.Description, input.Rank)
	if err != nil {
		return rbac.Role{}, err
	}
	s.record(ctx, "role.create", role.ID, map[string]any{"name": role.Name, "rank": role.Rank})
	return role, nil
}

// Matrix returns every permission with the level the role holds.
func (s *Service) Matrix(ctx context.Context, roleID int64) ([]rbac.MatrixRow, error) {
	return s.matrix.RoleMatrix(ctx, roleID)
}

// SetPermission upserts one cell of the role matrix.
func (s *Service) SetPermission(ctx context.Context, roleID int64, input PermissionInput) error {
	if err := s.matrix.SetRolePermission(ctx, roleID, input.Code, input.Level); err != nil {
		return err
	}
	s.record(ctx, "role.permission.set", roleID, map[string]any{"code": input.Code, "level": input.Level.String()})
	return nil
}

func (s *Service) record(ctx context.Context, action string, roleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(roleID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit role", slog.String("action", action), slog.Any("error", err))
	}
}
