package users

import (
	"context"
	"log/slog"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-quotes/internal/rbac"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filters ListFilters) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, input CreateInput, passwordHash string) (User, error)
}

// PermissionPort manages role assignment and direct grants.
type PermissionPort interface {
	AssignRole(ctx context.Context, userID, roleID int64) error
	GrantUserPermission(ctx context.Context, userID int64, code string, grantedBy int64) error
	RevokeUserPermission(ctx context.Context, userID int64, code string) error
	UserPermissions(ctx context.Context, userID int64) ([]rbac.UserPermission, error)
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	perms  PermissionPort
	audit  shared.AuditRecorder
	logger *slog.Logger
	cost   int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, perms PermissionPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, perms: perms, audit: audit, logger: logger, cost: bcrypt.DefaultCost}
}

// ListUsers returns users matching filters.
func (s *Service) ListUsers(ctx context.Context, filters ListFilters) ([]User, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultLimit
	}
	if filters.Limit > maxLimit {
		filters.Limit = maxLimit
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	return s.repo.ListUsers(ctx, filters)
}

// CreateUser hashes the password and stores the account.
func (s *Service) CreateUser(ctx context.Context, input CreateInput) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.CreateUser(ctx, input, string(hash))
	if err != nil {
		return User{}, err
	}
	s.record(ctx, "user.create", user.ID, map[string]any{"email": user.Email, "role_id": user.RoleID})
	return user, nil
}

// AssignRole changes the role of a user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return err
	}
	if err := s.perms.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.record(ctx, "user.role.assign", userID, map[string]any{"role_id": roleID})
	return nil
}

// Permissions lists the direct grants and the effective codes of a user.
func (s *Service) Permissions(ctx context.Context, userID int64) ([]rbac.UserPermission, []string, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, nil, err
	}
	direct, err := s.perms.UserPermissions(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	effective, err := s.perms.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return direct, effective, nil
}

// Grant adds a direct grant recorded against the acting user.
func (s *Service) Grant(ctx context.Context, userID int64, code string) error {
	if err := s.perms.GrantUserPermission(ctx, userID, code, shared.ActorID(ctx)); err != nil {
		return err
	}
	s.record(ctx, "user.permission.grant", userID, map[string]any{"code": code})
	return nil
}

// Revoke removes a direct grant.
func (s *Service) Revoke(ctx context.Context, userID int64, code string) error {
	if err := s.perms.RevokeUserPermission(ctx, userID, code); err != nil {
		return err
	}
	s.record(ctx, "user.permission.revoke", userID, map[string]any{"code": code})
	return nil
}

func (s *Service) record(ctx context.Context, action string, userID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit user", slog.String("action", action), slog.Any("error", err))
	}
}
