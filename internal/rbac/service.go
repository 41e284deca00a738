package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/httpx"
)

// ErrValidation reports invalid matrix input.
var ErrValidation = fmt.Errorf("rbac: %w", httpx.ErrValidation)

// LevelCache stores resolved access levels per resource.
type LevelCache interface {
	Get(ctx context.Context, resource string) (AccessLevel, bool)
	Set(ctx context.Context, resource string, level AccessLevel) error
	InvalidatePrefix(ctx context.Context, prefix string) error
	Invalidate(ctx context.Context) error
}

// ChangeNotifier is told when the permission matrix changes so other instances can flush.
type ChangeNotifier interface {
	PermissionsChanged(ctx context.Context, userID int64) error
}

// Service orchestrates permission resolution and matrix management.
type Service struct {
	repo     Repository
	cache    LevelCache
	notifier ChangeNotifier
	logger   *slog.Logger
	group    singleflight.Group
}

// NewService constructs a Service. cache and notifier may be nil.
func NewService(repo Repository, cache LevelCache, notifier ChangeNotifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, notifier: notifier, logger: logger}
}

// resolveTimeout bounds a shared resolution once it is detached from its caller.
const resolveTimeout = 5 * time.Second

// Resolve loads and merges the grants of a user. On any lookup failure it returns
// empty grants together with the error. Concurrent calls for the same user share
// one load; a caller whose ctx ends stops waiting without failing the others.
func (s *Service) Resolve(ctx context.Context, userID int64) (Grants, error) {
	ch := s.group.DoChan(strconv.FormatInt(userID, 10), func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		return s.load(loadCtx, userID)
	})
	select {
	case <-ctx.Done():
		return Resolve(nil, nil), ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Resolve(nil, nil), res.Err
		}
		return res.Val.(Grants), nil
	}
}

func (s *Service) load(ctx context.Context, userID int64) (Grants, error) {
	role, err := s.repo.UserRole(ctx, userID)
	if err != nil {
		return Grants{}, fmt.Errorf("rbac: user role: %w", err)
	}
	roleGrants, err := s.repo.RoleGrants(ctx, role.ID)
	if err != nil {
		return Grants{}, fmt.Errorf("rbac: role grants: %w", err)
	}
	direct, err := s.repo.UserGrants(ctx, userID)
	if err != nil {
		return Grants{}, fmt.Errorf("rbac: user grants: %w", err)
	}
	grants := Resolve(roleGrants, direct)
	grants.RoleID = role.ID
	grants.RoleName = role.Name
	return grants, nil
}

// EffectivePermissions returns the deduplicated permission codes of a user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	grants, err := s.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return grants.Codes, nil
}

// AccessLevel returns the level a user holds on code. Any failure yields LevelNone.
func (s *Service) AccessLevel(ctx context.Context, userID int64, code string) AccessLevel {
	code = normalizeCode(code)
	resource := levelResource(userID, code)
	if s.cache != nil {
		if lvl, ok := s.cache.Get(ctx, resource); ok {
			return lvl
		}
	}
	grants, err := s.Resolve(ctx, userID)
	if err != nil {
		s.logger.Warn("rbac access level lookup", slog.Int64("user_id", userID), slog.String("code", code), slog.Any("error", err))
		return LevelNone
	}
	lvl := grants.Level(code)
	if s.cache != nil {
		if err := s.cache.Set(ctx, resource, lvl); err != nil {
			s.logger.Warn("rbac cache level", slog.String("resource", resource), slog.Any("error", err))
		}
	}
	return lvl
}

// WarmCache resolves a user's grants and stores every role level in the cache.
func (s *Service) WarmCache(ctx context.Context, userID int64) (Grants, error) {
	grants, err := s.Resolve(ctx, userID)
	if err != nil {
		return grants, err
	}
	if s.cache == nil {
		return grants, nil
	}
	if err := s.cache.InvalidatePrefix(ctx, userPrefix(userID)); err != nil {
		s.logger.Warn("rbac cache reset", slog.Int64("user_id", userID), slog.Any("error", err))
	}
	for code, lvl := range grants.RoleLevels {
		if err := s.cache.Set(ctx, levelResource(userID, code), lvl); err != nil {
			s.logger.Warn("rbac cache warm", slog.Int64("user_id", userID), slog.Any("error", err))
			break
		}
	}
	return grants, nil
}

// InvalidateUser drops cached levels of one user.
func (s *Service) InvalidateUser(ctx context.Context, userID int64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidatePrefix(ctx, userPrefix(userID))
}

// InvalidateAll drops every cached level.
func (s *Service) InvalidateAll(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx)
}

// ListRoles returns all roles ordered by rank.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string, rank int) (Role, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", ErrValidation)
	}
	if rank < 0 {
		return Role{}, fmt.Errorf("%w: rank must be positive", ErrValidation)
	}
	return s.repo.CreateRole(ctx, Role{Name: name, Description: strings.TrimSpace(description), Rank: rank})
}

// ListPermissions returns the permission catalogue.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// EnsurePermission upserts a catalogue entry.
func (s *Service) EnsurePermission(ctx context.Context, code, category, displayName string) (Permission, error) {
	code = normalizeCode(code)
	if code == "" {
		return Permission{}, fmt.Errorf("%w: permission code required", ErrValidation)
	}
	return s.repo.UpsertPermission(ctx, Permission{
		Code:        code,
		Category:    strings.TrimSpace(category),
		DisplayName: strings.TrimSpace(displayName),
	})
}

// RoleMatrix lists every catalogue permission with the level the role holds.
func (s *Service) RoleMatrix(ctx context.Context, roleID int64) ([]MatrixRow, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	grants, err := s.repo.RoleGrants(ctx, roleID)
	if err != nil {
		return nil, err
	}
	levels := make(map[string]AccessLevel, len(grants))
	for _, g := range grants {
		levels[normalizeCode(g.Code)] = g.Level
	}
	rows := make([]MatrixRow, 0, len(perms))
	for _, p := range perms {
		rows = append(rows, MatrixRow{Permission: p, Level: levels[normalizeCode(p.Code)]})
	}
	return rows, nil
}

// SetRolePermission upserts the level of code for a role.
func (s *Service) SetRolePermission(ctx context.Context, roleID int64, code string, level AccessLevel) error {
	code = normalizeCode(code)
	if code == "" || !level.Valid() {
		return fmt.Errorf("%w: code and valid level required", ErrValidation)
	}
	if err := s.repo.UpsertRolePermission(ctx, roleID, code, level); err != nil {
		return err
	}
	s.changed(ctx, 0)
	return nil
}

// AssignRole sets the role of a user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.changed(ctx, userID)
	return nil
}

// GrantUserPermission adds a direct grant of code to a user.
func (s *Service) GrantUserPermission(ctx context.Context, userID int64, code string, grantedBy int64) error {
	code = normalizeCode(code)
	if code == "" {
		return fmt.Errorf("%w: permission code required", ErrValidation)
	}
	if err := s.repo.GrantUserPermission(ctx, userID, code, grantedBy); err != nil {
		return err
	}
	s.changed(ctx, userID)
	return nil
}

// RevokeUserPermission removes a direct grant.
func (s *Service) RevokeUserPermission(ctx context.Context, userID int64, code string) error {
	if err := s.repo.RevokeUserPermission(ctx, userID, normalizeCode(code)); err != nil {
		return err
	}
	s.changed(ctx, userID)
	return nil
}

// UserPermissions lists the direct grants of a user.
func (s *Service) UserPermissions(ctx context.Context, userID int64) ([]UserPermission, error) {
	return s.repo.UserGrants(ctx, userID)
}

// changed flushes local cache entries and tells other instances. userID 0 means everyone.
func (s *Service) changed(ctx context.Context, userID int64) {
	var err error
	if userID == 0 {
		err = s.InvalidateAll(ctx)
	} else {
		err = s.InvalidateUser(ctx, userID)
	}
	if err != nil {
		s.logger.Warn("rbac invalidate cache", slog.Int64("user_id", userID), slog.Any("error", err))
	}
	if s.notifier != nil {
		if err := s.notifier.PermissionsChanged(ctx, userID); err != nil {
			s.logger.Warn("rbac notify change", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
}

func levelResource(userID int64, code string) string {
	return userPrefix(userID) + code
}

func userPrefix(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10) + ":"
}
