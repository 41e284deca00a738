package rbac

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	mu         sync.Mutex
	roles      map[int64]Role
	userRoles  map[int64]int64
	roleGrants map[int64][]RolePermission
	userGrants map[int64][]UserPermission
	perms      []Permission
	err        error
	calls      int
	entered    chan struct{}
	gate       chan struct{}
	exited     chan error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		roles: map[int64]Role{
			1: {ID: 1, Name: RoleAdmin, Rank: 2},
			2: {ID: 2, Name: RoleClient, Rank: 3},
		},
		userRoles: map[int64]int64{10: 1, 20: 2},
		roleGrants: map[int64][]RolePermission{
			1: {
				{RoleID: 1, Code: "quotations.manage", Level: LevelWrite},
				{RoleID: 1, Code: "users.manage", Level: LevelFull},
			},
			2: {{RoleID: 2, Code: "quotations.manage", Level: LevelRead}},
		},
		userGrants: map[int64][]UserPermission{20: {{UserID: 20, Code: "audit.view"}}},
		perms: []Permission{
			{ID: 1, Code: "audit.view"},
			{ID: 2, Code: "quotations.manage"},
			{ID: 3, Code: "users.manage"},
		},
	}
}

func (s *stubRepo) ListRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	for _, r := range s.roles {
		out = append(out, r)
	}
	return out, s.err
}

func (s *stubRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	r, ok := s.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return r, nil
}

func (s *stubRepo) CreateRole(ctx context.Context, role Role) (Role, error) {
	role.ID = int64(len(s.roles) + 1)
	s.roles[role.ID] = role
	return role, nil
}

func (s *stubRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.perms, s.err
}

func (s *stubRepo) UpsertPermission(ctx context.Context, perm Permission) (Permission, error) {
	perm.ID = int64(len(s.perms) + 1)
	s.perms = append(s.perms, perm)
	return perm, nil
}

func (s *stubRepo) UserRole(ctx context.Context, userID int64) (Role, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.gate != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
		select {
		case <-s.gate:
			s.exited <- nil
		case <-ctx.Done():
			s.exited <- ctx.Err()
			return Role{}, ctx.Err()
		}
	}
	if s.err != nil {
		return Role{}, s.err
	}
	id, ok := s.userRoles[userID]
	if !ok {
		return Role{}, ErrNotFound
	}
	return s.roles[id], nil
}

func (s *stubRepo) RoleGrants(ctx context.Context, roleID int64) ([]RolePermission, error) {
	return s.roleGrants[roleID], s.err
}

func (s *stubRepo) UserGrants(ctx context.Context, userID int64) ([]UserPermission, error) {
	return s.userGrants[userID], s.err
}

func (s *stubRepo) UpsertRolePermission(ctx context.Context, roleID int64, code string, level AccessLevel) error {
	grants := s.roleGrants[roleID]
	for i := range grants {
		if grants[i].Code == code {
			grants[i].Level = level
			return nil
		}
	}
	s.roleGrants[roleID] = append(grants, RolePermission{RoleID: roleID, Code: code, Level: level})
	return nil
}

func (s *stubRepo) AssignRole(ctx context.Context, userID, roleID int64) error {
	s.userRoles[userID] = roleID
	return nil
}

func (s *stubRepo) GrantUserPermission(ctx context.Context, userID int64, code string, grantedBy int64) error {
	s.userGrants[userID] = append(s.userGrants[userID], UserPermission{UserID: userID, Code: code, GrantedBy: grantedBy})
	return nil
}

func (s *stubRepo) RevokeUserPermission(ctx context.Context, userID int64, code string) error {
	grants := s.userGrants[userID]
	for i, g := range grants {
		if g.Code == code {
			s.userGrants[userID] = append(grants[:i], grants[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

type mapCache struct {
	entries map[string]AccessLevel
	flushes int
}

func newMapCache() *mapCache { return &mapCache{entries: map[string]AccessLevel{}} }

func (c *mapCache) Get(ctx context.Context, resource string) (AccessLevel, bool) {
	lvl, ok := c.entries[resource]
	return lvl, ok
}

func (c *mapCache) Set(ctx context.Context, resource string, level AccessLevel) error {
	c.entries[resource] = level
	return nil
}

func (c *mapCache) InvalidatePrefix(ctx context.Context, prefix string) error {
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

func (c *mapCache) Invalidate(ctx context.Context) error {
	c.flushes++
	c.entries = map[string]AccessLevel{}
	return nil
}

type recordingNotifier struct{ users []int64 }

func (n *recordingNotifier) PermissionsChanged(ctx context.Context, userID int64) error {
	n.users = append(n.users, userID)
	return nil
}

func TestServiceResolve(t *testing.T) {
	svc := NewService(newStubRepo(), nil, nil, nil)

	grants, err := svc.Resolve(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, RoleClient, grants.RoleName)
	assert.Equal(t, []string{"audit.view", "quotations.manage"}, grants.Codes)

	codes, err := svc.EffectivePermissions(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"quotations.manage", "users.manage"}, codes)
}

func TestServiceResolveFailsClosed(t *testing.T) {
	repo := newStubRepo()
	repo.err = errors.New("db down")
	svc := NewService(repo, nil, nil, nil)

	grants, err := svc.Resolve(context.Background(), 10)
	require.Error(t, err)
	assert.Empty(t, grants.Codes)
	assert.Equal(t, LevelNone, svc.AccessLevel(context.Background(), 10, "users.manage"))
}

func TestServiceResolveSurvivesFirstCallerCancel(t *testing.T) {
	repo := newStubRepo()
	repo.entered = make(chan struct{}, 1)
	repo.gate = make(chan struct{})
	repo.exited = make(chan error, 2)
	svc := NewService(repo, nil, nil, nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Resolve(firstCtx, 10)
		firstErr <- err
	}()
	<-repo.entered
	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(repo.gate)
	require.NoError(t, <-repo.exited)

	grants, err := svc.Resolve(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, grants.RoleName)
	assert.Equal(t, LevelWrite, grants.Level("quotations.manage"))
}

func TestServiceAccessLevelUsesCache(t *testing.T) {
	repo := newStubRepo()
	cache := newMapCache()
	svc := NewService(repo, cache, nil, nil)
	ctx := context.Background()

	assert.Equal(t, LevelWrite, svc.AccessLevel(ctx, 10, "quotations.manage"))
	assert.Equal(t, LevelWrite, cache.entries["user:10:quotations.manage"])
	callsAfterFirst := repo.calls

	assert.Equal(t, LevelWrite, svc.AccessLevel(ctx, 10, "Quotations.Manage"))
	assert.Equal(t, callsAfterFirst, repo.calls)

	repo.err = errors.New("db down")
	assert.Equal(t, LevelWrite, svc.AccessLevel(ctx, 10, "quotations.manage"))
	assert.Equal(t, LevelNone, svc.AccessLevel(ctx, 10, "users.manage"))
	_, cached := cache.entries["user:10:users.manage"]
	assert.False(t, cached)
}

func TestServiceDirectGrantCarriesNoLevel(t *testing.T) {
	svc := NewService(newStubRepo(), nil, nil, nil)
	assert.Equal(t, LevelNone, svc.AccessLevel(context.Background(), 20, "audit.view"))
}

func TestServiceMutationsInvalidateCache(t *testing.T) {
	repo := newStubRepo()
	cache := newMapCache()
	notifier := &recordingNotifier{}
	svc := NewService(repo, cache, notifier, nil)
	ctx := context.Background()

	_, err := svc.WarmCache(ctx, 10)
	require.NoError(t, err)
	_, err = svc.WarmCache(ctx, 20)
	require.NoError(t, err)
	require.Len(t, cache.entries, 3)

	require.NoError(t, svc.GrantUserPermission(ctx, 20, "users.manage", 10))
	assert.NotContains(t, cache.entries, "user:20:quotations.manage")
	assert.Contains(t, cache.entries, "user:10:users.manage")

	require.NoError(t, svc.SetRolePermission(ctx, 1, "quotations.manage", LevelFull))
	assert.Empty(t, cache.entries)
	assert.Equal(t, 1, cache.flushes)
	assert.Equal(t, LevelFull, svc.AccessLevel(ctx, 10, "quotations.manage"))

	assert.Equal(t, []int64{20, 0}, notifier.users)
}

func TestServiceSetRolePermissionValidates(t *testing.T) {
	svc := NewService(newStubRepo(), nil, nil, nil)
	err := svc.SetRolePermission(context.Background(), 1, " ", LevelRead)
	assert.ErrorIs(t, err, ErrValidation)
	err = svc.SetRolePermission(context.Background(), 1, "a.b", AccessLevel(5))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestServiceRoleMatrix(t *testing.T) {
	svc := NewService(newStubRepo(), nil, nil, nil)

	rows, err := svc.RoleMatrix(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	levels := map[string]AccessLevel{}
	for _, row := range rows {
		levels[row.Permission.Code] = row.Level
	}
	assert.Equal(t, LevelNone, levels["audit.view"])
	assert.Equal(t, LevelRead, levels["quotations.manage"])

	_, err = svc.RoleMatrix(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceAssignRoleRequiresRole(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil, nil, nil)
	assert.ErrorIs(t, svc.AssignRole(context.Background(), 20, 42), ErrNotFound)
	require.NoError(t, svc.AssignRole(context.Background(), 20, 1))
	assert.Equal(t, LevelFull, svc.AccessLevel(context.Background(), 20, "users.manage"))
}

func TestServiceCreateRole(t *testing.T) {
	svc := NewService(newStubRepo(), nil, nil, nil)
	role, err := svc.CreateRole(context.Background(), " sales ", "Sales team", 4)
	require.NoError(t, err)
	assert.Equal(t, "SALES", role.Name)

	_, err = svc.CreateRole(context.Background(), "", "", 1)
	assert.ErrorIs(t, err, ErrValidation)
}
