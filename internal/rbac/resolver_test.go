package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveMergesRoleAndDirectGrants(t *testing.T) {
	grants := Resolve(
		[]RolePermission{
			{Code: "users.manage", Level: LevelRead},
			{Code: "audit.view", Level: LevelNone},
			{Code: "packages.manage", Level: LevelWrite},
		},
		[]UserPermission{{Code: "audit.view"}, {Code: "Users.Manage"}},
	)

	assert.Equal(t, []string{"audit.view", "packages.manage", "users.manage"}, grants.Codes)
	assert.True(t, grants.Has("audit.view"))
	assert.Equal(t, LevelNone, grants.Level("audit.view"))
	assert.Equal(t, LevelRead, grants.Level("users.manage"))
	assert.Equal(t, LevelWrite, grants.Level("PACKAGES.MANAGE"))
	assert.False(t, grants.Has("roles.manage"))
}

func TestResolveKeepsHighestLevelPerCode(t *testing.T) {
	grants := Resolve([]RolePermission{
		{Code: "quotations.manage", Level: LevelRead},
		{Code: "quotations.manage", Level: LevelFull},
		{Code: "quotations.manage", Level: LevelWrite},
	}, nil)
	assert.Equal(t, LevelFull, grants.Level("quotations.manage"))
	assert.Len(t, grants.Codes, 1)
}

func TestResolveIgnoresInvalidInput(t *testing.T) {
	grants := Resolve(
		[]RolePermission{{Code: "", Level: LevelFull}, {Code: "x.y", Level: AccessLevel(7)}},
		[]UserPermission{{Code: "  "}},
	)
	assert.Empty(t, grants.Codes)
	assert.False(t, grants.Has("x.y"))
}

func TestResolveEmpty(t *testing.T) {
	grants := Resolve(nil, nil)
	assert.NotNil(t, grants.Codes)
	assert.Empty(t, grants.Codes)
	assert.Equal(t, LevelNone, grants.Level("anything"))
}
