package rbac

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessLevelOrdering(t *testing.T) {
	assert.True(t, LevelNone < LevelRead)
	assert.True(t, LevelRead < LevelWrite)
	assert.True(t, LevelWrite < LevelFull)
}

func TestParseAccessLevel(t *testing.T) {
	for name, want := range map[string]AccessLevel{
		"none":   LevelNone,
		"read":   LevelRead,
		" Write": LevelWrite,
		"FULL":   LevelFull,
	} {
		got, err := ParseAccessLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	got, err := ParseAccessLevel("admin")
	assert.Error(t, err)
	assert.Equal(t, LevelNone, got)
}

func TestAllowsIsMonotone(t *testing.T) {
	levels := []AccessLevel{LevelNone, LevelRead, LevelWrite, LevelFull}
	for _, required := range levels {
		accepted := false
		for _, held := range levels {
			if held.Allows(required) {
				accepted = true
			} else {
				assert.False(t, accepted, "%s rejected after a lower level passed %s", held, required)
			}
		}
	}
	assert.False(t, LevelWrite.Allows(LevelFull))
	assert.True(t, LevelFull.Allows(LevelWrite))
	assert.False(t, AccessLevel(9).Allows(LevelRead))
}

func TestAccessLevelJSON(t *testing.T) {
	raw, err := json.Marshal(MatrixRow{Permission: Permission{Code: "users.manage"}, Level: LevelWrite})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"access_level":"write"`)

	var row MatrixRow
	require.NoError(t, json.Unmarshal([]byte(`{"access_level":"full"}`), &row))
	assert.Equal(t, LevelFull, row.Level)
	assert.Error(t, json.Unmarshal([]byte(`{"access_level":"owner"}`), &row))
}
