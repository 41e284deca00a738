package rbac

import (
	"sort"
	"strings"
)

// Grants is the effective permission set of a user.
//
// Role grants and direct user grants are two parallel mechanisms: both add codes
// to the effective set, but only role grants carry an AccessLevel. A code held
// only through a direct grant satisfies Has and reports LevelNone from Level.
type Grants struct {
	RoleID     int64
	RoleName   string
	Codes      []string
	RoleLevels map[string]AccessLevel
	Direct     map[string]struct{}
}

// Resolve merges role grants and direct grants into effective grants.
// Role grants at LevelNone do not contribute.
func Resolve(roleGrants []RolePermission, direct []UserPermission) Grants {
	g := Grants{
		RoleLevels: make(map[string]AccessLevel, len(roleGrants)),
		Direct:     make(map[string]struct{}, len(direct)),
	}
	seen := make(map[string]struct{}, len(roleGrants)+len(direct))
	for _, rp := range roleGrants {
		code := normalizeCode(rp.Code)
		if code == "" || !rp.Level.Valid() || rp.Level == LevelNone {
			continue
		}
		if current, ok := g.RoleLevels[code]; !ok || rp.Level > current {
			g.RoleLevels[code] = rp.Level
		}
		seen[code] = struct{}{}
	}
	for _, up := range direct {
		code := normalizeCode(up.Code)
		if code == "" {
			continue
		}
		g.Direct[code] = struct{}{}
		seen[code] = struct{}{}
	}
	g.Codes = make([]string, 0, len(seen))
	for code := range seen {
		g.Codes = append(g.Codes, code)
	}
	sort.Strings(g.Codes)
	return g
}

// Has reports whether code is in the effective set.
func (g Grants) Has(code string) bool {
	code = normalizeCode(code)
	if _, ok := g.RoleLevels[code]; ok {
		return true
	}
	_, ok := g.Direct[code]
	return ok
}

// Level returns the role-derived level of code.
func (g Grants) Level(code string) AccessLevel {
	if lvl, ok := g.RoleLevels[normalizeCode(code)]; ok {
		return lvl
	}
	return LevelNone
}

func normalizeCode(code string) string {
	return strings.TrimSpace(strings.ToLower(code))
}
