package rbac

import (
	"fmt"
	"strings"
)

// AccessLevel gates an operation on a permission code. Levels are totally
// ordered: none < read < write < full.
type AccessLevel int

const (
	LevelNone AccessLevel = iota
	LevelRead
	LevelWrite
	LevelFull
)

var levelNames = [...]string{"none", "read", "write", "full"}

// ParseAccessLevel parses a level name. Unknown names yield LevelNone and an error.
func ParseAccessLevel(s string) (AccessLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range levelNames {
		if n == name {
			return AccessLevel(i), nil
		}
	}
	return LevelNone, fmt.Errorf("rbac: unknown access level %q", s)
}

// Valid reports whether l is one of the defined levels.
func (l AccessLevel) Valid() bool {
	return l >= LevelNone && l <= LevelFull
}

// String returns the level name.
func (l AccessLevel) String() string {
	if !l.Valid() {
		return levelNames[LevelNone]
	}
	return levelNames[l]
}

// Allows reports whether l satisfies the required level.
func (l AccessLevel) Allows(required AccessLevel) bool {
	return l.Valid() && l >= required
}

// MarshalText implements encoding.TextMarshaler.
func (l AccessLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *AccessLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseAccessLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
