package shared

import (
	"context"
	"strings"
	"time"
)

type sessionContextKey struct{}

type authContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// AuthContext describes the authenticated principal of a request.
type AuthContext struct {
	UserID      int64
	Email       string
	RoleID      int64
	RoleName    string
	Permissions []string
	Method      string
	IssuedAt    time.Time
}

// Has reports whether the principal carries the permission code.
func (a *AuthContext) Has(code string) bool {
	if a == nil {
		return false
	}
	code = strings.ToLower(strings.TrimSpace(code))
	for _, p := range a.Permissions {
		if strings.ToLower(p) == code {
			return true
		}
	}
	return false
}

// ContextWithAuth stores the principal in context.
func ContextWithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// AuthFromContext returns the principal or nil for anonymous requests.
func AuthFromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}

// ActorID returns the user id of the principal, 0 when anonymous.
func ActorID(ctx context.Context) int64 {
	if auth := AuthFromContext(ctx); auth != nil {
		return auth.UserID
	}
	return 0
}
