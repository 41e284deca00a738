package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// Checker answers permission questions for a user.
type Checker interface {
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
	AccessLevel(ctx context.Context, userID int64, code string) AccessLevel
}

// Middleware enforces permissions on HTTP handlers. Every guard fails closed:
// anonymous requests get 401 and lookup errors get 403.
type Middleware struct {
	Service Checker
	Logger  *slog.Logger
}

// NewMiddleware constructs RBAC middleware.
func NewMiddleware(service Checker, logger *slog.Logger) Middleware {
	return Middleware{Service: service, Logger: logger}
}

// RequireAny ensures the current user has at least one of the permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.requireCodes("rbac require any", normalizePermissions(perms), hasAnyPermission)
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.requireCodes("rbac require all", normalizePermissions(perms), hasAllPermissions)
}

// RequireRead admits users holding at least read on code.
func (m Middleware) RequireRead(code string) func(http.Handler) http.Handler {
	return m.RequireLevel(code, LevelRead)
}

// RequireWrite admits users holding at least write on code.
func (m Middleware) RequireWrite(code string) func(http.Handler) http.Handler {
	return m.RequireLevel(code, LevelWrite)
}

// RequireFull admits users holding full on code.
func (m Middleware) RequireFull(code string) func(http.Handler) http.Handler {
	return m.RequireLevel(code, LevelFull)
}

// RequireLevel admits users whose level on code is at least required.
func (m Middleware) RequireLevel(code string, required AccessLevel) func(http.Handler) http.Handler {
	code = normalizeCode(code)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := shared.AuthFromContext(r.Context())
			if auth == nil || auth.UserID == 0 {
				unauthorized(w)
				return
			}
			if m.Service == nil {
				forbidden(w)
				return
			}
			level := m.Service.AccessLevel(r.Context(), auth.UserID, code)
			if !level.Allows(required) {
				m.logDenied(r, auth.UserID, code, level, required)
				forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) requireCodes(op string, normalized []string, match func(granted, required []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			auth := shared.AuthFromContext(r.Context())
			if auth == nil || auth.UserID == 0 {
				unauthorized(w)
				return
			}
			if m.Service == nil {
				forbidden(w)
				return
			}
			granted, err := m.Service.EffectivePermissions(r.Context(), auth.UserID)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error(op, slog.Int64("user_id", auth.UserID), slog.Any("error", err))
				}
				forbidden(w)
				return
			}
			if match(granted, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			forbidden(w)
		})
	}
}

func (m Middleware) logDenied(r *http.Request, userID int64, code string, level, required AccessLevel) {
	if m.Logger == nil {
		return
	}
	m.Logger.Debug("rbac level denied",
		slog.Int64("user_id", userID),
		slog.String("code", code),
		slog.String("level", level.String()),
		slog.String("required", required.String()),
		slog.String("path", r.URL.Path),
	)
}

func unauthorized(w http.ResponseWriter) {
	httpx.Problem(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized), "authentication required")
}

func forbidden(w http.ResponseWriter) {
	httpx.Problem(w, http.StatusForbidden, http.StatusText(http.StatusForbidden), "insufficient permissions")
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = normalizeCode(p)
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAnyPermission(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
