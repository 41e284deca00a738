package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

func serveGuard(t *testing.T, guard func(http.Handler) http.Handler, auth *shared.AuthContext) int {
	t.Helper()
	handler := guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	if auth != nil {
		req = req.WithContext(shared.ContextWithAuth(req.Context(), auth))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestLevelGuards(t *testing.T) {
	mw := NewMiddleware(NewService(newStubRepo(), nil, nil, nil), nil)
	admin := &shared.AuthContext{UserID: 10}
	client := &shared.AuthContext{UserID: 20}

	cases := []struct {
		name  string
		guard func(http.Handler) http.Handler
		auth  *shared.AuthContext
		want  int
	}{
		{"anonymous read", mw.RequireRead("quotations.manage"), nil, http.StatusUnauthorized},
		{"client read", mw.RequireRead("quotations.manage"), client, http.StatusNoContent},
		{"client write", mw.RequireWrite("quotations.manage"), client, http.StatusForbidden},
		{"admin write", mw.RequireWrite("quotations.manage"), admin, http.StatusNoContent},
		{"admin full rejects write", mw.RequireFull("quotations.manage"), admin, http.StatusForbidden},
		{"admin full", mw.RequireFull("users.manage"), admin, http.StatusNoContent},
		{"write accepts full", mw.RequireWrite("users.manage"), admin, http.StatusNoContent},
		{"direct grant has no level", mw.RequireRead("audit.view"), client, http.StatusForbidden},
		{"unknown user", mw.RequireRead("quotations.manage"), &shared.AuthContext{UserID: 99}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, serveGuard(t, tc.guard, tc.auth))
		})
	}
}

func TestGuardsFailClosedOnLookupError(t *testing.T) {
	repo := newStubRepo()
	repo.err = errors.New("db down")
	mw := NewMiddleware(NewService(repo, nil, nil, nil), nil)
	auth := &shared.AuthContext{UserID: 10}

	assert.Equal(t, http.StatusForbidden, serveGuard(t, mw.RequireRead("quotations.manage"), auth))
	assert.Equal(t, http.StatusForbidden, serveGuard(t, mw.RequireAny("quotations.manage"), auth))
	assert.Equal(t, http.StatusForbidden, serveGuard(t, mw.RequireAll("quotations.manage"), auth))
}

func TestCodeGuards(t *testing.T) {
	mw := NewMiddleware(NewService(newStubRepo(), nil, nil, nil), nil)
	client := &shared.AuthContext{UserID: 20}

	assert.Equal(t, http.StatusNoContent, serveGuard(t, mw.RequireAny("users.manage", "audit.view"), client))
	assert.Equal(t, http.StatusForbidden, serveGuard(t, mw.RequireAll("users.manage", "audit.view"), client))
	assert.Equal(t, http.StatusNoContent, serveGuard(t, mw.RequireAll("audit.view", "quotations.manage"), client))
	assert.Equal(t, http.StatusNoContent, serveGuard(t, mw.RequireAny(), nil))
	assert.Equal(t, http.StatusUnauthorized, serveGuard(t, mw.RequireAll("audit.view"), nil))
}

type fixedChecker AccessLevel

func (f fixedChecker) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return nil, nil
}

func (f fixedChecker) AccessLevel(ctx context.Context, userID int64, code string) AccessLevel {
	return AccessLevel(f)
}

func TestRequireLevelMonotone(t *testing.T) {
	auth := &shared.AuthContext{UserID: 1}
	levels := []AccessLevel{LevelNone, LevelRead, LevelWrite, LevelFull}
	for _, held := range levels {
		mw := NewMiddleware(fixedChecker(held), nil)
		for _, required := range levels {
			want := http.StatusForbidden
			if held >= required {
				want = http.StatusNoContent
			}
			assert.Equal(t, want, serveGuard(t, mw.RequireLevel("x.y", required), auth), "held %s required %s", held, required)
		}
	}
}
