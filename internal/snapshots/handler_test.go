package snapshots

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-quotes/internal/rbac"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

type levelChecker struct{ level rbac.AccessLevel }

func (levelChecker) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return nil, nil
}

func (c levelChecker) AccessLevel(ctx context.Context, userID int64, code string) rbac.AccessLevel {
	if code != shared.PermPackagesManage {
		return rbac.LevelNone
	}
	return c.level
}

const snapshotBody = `{"name":"Plan Web","pricing":{"desarrollo":1000,"serviciosBase":[],"otrosServicios":[],
	"configDescuentos":{"tipoDescuento":"ninguno","descuentoPagoUnico":10,"descuentoDirecto":5}}}`

func newRouter(level rbac.AccessLevel) (chi.Router, *stubRepo) {
	repo := newStubRepo()
	svc := NewService(repo, nil, nil, nil, nil)
	r := chi.NewRouter()
	r.Route("/snapshots", NewHandler(nil, svc, rbac.NewMiddleware(levelChecker{level: level}, nil)).MountRoutes)
	r.Route("/p", NewPublicHandler(nil, svc).MountRoutes)
	return r, repo
}

func serve(r http.Handler, method, path, body string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authed {
		req = req.WithContext(shared.ContextWithAuth(req.Context(), &shared.AuthContext{UserID: 1}))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerLevelGuards(t *testing.T) {
	cases := []struct {
		level  rbac.AccessLevel
		method string
		path   string
		body   string
		want   int
	}{
		{rbac.LevelNone, http.MethodGet, "/snapshots/", "", http.StatusForbidden},
		{rbac.LevelRead, http.MethodGet, "/snapshots/", "", http.StatusOK},
		{rbac.LevelRead, http.MethodPost, "/snapshots/", snapshotBody, http.StatusForbidden},
		{rbac.LevelWrite, http.MethodPost, "/snapshots/", snapshotBody, http.StatusCreated},
		{rbac.LevelWrite, http.MethodDelete, "/snapshots/1", "", http.StatusForbidden},
		{rbac.LevelFull, http.MethodDelete, "/snapshots/1", "", http.StatusNotFound},
		{rbac.LevelRead, http.MethodPost, "/snapshots/preview", `{"desarrollo":100}`, http.StatusOK},
	}
	for _, tc := range cases {
		r, _ := newRouter(tc.level)
		rec := serve(r, tc.method, tc.path, tc.body, true)
		assert.Equal(t, tc.want, rec.Code, "%s %s at %s", tc.method, tc.path, tc.level)
	}

	r, _ := newRouter(rbac.LevelFull)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/snapshots/", "", false).Code)
}

func TestHandlerLifecycle(t *testing.T) {
	r, repo := newRouter(rbac.LevelFull)

	rec := serve(r, http.MethodPost, "/snapshots/", snapshotBody, true)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = serve(r, http.MethodGet, "/snapshots/1/preview", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalConDescuentos":855`)

	rec = serve(r, http.MethodGet, "/p/"+created.PublicID.String(), "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Plan Web"`)

	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/p/not-a-uuid", "", false).Code)

	rec = serve(r, http.MethodPut, "/snapshots/1", `{"name":"Plan Web","active":false,"pricing":{"desarrollo":1}}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/p/"+created.PublicID.String(), "", false).Code)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/snapshots/", `{"pricing":{}}`, true).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/snapshots/abc", "", true).Code)

	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodDelete, "/snapshots/1", "", true).Code)
	assert.Empty(t, repo.items)
}
