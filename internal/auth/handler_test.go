package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-quotes/internal/auth"
	"github.com/odyssey-erp/odyssey-quotes/internal/rbac"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
	_ "github.com/odyssey-erp/odyssey-quotes/testing"
)

type stubRepo struct {
	user     *auth.User
	sessions map[string]int64
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	if s.sessions == nil {
		s.sessions = map[string]int64{}
	}
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type stubResolver struct {
	grants rbac.Grants
	err    error
	warmed []int64
}

func (s *stubResolver) Resolve(ctx context.Context, userID int64) (rbac.Grants, error) {
	if s.err != nil {
		return rbac.Resolve(nil, nil), s.err
	}
	return s.grants, nil
}

func (s *stubResolver) WarmCache(ctx context.Context, userID int64) (rbac.Grants, error) {
	s.warmed = append(s.warmed, userID)
	return s.Resolve(ctx, userID)
}

func (s *stubResolver) AccessLevel(ctx context.Context, userID int64, code string) rbac.AccessLevel {
	if s.err != nil {
		return rbac.LevelNone
	}
	return s.grants.Level(code)
}

type recordingAudit struct{ actions []string }

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

func testUser(t *testing.T) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.User{ID: 1, Email: "user@test.local", Name: "Test User", PasswordHash: string(hashed), IsActive: true}
}

func adminGrants() rbac.Grants {
	grants := rbac.Resolve([]rbac.RolePermission{
		{Code: "quotations.manage", Level: rbac.LevelFull},
		{Code: "packages.manage", Level: rbac.LevelRead},
	}, nil)
	grants.RoleID = 2
	grants.RoleName = rbac.RoleAdmin
	return grants
}

type fixture struct {
	handler  http.Handler
	sessions *shared.SessionManager
	resolver *stubResolver
	repo     *stubRepo
	audit    *recordingAudit
	service  *auth.Service
}

func newFixture(t *testing.T, repo *stubRepo) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	resolver := &stubResolver{grants: adminGrants()}
	audit := &recordingAudit{}
	service := auth.NewService(repo, resolver, auth.NewTokenService("jwt-secret", time.Hour))
	h := auth.NewHandler(nil, service, sessionManager, csrfManager, audit)

	r := chiRouter(h)
	withSession := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sess, err := sessionManager.Load(req.Context(), req)
		require.NoError(t, err)
		ctx := shared.ContextWithSession(req.Context(), sess)
		req = req.WithContext(ctx)
		cw := &commitWriter{ResponseWriter: w, ctx: ctx, req: req, sess: sess, sessions: sessionManager}
		auth.Authenticator(service, nil)(r).ServeHTTP(cw, req)
	})
	return &fixture{handler: withSession, sessions: sessionManager, resolver: resolver, repo: repo, audit: audit, service: service}
}

func postJSON(t *testing.T, h http.Handler, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t, &stubRepo{user: testUser(t)})

	rec := postJSON(t, f.handler, "/auth/login", `{"email":"user@test.local","password":"wrongpass"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid email or password")
	assert.Empty(t, f.audit.actions)
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t, &stubRepo{user: testUser(t)})

	rec := postJSON(t, f.handler, "/auth/login", `{"email":"not-an-email","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "email", body.Errors["Email"])
	assert.Equal(t, "min", body.Errors["Password"])

	rec = postJSON(t, f.handler, "/auth/login", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginIssuesSessionAndToken(t *testing.T) {
	f := newFixture(t, &stubRepo{user: testUser(t)})

	rec := postJSON(t, f.handler, "/auth/login", `{"email":"user@test.local","password":"correctpass"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		UserID      int64    `json:"user_id"`
		Role        string   `json:"role"`
		Permissions []string `json:"permissions"`
		Token       string   `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.UserID)
	assert.Equal(t, rbac.RoleAdmin, body.Role)
	assert.Equal(t, []string{"packages.manage", "quotations.manage"}, body.Permissions)
	assert.NotEmpty(t, body.Token)
	assert.Equal(t, []int64{1}, f.resolver.warmed)
	assert.Equal(t, []string{"auth.login"}, f.audit.actions)
	assert.Len(t, f.repo.sessions, 1)

	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == f.sessions.CookieName() {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)

	meReq := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	meReq.AddCookie(sessionCookie)
	meRec := httptest.NewRecorder()
	f.handler.ServeHTTP(meRec, meReq)
	require.Equal(t, http.StatusOK, meRec.Code)
	assert.Contains(t, meRec.Body.String(), `"quotations.manage":"full"`)
	assert.Contains(t, meRec.Body.String(), `"method":"session"`)

	tokenReq := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	tokenReq.Header.Set("Authorization", "Bearer "+body.Token)
	tokenRec := httptest.NewRecorder()
	f.handler.ServeHTTP(tokenRec, tokenReq)
	require.Equal(t, http.StatusOK, tokenRec.Code)
	assert.Contains(t, tokenRec.Body.String(), `"method":"token"`)
	assert.Contains(t, tokenRec.Body.String(), `"email":"user@test.local"`)
}

func TestMeRequiresAuthentication(t *testing.T) {
	f := newFixture(t, &stubRepo{user: testUser(t)})

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginFailsWhenPermissionsCannotResolve(t *testing.T) {
	f := newFixture(t, &stubRepo{user: testUser(t)})
	f.resolver.err = errors.New("db down")

	rec := postJSON(t, f.handler, "/auth/login", `{"email":"user@test.local","password":"correctpass"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, f.repo.sessions)
}

func TestCSRFEndpoint(t *testing.T) {
	f := newFixture(t, &stubRepo{})

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/csrf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["csrf_token"])
}

func TestLogout(t *testing.T) {
	f := newFixture(t, &stubRepo{user: testUser(t)})
	login := postJSON(t, f.handler, "/auth/login", `{"email":"user@test.local","password":"correctpass"}`)
	require.Equal(t, http.StatusOK, login.Code)

	rec := postJSON(t, f.handler, "/auth/logout", ``, login.Result().Cookies()...)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.repo.sessions)
	assert.Equal(t, []string{"auth.login", "auth.logout"}, f.audit.actions)
}
