package audithttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-quotes/internal/audit"
	"github.com/odyssey-erp/odyssey-quotes/internal/rbac"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.TimelineRow
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubTimelineService) Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.lastFilters = filters
	return s.exportRows, nil
}

type stubAuditRBAC struct {
	level rbac.AccessLevel
}

func (s stubAuditRBAC) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return nil, nil
}

func (s stubAuditRBAC) AccessLevel(ctx context.Context, userID int64, code string) rbac.AccessLevel {
	if code != shared.PermAuditView {
		return rbac.LevelNone
	}
	return s.level
}

func newAuditRouter(service *stubTimelineService, level rbac.AccessLevel) http.Handler {
	handler := NewHandler(nil, service, audit.NewExporter(nil), rbac.NewMiddleware(stubAuditRBAC{level: level}, nil))
	handler.now = func() time.Time { return time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/audit", handler.MountRoutes)
	return r
}

func authed(req *http.Request) *http.Request {
	return req.WithContext(shared.ContextWithAuth(req.Context(), &shared.AuthContext{UserID: 7}))
}

func TestTimelineRequiresPermission(t *testing.T) {
	router := newAuditRouter(&stubTimelineService{}, rbac.LevelNone)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authed(httptest.NewRequest(http.MethodGet, "/audit/", nil)))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestTimelineReturnsRows(t *testing.T) {
	rows := []audit.TimelineRow{{At: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC), Actor: "auditor", Action: "snapshot.update", Entity: "snapshot", EntityID: "1"}}
	service := &stubTimelineService{result: audit.Result{Rows: rows, Paging: audit.PagingInfo{Page: 1, PageSize: 20}}}
	router := newAuditRouter(service, rbac.LevelRead)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authed(httptest.NewRequest(http.MethodGet, "/audit/?from=2026-03-01&to=2026-03-15", nil)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"actor":"auditor"`) {
		t.Fatalf("expected actor in response: %s", rr.Body.String())
	}
	if service.lastFilters.From.Format(time.DateOnly) != "2026-03-01" {
		t.Fatalf("unexpected filters: %+v", service.lastFilters)
	}
	if service.lastFilters.To.Format(time.DateOnly) != "2026-03-16" {
		t.Fatalf("expected inclusive upper bound, got %s", service.lastFilters.To)
	}
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	router := newAuditRouter(&stubTimelineService{}, rbac.LevelRead)
	for _, query := range []string{"from=2026-03-10&to=2026-03-01", "to=yesterday", "page=0", "from=2025-01-01&to=2026-03-01"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authed(httptest.NewRequest(http.MethodGet, "/audit/?"+query, nil)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, rr.Code)
		}
	}
}

func TestExportCSV(t *testing.T) {
	service := &stubTimelineService{exportRows: []audit.TimelineRow{{Actor: "auditor"}}}
	router := newAuditRouter(service, rbac.LevelRead)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authed(httptest.NewRequest(http.MethodGet, "/audit/export.csv?from=2026-03-01&to=2026-03-05", nil)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ctype := rr.Header().Get("Content-Type"); !strings.Contains(ctype, "text/csv") {
		t.Fatalf("unexpected content-type: %s", ctype)
	}
	if !strings.Contains(rr.Body.String(), "auditor") {
		t.Fatalf("expected row in csv: %s", rr.Body.String())
	}
}
