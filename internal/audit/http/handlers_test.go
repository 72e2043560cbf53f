package audithttp

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

	"github.com/assettrack/assettrack/internal/audit"
	"github.com/assettrack/assettrack/internal/rbac"
	"github.com/assettrack/assettrack/internal/shared"
	_ "github.com/assettrack/assettrack/testing"
)

type stubRepo struct {
	entries  []audit.Entry
	lastList audit.Filters
}

func (s *stubRepo) Insert(_ context.Context, e audit.Entry) error {
	e.ID = int64(len(s.entries) + 1)
	s.entries = append(s.entries, e)
	return nil
}

func (s *stubRepo) List(_ context.Context, f audit.Filters) ([]audit.Entry, error) {
	s.lastList = f
	out := make([]audit.Entry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *stubRepo) Clear(context.Context) (int64, error) {
	n := int64(len(s.entries))
	s.entries = nil
	return n, nil
}

type noStoredRoles struct{}

func (noStoredRoles) LoadRolePermissions(context.Context) (map[string][]string, error) {
	return nil, nil
}

func newRouter(t *testing.T, principal *shared.Principal) (http.Handler, *stubRepo) {
	t.Helper()
	repo := &stubRepo{}
	svc := audit.NewService(repo, nil, nil, 0)
	svc.Record(context.Background(), audit.NewEntry(shared.Principal{UserID: 9, Role: rbac.RoleOperator}, audit.ActionLogin, "Login op@example.com"))
	mw := rbac.Middleware{Resolver: rbac.NewResolver(noStoredRoles{}, rbac.ResolverConfig{})}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if principal != nil {
				req = req.WithContext(shared.ContextWithPrincipal(req.Context(), *principal))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Use(mw.Attach)
	NewHandler(nil, svc, mw).MountRoutes(r)
	return r, repo
}

func TestListRequiresAuditView(t *testing.T) {
	router, _ := newRouter(t, &shared.Principal{UserID: 2, Role: rbac.RoleOperator})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestListReturnsLogs(t *testing.T) {
	router, repo := newRouter(t, &shared.Principal{UserID: 2, Role: rbac.RoleSupervisor})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit?limit=10&action=login&userId=9", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		Logs []audit.Entry `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Logs, 1)
	assert.Equal(t, audit.ActionLogin, body.Logs[0].Action)
	assert.Equal(t, audit.Filters{Action: "login", UserID: 9, Limit: 10}, repo.lastList)
}

func TestListRejectsBadFilters(t *testing.T) {
	router, _ := newRouter(t, &shared.Principal{UserID: 1, Role: rbac.RoleAdmin})
	for _, q := range []string{"limit=abc", "limit=-1", "userId=x"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestClearRequiresAuditClear(t *testing.T) {
	router, repo := newRouter(t, &shared.Principal{UserID: 2, Role: rbac.RoleSupervisor})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/audit", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Len(t, repo.entries, 1)
}

func TestClearRecordsActor(t *testing.T) {
	router, repo := newRouter(t, &shared.Principal{UserID: 1, Role: rbac.RoleAdmin})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/audit", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"ok":true,"removed":1}`, rr.Body.String())

	require.Len(t, repo.entries, 1)
	assert.Equal(t, audit.ActionClearAudit, repo.entries[0].Action)
	require.NotNil(t, repo.entries[0].UserID)
	assert.Equal(t, int64(1), *repo.entries[0].UserID)
}

func TestExportCSVIsRateLimited(t *testing.T) {
	router, _ := newRouter(t, &shared.Principal{UserID: 1, Role: rbac.RoleAdmin})
	for i := 0; i < rateLimit; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/export.csv", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(rr.Body.String(), "id,created_at"))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/export.csv", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestRateLimitKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/audit/export.csv", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	key, err := rateLimitKey(req)
	require.NoError(t, err)
	assert.Equal(t, "ip:10.0.0.7", key)

	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: 42}))
	key, err = rateLimitKey(req)
	require.NoError(t, err)
	assert.Equal(t, "user:42", key)
}
