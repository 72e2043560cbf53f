package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assettrack/assettrack/internal/auth"
	"github.com/assettrack/assettrack/internal/observability"
	"github.com/assettrack/assettrack/internal/rbac"
	"github.com/assettrack/assettrack/internal/users"
	_ "github.com/assettrack/assettrack/testing"
)

type singleUser struct {
	user users.User
}

func (s singleUser) List(context.Context) ([]users.User, error) { return []users.User{s.user}, nil }

func (s singleUser) Get(_ context.Context, id int64) (users.User, error) {
	if id != s.user.ID {
		return users.User{}, users.ErrNotFound
	}
	return s.user, nil
}

func (s singleUser) FindByUsername(_ context.Context, username string) (users.User, error) {
	if username != s.user.Username {
		return users.User{}, users.ErrNotFound
	}
	return s.user, nil
}

func (s singleUser) Create(context.Context, users.User) (users.User, error) {
	return users.User{}, users.ErrUsernameTaken
}

func (s singleUser) CreateFirst(context.Context, users.User) (users.User, error) {
	return users.User{}, users.ErrUsersExist
}

func (s singleUser) Delete(context.Context, int64) error { return nil }

func (s singleUser) SetActive(context.Context, int64, bool) (users.User, error) { return s.user, nil }

type noStoredRoles struct{}

func (noStoredRoles) LoadRolePermissions(context.Context) (map[string][]string, error) {
	return nil, nil
}

type routerFixture struct {
	handler http.Handler
	token   string
}

func newRouterFixture(t *testing.T, cfg *Config) routerFixture {
	t.Helper()
	if cfg == nil {
		cfg = &Config{AuthRateLimit: 3, APIRateLimit: 1000, CORSOrigins: []string{"https://ui.example.com"}}
	}
	repo := singleUser{user: users.User{ID: 1, Name: "Admin", Username: "admin@example.com", Role: rbac.RoleAdmin, IsActive: true}}
	tokens, err := auth.NewTokens("router-secret", time.Hour)
	require.NoError(t, err)
	resolver := rbac.NewResolver(noStoredRoles{}, rbac.ResolverConfig{})
	mw := rbac.Middleware{Resolver: resolver}
	authService := auth.NewService(repo, tokens, resolver, nil, nil)

	token, _, err := tokens.Issue(repo.user)
	require.NoError(t, err)

	handler := NewRouter(RouterParams{
		Config:         cfg,
		Authenticator:  auth.NewAuthenticator(tokens, repo, nil),
		RBACMiddleware: mw,
		AuthHandler:    auth.NewHandler(nil, authService),
		Metrics:        observability.NewMetrics(),
	})
	return routerFixture{handler: handler, token: token}
}

func (f routerFixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.RemoteAddr = "192.0.2.10:4000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoints(t *testing.T) {
	f := newRouterFixture(t, nil)
	for _, path := range []string{"/", "/health"} {
		rr := f.do(http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rr.Code, path)
		assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.do(http.MethodGet, "/health", "", nil)
	rr := f.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "assettrack_http_requests_total")
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	f := newRouterFixture(t, nil)
	rr := f.do(http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"error":"Missing token"}`, rr.Body.String())

	rr = f.do(http.MethodGet, "/api/me", "", map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"error":"Invalid token"}`, rr.Body.String())

	rr = f.do(http.MethodGet, "/api/me", "", map[string]string{"Authorization": "Bearer " + f.token})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"admin@example.com"`)
}

func TestLoginIsRateLimited(t *testing.T) {
	f := newRouterFixture(t, nil)
	body := `{"username":"admin@example.com","password":"wrong-password"}`
	for i := 0; i < 3; i++ {
		rr := f.do(http.MethodPost, "/api/login", body, nil)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}
	rr := f.do(http.MethodPost, "/api/login", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.JSONEq(t, `{"error":"Too many requests"}`, rr.Body.String())

	// The stricter limit does not spill over to authenticated routes.
	rr = f.do(http.MethodGet, "/api/me", "", map[string]string{"Authorization": "Bearer " + f.token})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newRouterFixture(t, nil)
	rr := f.do(http.MethodOptions, "/api/devices", "", map[string]string{
		"Origin":                         "https://ui.example.com",
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "authorization,content-type",
	})
	assert.Equal(t, "https://ui.example.com", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = f.do(http.MethodOptions, "/api/devices", "", map[string]string{
		"Origin":                        "https://evil.example.com",
		"Access-Control-Request-Method": http.MethodPost,
	})
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRouteIsJSON(t *testing.T) {
	f := newRouterFixture(t, nil)
	rr := f.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"Not found"}`, rr.Body.String())
}
