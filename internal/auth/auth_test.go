package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/assettrack/assettrack/internal/audit"
	"github.com/assettrack/assettrack/internal/platform/httpx"
	"github.com/assettrack/assettrack/internal/rbac"
	"github.com/assettrack/assettrack/internal/shared"
	"github.com/assettrack/assettrack/internal/users"
	_ "github.com/assettrack/assettrack/testing"
)

type stubUsers struct {
	mu    sync.Mutex
	users []users.User
}

func (s *stubUsers) List(context.Context) ([]users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]users.User(nil), s.users...), nil
}

func (s *stubUsers) Get(_ context.Context, id int64) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return users.User{}, users.ErrNotFound
}

func (s *stubUsers) FindByUsername(_ context.Context, username string) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return users.User{}, users.ErrNotFound
}

func (s *stubUsers) Create(_ context.Context, user users.User) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.ID = int64(len(s.users) + 1)
	s.users = append(s.users, user)
	return user, nil
}

func (s *stubUsers) CreateFirst(ctx context.Context, user users.User) (users.User, error) {
	s.mu.Lock()
	if len(s.users) > 0 {
		s.mu.Unlock()
		return users.User{}, users.ErrUsersExist
	}
	s.mu.Unlock()
	return s.Create(ctx, user)
}

func (s *stubUsers) Delete(context.Context, int64) error { return nil }

func (s *stubUsers) SetActive(_ context.Context, id int64, active bool) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == id {
			s.users[i].IsActive = active
			return s.users[i], nil
		}
	}
	return users.User{}, users.ErrNotFound
}

type recorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recorder) Record(_ context.Context, e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

type emptySource struct{}

func (emptySource) LoadRolePermissions(context.Context) (map[string][]string, error) {
	return nil, nil
}

type fixture struct {
	repo     *stubUsers
	tokens   *Tokens
	audit    *recorder
	service  *Service
	router   http.Handler
	resolver *rbac.Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := NewTokens("test-secret", time.Hour)
	require.NoError(t, err)
	repo := &stubUsers{}
	rec := &recorder{}
	resolver := rbac.NewResolver(emptySource{}, rbac.ResolverConfig{})
	svc := NewService(repo, tokens, resolver, rec, nil)
	handler := NewHandler(nil, svc)
	authn := NewAuthenticator(tokens, repo, nil)

	r := chi.NewRouter()
	handler.MountPublic(r)
	r.Group(func(r chi.Router) {
		r.Use(authn.Middleware)
		r.Use(rbac.Middleware{Resolver: resolver}.Attach)
		handler.MountRoutes(r)
	})
	return &fixture{repo: repo, tokens: tokens, audit: rec, service: svc, router: r, resolver: resolver}
}

func (f *fixture) addUser(t *testing.T, username, password, role string, active bool) users.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u, err := f.repo.Create(context.Background(), users.User{
		Name: username, Username: username, Role: role, IsActive: active,
		PasswordHash: string(hash), Locations: []string{"Depot A"},
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func errorMessage(t *testing.T, res *httptest.ResponseRecorder) string {
	t.Helper()
	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	return body.Error
}

func TestTokensRoundTrip(t *testing.T) {
	tokens, err := NewTokens("s3cret", 0)
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return now }

	raw, expires, err := tokens.Issue(users.User{ID: 42, Username: "a@example.com", Role: "Operator"})
	require.NoError(t, err)
	assert.Equal(t, now.Add(12*time.Hour), expires)

	claims, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.EqualValues(t, 42, claims.UserID)
	assert.Equal(t, "a@example.com", claims.Username)
	assert.Equal(t, "Operator", claims.Role)
	assert.NotEmpty(t, claims.ID)

	now = now.Add(13 * time.Hour)
	_, err = tokens.Parse(raw)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestTokensRejectForeignSignatures(t *testing.T) {
	tokens, err := NewTokens("s3cret", time.Hour)
	require.NoError(t, err)
	other, err := NewTokens("different", time.Hour)
	require.NoError(t, err)

	raw, _, err := other.Issue(users.User{ID: 1})
	require.NoError(t, err)
	_, err = tokens.Parse(raw)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.Parse(unsigned)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)

	_, err = NewTokens("", time.Hour)
	assert.Error(t, err)
}

func TestBootstrapOnlyOnce(t *testing.T) {
	f := newFixture(t)

	res := f.do(t, http.MethodPost, "/bootstrap", `{"name":"Root","username":"Root@Example.com","password":"password1"}`, "")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var session Session
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &session))
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, rbac.RoleAdmin, session.User.Role)
	assert.Equal(t, "root@example.com", session.User.Username)
	assert.True(t, session.User.IsActive)

	res = f.do(t, http.MethodPost, "/bootstrap", `{"name":"Again","username":"again@example.com","password":"password1"}`, "")
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "Users already exist", errorMessage(t, res))

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, audit.ActionBootstrapAdmin, f.audit.entries[0].Action)
	assert.Equal(t, "Created admin root@example.com", f.audit.entries[0].Details)
}

func TestBootstrapValidation(t *testing.T) {
	f := newFixture(t)
	res := f.do(t, http.MethodPost, "/bootstrap", `{"name":"Root","username":"root@example.com"}`, "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Empty(t, f.repo.users)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "op@example.com", "password1", rbac.RoleOperator, true)
	f.addUser(t, "gone@example.com", "password1", rbac.RoleOperator, false)

	res := f.do(t, http.MethodPost, "/login", `{"username":"op@example.com","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "Invalid credentials", errorMessage(t, res))

	res = f.do(t, http.MethodPost, "/login", `{"username":"nobody@example.com","password":"password1"}`, "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = f.do(t, http.MethodPost, "/login", `{"username":"gone@example.com","password":"password1"}`, "")
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = f.do(t, http.MethodPost, "/login", `{"username":"OP@example.com","password":"password1"}`, "")
	require.Equal(t, http.StatusOK, res.Code)
	var session Session
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &session))
	assert.NotContains(t, res.Body.String(), "passwordHash")

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, audit.ActionLogin, f.audit.entries[0].Action)
	assert.Equal(t, "Operator", f.audit.entries[0].Role)
}

func TestMeRequiresToken(t *testing.T) {
	f := newFixture(t)

	res := f.do(t, http.MethodGet, "/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "Missing token", errorMessage(t, res))

	res = f.do(t, http.MethodGet, "/me", "", "garbage")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "Invalid token", errorMessage(t, res))
}

func TestMeReturnsPermissionsAndCapabilities(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "op@example.com", "password1", rbac.RoleOperator, true)
	token, _, err := f.tokens.Issue(user)
	require.NoError(t, err)

	res := f.do(t, http.MethodGet, "/me", "", token)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var profile Profile
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &profile))
	assert.Equal(t, "op@example.com", profile.User.Username)
	assert.Contains(t, profile.Permissions, rbac.PermIssuingPersonal)
	assert.Contains(t, profile.Permissions, rbac.PermIssuing)
	assert.NotContains(t, profile.Permissions, rbac.PermUsersManage)
	assert.True(t, profile.Capabilities["form.return"])
	assert.False(t, profile.Capabilities["page.users"])
	assert.Equal(t, rbac.PolicyImplied, profile.Policy)
}

func TestDeactivatedUserTokenStopsWorking(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "op@example.com", "password1", rbac.RoleOperator, true)
	token, _, err := f.tokens.Issue(user)
	require.NoError(t, err)

	_, err = f.repo.SetActive(context.Background(), user.ID, false)
	require.NoError(t, err)

	res := f.do(t, http.MethodGet, "/me", "", token)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestMiddlewareUsesStoredRole(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "op@example.com", "password1", rbac.RoleViewer, true)
	stale := user
	stale.Role = rbac.RoleAdmin
	token, _, err := f.tokens.Issue(stale)
	require.NoError(t, err)

	res := f.do(t, http.MethodGet, "/me", "", token)
	require.Equal(t, http.StatusOK, res.Code)
	var profile Profile
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &profile))
	assert.Empty(t, profile.Permissions)
	assert.Equal(t, rbac.RoleViewer, profile.User.Role)
}
