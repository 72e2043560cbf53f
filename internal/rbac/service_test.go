package rbac_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assettrack/assettrack/internal/audit"
	"github.com/assettrack/assettrack/internal/platform/httpx"
	"github.com/assettrack/assettrack/internal/rbac"
	"github.com/assettrack/assettrack/internal/shared"
	_ "github.com/assettrack/assettrack/testing"
)

type memoryStore struct {
	mu    sync.Mutex
	roles map[string][]string
}

func (m *memoryStore) LoadRolePermissions(context.Context) (map[string][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]string, len(m.roles))
	for k, v := range m.roles {
		out[k] = append([]string(nil), v...)
	}
	return out, nil
}

func (m *memoryStore) UpsertRolePermissions(_ context.Context, role string, perms []rbac.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roles == nil {
		m.roles = map[string][]string{}
	}
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = string(p)
	}
	m.roles[role] = names
	return nil
}

type recordedAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordedAudit) Record(_ context.Context, entry audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

var admin = shared.Principal{UserID: 1, Username: "admin@example.com", Name: "Admin", Role: rbac.RoleAdmin}

func newService(t *testing.T) (*rbac.Service, *rbac.Resolver, *memoryStore, *recordedAudit) {
	t.Helper()
	return newServiceWithPolicy(t, rbac.PolicyImplied)
}

func newServiceWithPolicy(t *testing.T, policy rbac.Policy) (*rbac.Service, *rbac.Resolver, *memoryStore, *recordedAudit) {
	t.Helper()
	store := &memoryStore{}
	resolver := rbac.NewResolver(store, rbac.ResolverConfig{Policy: policy})
	recorder := &recordedAudit{}
	return rbac.NewService(store, resolver, recorder, nil), resolver, store, recorder
}

func TestUpdateRolePermissionsMigratesAndInvalidates(t *testing.T) {
	svc, resolver, store, recorder := newService(t)
	ctx := context.Background()

	ok, err := resolver.Allowed(ctx, rbac.RoleViewer, rbac.PermLocationsList)
	require.NoError(t, err)
	require.False(t, ok)

	grant, err := svc.UpdateRolePermissions(ctx, admin, "viewer", []string{"location_list", "locations.list", "RETURNS"})
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleViewer, grant.Role)
	assert.Equal(t, []rbac.Permission{rbac.PermLocations, rbac.PermLocationsList, rbac.PermReturns}, grant.Permissions)
	assert.Equal(t, []string{"locations", "locations.list", "returns"}, store.roles[rbac.RoleViewer])

	ok, err = resolver.Allowed(ctx, rbac.RoleViewer, rbac.PermLocationsList)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, recorder.entries, 1)
	assert.Equal(t, audit.ActionUpdateRolePermissions, recorder.entries[0].Action)
	assert.Equal(t, "Viewer: locations, locations.list, returns", recorder.entries[0].Details)
}

func TestUpdateRolePermissionsUnderRequiredPolicy(t *testing.T) {
	svc, resolver, store, recorder := newServiceWithPolicy(t, rbac.PolicyRequired)
	ctx := context.Background()

	_, err := svc.UpdateRolePermissions(ctx, admin, "Viewer", []string{"audit.view"})
	require.ErrorIs(t, err, httpx.ErrValidation)
	assert.Contains(t, err.Error(), "audit.view (needs audit)")
	assert.Empty(t, store.roles)
	assert.Empty(t, recorder.entries)

	_, err = svc.UpdateRolePermissions(ctx, admin, "Viewer", []string{"audit", "audit.view"})
	require.NoError(t, err)
	ok, err := resolver.Allowed(ctx, rbac.RoleViewer, rbac.PermAuditView)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.UpdateRolePermissions(ctx, admin, "Viewer", []string{"audit"})
	require.NoError(t, err)
	ok, err = resolver.Allowed(ctx, rbac.RoleViewer, rbac.PermAuditView)
	require.NoError(t, err)
	assert.False(t, ok, "revoked")

	_, err = svc.UpdateRolePermissions(ctx, admin, "Operator", []string{"issuing_personal"})
	require.NoError(t, err, "legacy names bring their parents")
	ok, err = resolver.Allowed(ctx, rbac.RoleOperator, rbac.PermIssuingPersonal)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateRolePermissionsKeepsStoredRoleName(t *testing.T) {
	svc, _, store, _ := newService(t)
	store.roles = map[string][]string{"IT Support": {"returns"}}

	grant, err := svc.UpdateRolePermissions(context.Background(), admin, "it support", []string{"ops.scan"})
	require.NoError(t, err)
	assert.Equal(t, "IT Support", grant.Role)
	assert.Equal(t, []string{"ops.scan"}, store.roles["IT Support"])
	assert.NotContains(t, store.roles, "it support")
}

func TestUpdateRolePermissionsRejectsUnknown(t *testing.T) {
	svc, _, store, recorder := newService(t)

	_, err := svc.UpdateRolePermissions(context.Background(), admin, "Operator", []string{"returns", "launch.missiles"})
	require.ErrorIs(t, err, httpx.ErrValidation)
	assert.Contains(t, err.Error(), "launch.missiles")
	assert.Empty(t, store.roles)
	assert.Empty(t, recorder.entries)

	_, err = svc.UpdateRolePermissions(context.Background(), admin, "  ", nil)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestRolePermissionsView(t *testing.T) {
	svc, _, store, _ := newService(t)
	store.roles = map[string][]string{"Auditor": {"audit_view", "audit.view"}}

	view, err := svc.RolePermissions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rbac.PolicyImplied, view.Policy)
	assert.Equal(t, []rbac.Permission{rbac.PermAuditView}, view.Roles["Auditor"])
	assert.Empty(t, view.Roles[rbac.RoleViewer])
	assert.NotNil(t, view.Roles[rbac.RoleViewer])
	assert.Len(t, view.Catalog, len(rbac.DefaultHierarchy().Nodes()))
}

func newRouter(t *testing.T, principal *shared.Principal) (http.Handler, *memoryStore) {
	t.Helper()
	svc, resolver, store, _ := newService(t)
	mw := rbac.Middleware{Resolver: resolver}
	h := rbac.NewHandler(nil, svc, mw)

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
	h.MountRoutes(r)
	return r, store
}

func TestHandlerUpdateRequiresRolesManage(t *testing.T) {
	operator := shared.Principal{UserID: 7, Username: "op@example.com", Role: rbac.RoleOperator}
	router, store := newRouter(t, &operator)

	req := httptest.NewRequest(http.MethodPut, "/role-permissions/Viewer", strings.NewReader(`{"permissions":["returns"]}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusForbidden, res.Code)
	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "Permission denied", body.Error)
	assert.Empty(t, store.roles)
}

func TestHandlerUpdateAndList(t *testing.T) {
	router, _ := newRouter(t, &admin)

	req := httptest.NewRequest(http.MethodPut, "/role-permissions/viewer", strings.NewReader(`{"permissions":["returning"]}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.JSONEq(t, `{"role":"Viewer","permissions":["returns"]}`, res.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/role-permissions/", nil)
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	var view rbac.RolePermissionsView
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &view))
	assert.Equal(t, []rbac.Permission{rbac.PermReturns}, view.Roles[rbac.RoleViewer])
}

func TestHandlerRejectsBadBody(t *testing.T) {
	router, _ := newRouter(t, &admin)

	req := httptest.NewRequest(http.MethodPut, "/role-permissions/Viewer", strings.NewReader(`{"permissions":`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestAttachWithoutPrincipal(t *testing.T) {
	router, _ := newRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/role-permissions/", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestAuthorizePrefersRequestPermissions(t *testing.T) {
	_, resolver, _, _ := newService(t)
	ctx := rbac.ContextWithPermissions(context.Background(), rbac.NewSet(rbac.PermIssuingShared))

	assert.NoError(t, resolver.Authorize(ctx, rbac.RoleViewer, rbac.PermIssuingShared))
	assert.ErrorIs(t, resolver.Authorize(ctx, rbac.RoleAdmin, rbac.PermIssuingPersonal), shared.ErrPermissionDenied)

	assert.NoError(t, resolver.Authorize(context.Background(), rbac.RoleAdmin, rbac.PermIssuingPersonal))
	assert.ErrorIs(t, resolver.Authorize(context.Background(), rbac.RoleViewer, rbac.PermReturns), shared.ErrPermissionDenied)
}

func TestRequireAnyAndAll(t *testing.T) {
	_, resolver, _, _ := newService(t)
	mw := rbac.Middleware{Resolver: resolver}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	cases := []struct {
		name    string
		role    string
		handler http.Handler
		want    int
	}{
		{"any satisfied by one", rbac.RoleOperator, mw.RequireAny(rbac.PermDevicesRegister, rbac.PermReturns)(ok), http.StatusNoContent},
		{"any with none held", rbac.RoleOperator, mw.RequireAny(rbac.PermDevicesRegister, rbac.PermAuditView)(ok), http.StatusForbidden},
		{"all held", rbac.RoleSupervisor, mw.RequireAll(rbac.PermDevicesRegister, rbac.PermAuditView)(ok), http.StatusNoContent},
		{"all missing one", rbac.RoleSupervisor, mw.RequireAll(rbac.PermAuditView, rbac.PermAuditClear)(ok), http.StatusForbidden},
		{"empty any passes", rbac.RoleViewer, mw.RequireAny()(ok), http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: 5, Role: tc.role}))
			res := httptest.NewRecorder()
			tc.handler.ServeHTTP(res, req)
			assert.Equal(t, tc.want, res.Code)
		})
	}
}
