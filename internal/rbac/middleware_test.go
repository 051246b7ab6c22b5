package rbac_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chambers-pm/chambers/internal/access"
	"github.com/chambers-pm/chambers/internal/rbac"
	"github.com/chambers-pm/chambers/internal/shared"
)

// headerResolver resolves the principal named by the X-Test-User header.
type headerResolver map[string]access.Principal

func (h headerResolver) ResolveRequest(r *http.Request) (access.Principal, error) {
	p, ok := h[r.Header.Get("X-Test-User")]
	if !ok {
		return access.Principal{}, shared.ErrUnauthenticated
	}
	return p, nil
}

type fixture struct {
	store    *memStore
	mw       rbac.Middleware
	resolver headerResolver
}

func newFixture() *fixture {
	store := newMemStore()
	store.grant(store.roleID(rbac.RoleAssociate), shared.PermTimesheetRead, shared.PermTimesheetCreate)
	store.grant(store.roleID(rbac.RolePartner), shared.PermMatterRead, shared.PermMatterCreate, shared.PermRBACRead, shared.PermRBACUpdate)
	resolver := headerResolver{
		"associate": {Identity: access.Identity{ID: 10, Active: true}, Role: roleRef(store, rbac.RoleAssociate)},
		"partner":   {Identity: access.Identity{ID: 20, Active: true}, Role: roleRef(store, rbac.RolePartner)},
	}
	return &fixture{
		store:    store,
		resolver: resolver,
		mw: rbac.Middleware{
			Resolver: resolver,
			Policies: rbac.NewPolicyStore(store, nil, nil),
		},
	}
}

func do(t *testing.T, h http.Handler, method, target, user string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRequirePermissionOutcomes(t *testing.T) {
	f := newFixture()
	var seen access.Principal
	handler := f.mw.RequirePermission(shared.PermMatterRead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = shared.PrincipalFromContext(r.Context())
		policy, ok := shared.PolicyFromContext(r.Context())
		require.True(t, ok)
		assert.True(t, access.HasPermission(policy, shared.PermMatterRead))
		w.WriteHeader(http.StatusOK)
	}))

	rr := do(t, handler, http.MethodGet, "/api/matters", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	rr = do(t, handler, http.MethodGet, "/api/matters", "associate", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, handler, http.MethodGet, "/api/matters", "partner", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(20), seen.Identity.ID)
}

func TestGuardDecisions(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/timesheet/new", nil)
	req.Header.Set("X-Test-User", "associate")

	d := f.mw.Guard(req, rbac.Requirement{RoutePrefix: "/timesheet/new"})
	assert.True(t, d.Allow)
	assert.Equal(t, rbac.RoleAssociate, d.Principal.Role.Name)

	d = f.mw.Guard(req, rbac.Requirement{RoutePrefix: "/matter"})
	assert.False(t, d.Allow)
	assert.Equal(t, rbac.DenyUnauthorized, d.Reason)

	d = f.mw.Guard(req, rbac.Requirement{AnyOf: []string{shared.PermMatterRead, shared.PermTimesheetRead}})
	assert.True(t, d.Allow)

	d = f.mw.Guard(req, rbac.Requirement{AllOf: []string{shared.PermMatterRead, shared.PermTimesheetRead}})
	assert.False(t, d.Allow)

	d = f.mw.Guard(req, rbac.Requirement{})
	assert.True(t, d.Allow)
	assert.Empty(t, d.Policy.Permissions)

	anon := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	d = f.mw.Guard(anon, rbac.Requirement{RoutePrefix: "/dashboard"})
	assert.False(t, d.Allow)
	assert.Equal(t, rbac.DenyUnauthenticated, d.Reason)
}

func TestGuardFailsClosedWhenPolicyUnavailable(t *testing.T) {
	f := newFixture()
	f.store.err = errors.New("db down")

	req := httptest.NewRequest(http.MethodGet, "/matter", nil)
	req.Header.Set("X-Test-User", "partner")

	d := f.mw.Guard(req, rbac.Requirement{AllOf: []string{shared.PermMatterRead}})
	assert.False(t, d.Allow)
	assert.Equal(t, rbac.DenyUnauthorized, d.Reason)

	d = f.mw.Guard(req, rbac.Requirement{RoutePrefix: "/dashboard"})
	assert.True(t, d.Allow)
}

func TestRoleChangeAppliesOnNextRequest(t *testing.T) {
	f := newFixture()
	handler := f.mw.RequireRoute("/matter")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	assert.Equal(t, http.StatusForbidden, do(t, handler, http.MethodGet, "/matter/42", "associate", "").Code)

	f.store.grant(f.store.roleID(rbac.RoleAssociate), shared.PermMatterRead)
	assert.Equal(t, http.StatusNoContent, do(t, handler, http.MethodGet, "/matter/42", "associate", "").Code)
}

func TestAdminHandlerRoutes(t *testing.T) {
	f := newFixture()
	svc := rbac.NewService(f.store, nil, nil)
	router := chi.NewRouter()
	router.Route("/api/admin/rbac", rbac.NewHandler(nil, svc, f.mw.Policies, nil, f.mw).MountRoutes)

	rr := do(t, router, http.MethodGet, "/api/admin/rbac/roles", "associate", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, router, http.MethodGet, "/api/admin/rbac/roles", "partner", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var roles struct {
		Roles []rbac.Role `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &roles))
	assert.Len(t, roles.Roles, len(rbac.BuiltinRoles()))

	// partner lacks rbac:create
	rr = do(t, router, http.MethodPost, "/api/admin/rbac/permissions", "partner", `{"name":"xyz:read"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	internID := f.store.roleID(rbac.RoleIntern)
	target := "/api/admin/rbac/roles/" + itoa(internID) + "/permissions"
	rr = do(t, router, http.MethodPut, target, "partner", `{"permissions":["ts:read"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"roleId":`+itoa(internID)+`,"permissions":["ts:read"]}`, rr.Body.String())

	rr = do(t, router, http.MethodPut, target, "partner", `{"permissions":["Bad Name"]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	superTarget := "/api/admin/rbac/roles/" + itoa(f.store.roleID(rbac.RoleSuperadmin)) + "/permissions"
	rr = do(t, router, http.MethodPut, superTarget, "partner", `{"permissions":[]}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, http.MethodGet, "/api/admin/rbac/roles/"+itoa(internID)+"/policy", "partner", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var policy access.Policy
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &policy))
	assert.ElementsMatch(t, []string{"/dashboard", "/timesheet", "/leave"}, policy.AccessibleRoutes)

	rr = do(t, router, http.MethodPost, "/api/admin/rbac/sync", "partner", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"synced"`)

	rr = do(t, router, http.MethodGet, "/api/admin/rbac/roles/999/permissions", "partner", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
