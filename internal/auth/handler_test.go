package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/chambers-pm/chambers/internal/access"
	"github.com/chambers-pm/chambers/internal/auth"
	"github.com/chambers-pm/chambers/internal/identity"
	"github.com/chambers-pm/chambers/internal/platform/httpx"
	"github.com/chambers-pm/chambers/internal/rbac"
	"github.com/chambers-pm/chambers/internal/shared"
)

type stubRepo struct {
	mu      sync.Mutex
	created map[string]int64
	deleted []string
}

func (s *stubRepo) CreateSession(_ context.Context, id string, userID int64, _ time.Time, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created == nil {
		s.created = make(map[string]int64)
	}
	s.created[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubRepo) PurgeExpiredSessions(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type grantTable struct {
	grants map[int64][]string
	err    error
}

func (g *grantTable) PermissionsForRole(_ context.Context, roleID int64) ([]string, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.grants[roleID], nil
}

type harness struct {
	router   http.Handler
	sessions *shared.SessionManager
	accounts *accountStore
	repo     *stubRepo
	grants   *grantTable
	cookies  []*http.Cookie
	csrf     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sessions, _ := newSessions(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	accounts := newAccountStore(
		identity.Account{ID: 3, Name: "Sam", Email: "sam@firm.test", PasswordHash: string(hash), Active: true, Role: associateRole},
		identity.Account{ID: 4, Name: "Ivy", Email: "ivy@firm.test", PasswordHash: string(hash), Active: false, Role: associateRole},
	)
	repo := &stubRepo{}
	grants := &grantTable{grants: map[int64][]string{associateRole.ID: {shared.PermTimesheetRead, shared.PermTimesheetCreate}}}
	csrf := shared.NewCSRFManager("csrf-secret")
	policies := rbac.NewPolicyStore(grants, nil, nil)
	mw := rbac.Middleware{Resolver: auth.NewResolver(sessions, accounts, nil), Policies: policies}

	handler := auth.NewHandler(auth.HandlerOptions{
		Service:  auth.NewService(repo, accounts, nil, nil),
		Sessions: sessions,
		CSRF:     csrf,
		Policies: policies,
		RBAC:     mw,
	})
	r := chi.NewRouter()
	r.Use(sessions.Middleware(nil), csrf.Middleware(nil, httpx.RespondError))
	r.Route("/auth", handler.MountRoutes)
	r.Route("/api", func(r chi.Router) {
		handler.MountAPI(r)
		r.With(mw.RequirePermission(shared.PermMatterRead)).Get("/matters", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})
	return &harness{router: r, sessions: sessions, accounts: accounts, repo: repo, grants: grants}
}

func (h *harness) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if h.csrf != "" {
		req.Header.Set(shared.CSRFHeader, h.csrf)
	}
	for _, c := range h.cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	for _, c := range rr.Result().Cookies() {
		if c.MaxAge < 0 {
			h.cookies = nil
			continue
		}
		h.cookies = []*http.Cookie{c}
	}
	return rr
}

func (h *harness) fetchCSRF(t *testing.T) {
	t.Helper()
	rr := h.do(t, http.MethodGet, "/auth/csrf", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	h.csrf = body.CSRFToken
}

func (h *harness) login(t *testing.T, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	h.fetchCSRF(t)
	rr := h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password})
	if rr.Code == http.StatusOK {
		var body struct {
			CSRFToken string `json:"csrfToken"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		h.csrf = body.CSRFToken
	}
	return rr
}

func TestLoginRotatesSessionAndExposesPolicy(t *testing.T) {
	h := newHarness(t)
	h.fetchCSRF(t)
	anonymousID := h.cookies[0].Value

	rr := h.login(t, "Sam@Firm.test", "correct-horse")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, h.cookies, 1)
	assert.NotEqual(t, anonymousID, h.cookies[0].Value)
	assert.Equal(t, int64(3), h.repo.created[h.cookies[0].Value])

	_, err := h.sessions.Lookup(context.Background(), anonymousID)
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)

	rr = h.do(t, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var principal access.Principal
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &principal))
	assert.Equal(t, "sam@firm.test", principal.Identity.Email)
	assert.Equal(t, "associate", principal.Role.Name)

	rr = h.do(t, http.MethodGet, "/api/access-control", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var policy access.Policy
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &policy))
	assert.Equal(t, []string{"ts:create", "ts:read"}, policy.Permissions)
	assert.ElementsMatch(t, []string{"/dashboard", "/timesheet", "/leave"}, policy.AccessibleRoutes)

	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodGet, "/api/matters", nil).Code)
}

func TestLoginRejectsBadCredentialsAndInactiveAccounts(t *testing.T) {
	h := newHarness(t)

	rr := h.login(t, "sam@firm.test", "wrong-password")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = h.login(t, "ivy@firm.test", "correct-horse")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = h.login(t, "nobody@firm.test", "correct-horse")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = h.login(t, "not-an-email", "correct-horse")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/api/session", nil).Code)
}

func TestLoginWithoutCSRFTokenIsForbidden(t *testing.T) {
	h := newHarness(t)
	rr := h.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "sam@firm.test", "password": "correct-horse"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestLogoutRevokesSession(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.login(t, "sam@firm.test", "correct-horse").Code)
	stale := h.cookies[0]

	rr := h.do(t, http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Contains(t, h.repo.deleted, stale.Value)

	h.cookies = []*http.Cookie{stale}
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/api/session", nil).Code)
}

func TestDeactivatedIdentityIsRejectedMidSession(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.login(t, "sam@firm.test", "correct-horse").Code)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/session", nil).Code)

	h.accounts.update(3, func(a *identity.Account) { a.Active = false })
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/api/session", nil).Code)
}

func TestAccessControlUnavailable(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.login(t, "sam@firm.test", "correct-horse").Code)

	h.grants.err = errors.New("connection reset")
	rr := h.do(t, http.MethodGet, "/api/access-control", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestRoleGrantChangeVisibleOnNextAccessControlFetch(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.login(t, "sam@firm.test", "correct-horse").Code)
	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodGet, "/api/matters", nil).Code)

	h.grants.grants[associateRole.ID] = append(h.grants.grants[associateRole.ID], shared.PermMatterRead)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/matters", nil).Code)
}
