package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/chambers-pm/chambers/internal/access"
	"github.com/chambers-pm/chambers/internal/observability"
	"github.com/chambers-pm/chambers/internal/platform/httpx"
	"github.com/chambers-pm/chambers/internal/rbac"
	"github.com/chambers-pm/chambers/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows and the two
// fetch-once session endpoints.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	policies       rbac.PolicySource
	rbac           rbac.Middleware
	metrics        *observability.Metrics
	validator      *validator.Validate
	loginLimit     int
}

// HandlerOptions groups the Handler dependencies.
type HandlerOptions struct {
	Logger     *slog.Logger
	Service    *Service
	Sessions   *shared.SessionManager
	CSRF       *shared.CSRFManager
	Policies   rbac.PolicySource
	RBAC       rbac.Middleware
	Metrics    *observability.Metrics
	LoginLimit int
}

// NewHandler constructs a Handler instance.
func NewHandler(opts HandlerOptions) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        opts.Service,
		sessionManager: opts.Sessions,
		csrfManager:    opts.CSRF,
		policies:       opts.Policies,
		rbac:           opts.RBAC,
		metrics:        opts.Metrics,
		validator:      validator.New(),
		loginLimit:     opts.LoginLimit,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.csrfToken)
	login := http.Handler(http.HandlerFunc(h.handleLogin))
	if h.loginLimit > 0 {
		login = httprate.Limit(h.loginLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))(login)
	}
	r.Method(http.MethodPost, "/login", login)
	r.Post("/logout", h.handleLogout)
}

// MountAPI registers the session and access-control endpoints.
func (h *Handler) MountAPI(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Authenticated())
		r.Get("/session", h.session)
		r.Get("/access-control", h.accessControl)
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginResponse struct {
	access.Principal
	CSRFToken string `json:"csrfToken"`
}

func (h *Handler) csrfToken(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Error("ensure csrf token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.RespondError(w, errors.New("session missing"))
		return
	}

	var req loginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}

	account, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("authenticate", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		h.metrics.ObserveLogin("failure")
		h.service.Record(r.Context(), 0, shared.AuditLoginFailed, map[string]any{"ip": clientIP(r)})
		httpx.Problem(w, http.StatusUnauthorized, "Invalid Credentials", "email or password is incorrect")
		return
	}

	// A fresh id defeats session fixation; the pre-login id is dropped on commit.
	sess.Rotate()
	sess.BindUser(strconv.FormatInt(account.ID, 10))
	sess.Delete(shared.CSRFSessionKey)
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RegisterSession(r.Context(), sess.ID, account.ID, sess.ExpiresAt(), clientIP(r), r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	h.metrics.ObserveLogin("success")
	h.service.Record(r.Context(), account.ID, shared.AuditLogin, map[string]any{"ip": clientIP(r)})

	httpx.JSON(w, http.StatusOK, loginResponse{
		Principal: access.Principal{Identity: account.Identity(), Role: account.Role},
		CSRFToken: token,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if userID, err := strconv.ParseInt(sess.User(), 10, 64); err == nil {
			if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
				h.logger.Warn("remove session", slog.Any("error", err))
			}
			h.service.Record(r.Context(), userID, shared.AuditLogout, nil)
		}
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	httpx.JSON(w, http.StatusOK, principal)
}

func (h *Handler) accessControl(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	policy, err := h.policies.PolicyFor(r.Context(), principal.Role)
	if err != nil {
		httpx.RespondError(w, shared.ErrPolicyUnavailable)
		return
	}
	httpx.JSON(w, http.StatusOK, policy)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
