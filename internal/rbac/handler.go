package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/chambers-pm/chambers/internal/platform/httpx"
	"github.com/chambers-pm/chambers/internal/shared"
)

// SyncScheduler enqueues a superadmin re-derivation in the background.
type SyncScheduler interface {
	EnqueueSuperadminSync(ctx context.Context) error
}

// Handler exposes the RBAC administration API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	policies  PolicySource
	scheduler SyncScheduler
	rbac      Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance. scheduler may be nil, in which case sync
// runs inline.
func NewHandler(logger *slog.Logger, service *Service, policies PolicySource, scheduler SyncScheduler, mw Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	_ = v.RegisterValidation("permission", func(fl validator.FieldLevel) bool {
		_, _, err := ParsePermission(fl.Field().String())
		return err == nil
	})
	return &Handler{logger: logger, service: service, policies: policies, scheduler: scheduler, rbac: mw, validator: v}
}

// MountRoutes registers the administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(shared.PermRBACRead))
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{id}/permissions", h.rolePermissions)
		r.Get("/roles/{id}/policy", h.rolePolicy)
		r.Get("/permissions", h.listPermissions)
	})
	r.With(h.rbac.RequirePermission(shared.PermRBACCreate)).Post("/permissions", h.createPermission)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(shared.PermRBACUpdate))
		r.Put("/roles/{id}/permissions", h.setRolePermissions)
		r.Post("/sync", h.sync)
	})
}

type permissionRequest struct {
	Name        string `json:"name" validate:"required,permission"`
	Description string `json:"description" validate:"max=200"`
}

type rolePermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"dive,permission"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	names, err := h.service.RolePermissions(r.Context(), id)
	if err != nil {
		h.fail(w, "role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roleId": id, "permissions": names})
}

func (h *Handler) rolePolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.fail(w, "role policy", err)
		return
	}
	policy, err := h.policies.PolicyFor(r.Context(), role.Ref())
	if err != nil {
		httpx.RespondError(w, shared.ErrPolicyUnavailable)
		return
	}
	httpx.JSON(w, http.StatusOK, policy)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	perm, err := h.service.EnsurePermission(r.Context(), actorID(r), req.Name, req.Description)
	if err != nil {
		h.fail(w, "ensure permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	var req rolePermissionsRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := h.service.SetRolePermissions(r.Context(), actorID(r), id, req.Permissions); err != nil {
		h.fail(w, "set role permissions", err)
		return
	}
	names, err := h.service.RolePermissions(r.Context(), id)
	if err != nil {
		h.fail(w, "role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roleId": id, "permissions": names})
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	if h.scheduler != nil {
		if err := h.scheduler.EnqueueSuperadminSync(r.Context()); err != nil {
			h.fail(w, "enqueue superadmin sync", err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{"status": "queued"})
		return
	}
	added, err := h.service.SyncSuperadmin(r.Context())
	if err != nil {
		h.fail(w, "superadmin sync", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "synced", "added": added})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, ErrInvalidPermission), errors.Is(err, ErrUnknownPermission):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	case errors.Is(err, ErrSuperadminDerived):
		httpx.Problem(w, http.StatusConflict, "Superadmin Is Derived", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func roleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid role id", httpx.ErrValidation))
		return 0, false
	}
	return id, true
}

func actorID(r *http.Request) int64 {
	if p, ok := shared.PrincipalFromContext(r.Context()); ok {
		return p.Identity.ID
	}
	return 0
}
