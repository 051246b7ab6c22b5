package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/chambers-pm/chambers/internal/access"
	"github.com/chambers-pm/chambers/internal/observability"
	"github.com/chambers-pm/chambers/internal/platform/httpx"
	"github.com/chambers-pm/chambers/internal/shared"
)

// PrincipalResolver resolves the session credential carried by a request.
type PrincipalResolver interface {
	ResolveRequest(r *http.Request) (access.Principal, error)
}

// PolicySource computes the policy of a role.
type PolicySource interface {
	PolicyFor(ctx context.Context, role access.Role) (access.Policy, error)
}

// DenyReason explains a negative Decision.
type DenyReason string

const (
	DenyUnauthenticated DenyReason = "unauthenticated"
	DenyUnauthorized    DenyReason = "unauthorized"
)

// Requirement describes what a request needs. AnyOf and AllOf name permissions;
// RoutePrefix is checked with access.CanAccessRoute. An empty Requirement only
// demands an authenticated session.
type Requirement struct {
	AnyOf       []string
	AllOf       []string
	RoutePrefix string
}

func (req Requirement) needsPolicy() bool {
	return len(req.AnyOf) > 0 || len(req.AllOf) > 0 || req.RoutePrefix != ""
}

// Decision is the outcome of Guard.
type Decision struct {
	Allow     bool
	Reason    DenyReason
	Principal access.Principal
	Policy    access.Policy
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Resolver PrincipalResolver
	Policies PolicySource
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// Guard resolves the request's session and evaluates req against a freshly
// computed policy. A policy that cannot be computed is replaced by the minimal
// policy, so permission checks deny.
func (m Middleware) Guard(r *http.Request, req Requirement) Decision {
	principal, err := m.Resolver.ResolveRequest(r)
	if err != nil {
		return Decision{Reason: DenyUnauthenticated}
	}
	decision := Decision{Principal: principal}
	if !req.needsPolicy() {
		decision.Allow = true
		return decision
	}

	policy, err := m.Policies.PolicyFor(r.Context(), principal.Role)
	if err != nil {
		policy = access.MinimalPolicy()
	}
	decision.Policy = policy

	if len(req.AnyOf) > 0 && !access.HasAnyPermission(policy, req.AnyOf...) {
		decision.Reason = DenyUnauthorized
		return decision
	}
	for _, perm := range req.AllOf {
		if !access.HasPermission(policy, perm) {
			decision.Reason = DenyUnauthorized
			return decision
		}
	}
	if req.RoutePrefix != "" && !access.CanAccessRoute(policy, req.RoutePrefix) {
		decision.Reason = DenyUnauthorized
		return decision
	}
	decision.Allow = true
	return decision
}

// Require enforces req on every request reaching the wrapped handler.
func (m Middleware) Require(req Requirement) func(http.Handler) http.Handler {
	req.AnyOf = normalizePermissions(req.AnyOf)
	req.AllOf = normalizePermissions(req.AllOf)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := m.Guard(r, req)
			if !decision.Allow {
				m.deny(w, r, decision)
				return
			}
			m.Metrics.ObserveDecision(observability.OutcomeAllowed)
			ctx := shared.ContextWithPrincipal(r.Context(), decision.Principal)
			if req.needsPolicy() {
				ctx = shared.ContextWithPolicy(ctx, decision.Policy)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authenticated only demands a resolvable, active session.
func (m Middleware) Authenticated() func(http.Handler) http.Handler {
	return m.Require(Requirement{})
}

// RequirePermission demands one specific permission.
func (m Middleware) RequirePermission(perm string) func(http.Handler) http.Handler {
	return m.Require(Requirement{AllOf: []string{perm}})
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.Require(Requirement{AnyOf: perms})
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.Require(Requirement{AllOf: perms})
}

// RequireRoute demands that the role may enter the given route prefix.
func (m Middleware) RequireRoute(prefix string) func(http.Handler) http.Handler {
	return m.Require(Requirement{RoutePrefix: prefix})
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, d Decision) {
	if d.Reason == DenyUnauthenticated {
		m.Metrics.ObserveDecision(observability.OutcomeUnauthenticated)
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	m.Metrics.ObserveDecision(observability.OutcomeUnauthorized)
	if m.Logger != nil {
		m.Logger.Info("request forbidden",
			slog.String("path", r.URL.Path),
			slog.Int64("user_id", d.Principal.Identity.ID),
			slog.String("role", d.Principal.Role.Name))
	}
	httpx.RespondError(w, shared.ErrUnauthorized)
}

func normalizePermissions(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
