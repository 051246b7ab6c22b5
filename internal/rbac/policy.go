package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/chambers-pm/chambers/internal/access"
	"github.com/chambers-pm/chambers/internal/observability"
	"github.com/chambers-pm/chambers/internal/shared"
)

// PermissionReader reads the RolePermission join for one role.
type PermissionReader interface {
	PermissionsForRole(ctx context.Context, roleID int64) ([]string, error)
}

// PolicyStore derives access policies from role grants. It holds no cache:
// every call reads the current grants.
type PolicyStore struct {
	reader       PermissionReader
	capabilities []Capability
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewPolicyStore constructs a PolicyStore over the default capability table.
func NewPolicyStore(reader PermissionReader, logger *slog.Logger, metrics *observability.Metrics) *PolicyStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PolicyStore{
		reader:       reader,
		capabilities: DefaultCapabilities(),
		logger:       logger,
		metrics:      metrics,
	}
}

// PolicyFor computes the access policy of role. When grants cannot be read it
// returns the minimal policy together with an error wrapping
// shared.ErrPolicyUnavailable.
func (s *PolicyStore) PolicyFor(ctx context.Context, role access.Role) (access.Policy, error) {
	if role.ID <= 0 {
		return s.failClosed(role, fmt.Errorf("rbac: policy for role %q: missing role id", role.Name))
	}
	names, err := s.reader.PermissionsForRole(ctx, role.ID)
	if err != nil {
		return s.failClosed(role, fmt.Errorf("rbac: policy for role %d: %w", role.ID, err))
	}
	return Derive(names, s.capabilities), nil
}

// Permissions projects the permission set of role.
func (s *PolicyStore) Permissions(ctx context.Context, role access.Role) ([]string, error) {
	p, err := s.PolicyFor(ctx, role)
	return p.Permissions, err
}

// AccessibleRoutes projects the route prefixes role may enter.
func (s *PolicyStore) AccessibleRoutes(ctx context.Context, role access.Role) ([]string, error) {
	p, err := s.PolicyFor(ctx, role)
	return p.AccessibleRoutes, err
}

// AccessibleSidebarItems projects the sidebar labels role may see.
func (s *PolicyStore) AccessibleSidebarItems(ctx context.Context, role access.Role) ([]string, error) {
	p, err := s.PolicyFor(ctx, role)
	return p.AccessibleSidebarItems, err
}

func (s *PolicyStore) failClosed(role access.Role, err error) (access.Policy, error) {
	s.logger.Error("access policy unavailable",
		slog.Bool("alert", true),
		slog.Int64("role_id", role.ID),
		slog.String("role", role.Name),
		slog.Any("error", err))
	s.metrics.ObservePolicyFailure()
	return access.MinimalPolicy(), fmt.Errorf("%w: %v", shared.ErrPolicyUnavailable, err)
}

// Derive builds a policy from the exact permission names joined to a role.
func Derive(names []string, capabilities []Capability) access.Policy {
	set := make(map[string]struct{}, len(names))
	domains := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		set[name] = struct{}{}
		if domain, _, ok := strings.Cut(name, ":"); ok && domain != "" {
			domains[domain] = struct{}{}
		}
	}

	perms := make([]string, 0, len(set))
	for name := range set {
		perms = append(perms, name)
	}
	sort.Strings(perms)

	policy := access.Policy{
		Permissions:            perms,
		AccessibleRoutes:       []string{},
		AccessibleSidebarItems: []string{},
	}
	for _, c := range capabilities {
		if !c.Always && !holdsAny(domains, c.Domains) {
			continue
		}
		policy.AccessibleRoutes = appendUnique(policy.AccessibleRoutes, c.Route)
		if c.SidebarItem != "" {
			policy.AccessibleSidebarItems = appendUnique(policy.AccessibleSidebarItems, c.SidebarItem)
		}
	}
	if !access.CanAccessRoute(policy, access.DefaultRoute) {
		policy.AccessibleRoutes = append([]string{access.DefaultRoute}, policy.AccessibleRoutes...)
		policy.AccessibleSidebarItems = appendUnique(policy.AccessibleSidebarItems, access.DefaultSidebarItem)
	}
	return policy
}

func holdsAny(held map[string]struct{}, domains []string) bool {
	for _, d := range domains {
		if _, ok := held[d]; ok {
			return true
		}
	}
	return false
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
