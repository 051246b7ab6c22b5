package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/chambers-pm/chambers/internal/shared"
)

// Store is the persistence port of the administration service.
type Store interface {
	PermissionReader
	ListRoles(ctx context.Context) ([]Role, error)
	RoleByID(ctx context.Context, id int64) (Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	EnsurePermission(ctx context.Context, name, description string) (Permission, error)
	SetRolePermissions(ctx context.Context, roleID int64, names []string) error
	SyncSuperadmin(ctx context.Context) (int64, error)
}

// Service orchestrates RBAC administration: the write path for roles and grants.
type Service struct {
	store  Store
	audit  shared.Auditor
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(store Store, audit shared.Auditor, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, audit: audit, logger: logger}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.store.RoleByID(ctx, id)
}

// ListPermissions returns the permission universe.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// RolePermissions returns the names granted to a role.
func (s *Service) RolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	if _, err := s.store.RoleByID(ctx, roleID); err != nil {
		return nil, err
	}
	return s.store.PermissionsForRole(ctx, roleID)
}

// EnsurePermission adds name to the permission universe and re-derives
// superadmin's grants so it keeps holding every permission.
func (s *Service) EnsurePermission(ctx context.Context, actorID int64, name, description string) (Permission, error) {
	name = strings.TrimSpace(name)
	if _, _, err := ParsePermission(name); err != nil {
		return Permission{}, err
	}
	perm, err := s.store.EnsurePermission(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Permission{}, fmt.Errorf("rbac: ensure permission: %w", err)
	}
	if _, err := s.SyncSuperadmin(ctx); err != nil {
		return Permission{}, err
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   shared.AuditPermissionAdded,
		Entity:   "permission",
		EntityID: strconv.FormatInt(perm.ID, 10),
		Meta:     map[string]any{"name": perm.Name},
	})
	return perm, nil
}

// SetRolePermissions replaces a role's grants. Superadmin is rejected because
// its grants are derived by SyncSuperadmin.
func (s *Service) SetRolePermissions(ctx context.Context, actorID, roleID int64, names []string) error {
	role, err := s.store.RoleByID(ctx, roleID)
	if err != nil {
		return err
	}
	if role.Name == RoleSuperadmin {
		return ErrSuperadminDerived
	}
	normalized, err := normalizeNames(names)
	if err != nil {
		return err
	}
	if err := s.store.SetRolePermissions(ctx, roleID, normalized); err != nil {
		if errors.Is(err, ErrUnknownPermission) || errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("rbac: set role permissions: %w", err)
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   shared.AuditRolePermissions,
		Entity:   "role",
		EntityID: strconv.FormatInt(roleID, 10),
		Meta:     map[string]any{"role": role.Name, "permissions": normalized},
	})
	return nil
}

// SyncSuperadmin re-derives superadmin's grants from the permission universe.
func (s *Service) SyncSuperadmin(ctx context.Context) (int64, error) {
	added, err := s.store.SyncSuperadmin(ctx)
	if err != nil {
		return 0, err
	}
	if added > 0 {
		s.logger.Info("superadmin permissions synced", slog.Int64("added", added))
	}
	return added, nil
}

func (s *Service) record(ctx context.Context, entry shared.AuditLog) {
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("rbac audit", slog.String("action", entry.Action), slog.Any("error", err))
	}
}

func normalizeNames(names []string) ([]string, error) {
	unique := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if _, _, err := ParsePermission(n); err != nil {
			return nil, err
		}
		unique[n] = struct{}{}
	}
	out := make([]string, 0, len(unique))
	for n := range unique {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}
