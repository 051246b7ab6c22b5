package rbac_test

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/chambers-pm/chambers/internal/rbac"
)

// memStore is an in-memory rbac.Store.
type memStore struct {
	mu     sync.Mutex
	roles  map[int64]rbac.Role
	perms  map[string]rbac.Permission
	grants map[int64]map[string]struct{}
	nextID int64
	err    error
}

func newMemStore() *memStore {
	s := &memStore{
		roles:  make(map[int64]rbac.Role),
		perms:  make(map[string]rbac.Permission),
		grants: make(map[int64]map[string]struct{}),
	}
	for i, role := range rbac.BuiltinRoles() {
		role.ID = int64(i + 1)
		s.roles[role.ID] = role
	}
	return s
}

func (s *memStore) roleID(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.roles {
		if r.Name == name {
			return id
		}
	}
	return 0
}

func (s *memStore) grant(roleID int64, names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grants[roleID] == nil {
		s.grants[roleID] = make(map[string]struct{})
	}
	for _, n := range names {
		if _, ok := s.perms[n]; !ok {
			s.nextID++
			s.perms[n] = rbac.Permission{ID: s.nextID, Name: n}
		}
		s.grants[roleID][n] = struct{}{}
	}
}

func (s *memStore) PermissionsForRole(_ context.Context, roleID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]string, 0, len(s.grants[roleID]))
	for n := range s.grants[roleID] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (s *memStore) ListRoles(context.Context) ([]rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rbac.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) RoleByID(_ context.Context, id int64) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return rbac.Role{}, rbac.ErrNotFound
	}
	return r, nil
}

func (s *memStore) ListPermissions(context.Context) ([]rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rbac.Permission, 0, len(s.perms))
	for _, p := range s.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) EnsurePermission(_ context.Context, name, description string) (rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return rbac.Permission{}, s.err
	}
	p, ok := s.perms[name]
	if !ok {
		s.nextID++
		p = rbac.Permission{ID: s.nextID, Name: name}
	}
	p.Description = description
	s.perms[name] = p
	return p, nil
}

func (s *memStore) SetRolePermissions(_ context.Context, roleID int64, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return rbac.ErrNotFound
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := s.perms[n]; !ok {
			return rbac.ErrUnknownPermission
		}
		set[n] = struct{}{}
	}
	s.grants[roleID] = set
	return nil
}

func (s *memStore) SyncSuperadmin(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	var superID int64
	for id, r := range s.roles {
		if r.Name == rbac.RoleSuperadmin {
			superID = id
		}
	}
	if superID == 0 {
		return 0, errors.New("superadmin role missing")
	}
	if s.grants[superID] == nil {
		s.grants[superID] = make(map[string]struct{})
	}
	var added int64
	for n := range s.perms {
		if _, ok := s.grants[superID][n]; !ok {
			s.grants[superID][n] = struct{}{}
			added++
		}
	}
	return added, nil
}

var _ rbac.Store = (*memStore)(nil)
