package identity_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chambers-pm/chambers/internal/access"
	"github.com/chambers-pm/chambers/internal/identity"
)

type memStore struct {
	mu       sync.Mutex
	accounts map[int64]identity.Account
	roles    map[int64]string
	touched  map[int64]time.Time
}

func newMemStore(roles map[int64]string, accounts ...identity.Account) *memStore {
	s := &memStore{accounts: make(map[int64]identity.Account), roles: roles, touched: make(map[int64]time.Time)}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *memStore) FindByID(_ context.Context, id int64) (identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return identity.Account{}, identity.ErrNotFound
	}
	return a, nil
}

func (s *memStore) FindByEmail(_ context.Context, email string) (identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == identity.NormalizeEmail(email) {
			return a, nil
		}
	}
	return identity.Account{}, identity.ErrNotFound
}

func (s *memStore) List(context.Context) ([]identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]identity.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) SetActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return identity.ErrNotFound
	}
	a.Active = active
	s.accounts[id] = a
	return nil
}

func (s *memStore) SetRole(_ context.Context, id, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return identity.ErrNotFound
	}
	name, ok := s.roles[roleID]
	if !ok {
		return identity.ErrRoleNotFound
	}
	a.Role = access.Role{ID: roleID, Name: name}
	s.accounts[id] = a
	return nil
}

func (s *memStore) UpdateProfile(_ context.Context, id int64, name, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return identity.ErrNotFound
	}
	for otherID, other := range s.accounts {
		if otherID != id && other.Email == identity.NormalizeEmail(email) {
			return identity.ErrDuplicateEmail
		}
	}
	a.Name = name
	a.Email = identity.NormalizeEmail(email)
	s.accounts[id] = a
	return nil
}

func (s *memStore) TouchLastSeen(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[id] = at
	return nil
}

var _ identity.Store = (*memStore)(nil)
