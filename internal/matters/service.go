package matters

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Store defines data access methods for matters.
type Store interface {
	List(ctx context.Context, f ListFilter) ([]Matter, error)
	Get(ctx context.Context, id int64) (Matter, error)
	Create(ctx context.Context, in NewMatter, openedBy int64) (Matter, error)
}

// Service handles matter business logic.
type Service struct {
	store     Store
	validator *validator.Validate
}

// NewService builds Service instance.
func NewService(store Store) *Service {
	return &Service{store: store, validator: validator.New()}
}

// List returns matters matching f.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Matter, error) {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	return s.store.List(ctx, f)
}

// Get returns a matter by id.
func (s *Service) Get(ctx context.Context, id int64) (Matter, error) {
	return s.store.Get(ctx, id)
}

// Open validates and stores a new matter.
func (s *Service) Open(ctx context.Context, in NewMatter, openedBy int64) (Matter, error) {
	in.Reference = strings.ToUpper(strings.TrimSpace(in.Reference))
	in.Title = strings.TrimSpace(in.Title)
	in.ClientName = strings.TrimSpace(in.ClientName)
	if err := s.validator.Struct(in); err != nil {
		return Matter{}, fmt.Errorf("matters: %w", err)
	}
	return s.store.Create(ctx, in, openedBy)
}
