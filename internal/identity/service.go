package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/chambers-pm/chambers/internal/shared"
)

// Store defines data access methods for accounts.
type Store interface {
	FindByID(ctx context.Context, id int64) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	List(ctx context.Context) ([]Account, error)
	SetActive(ctx context.Context, id int64, active bool) error
	SetRole(ctx context.Context, id, roleID int64) error
	UpdateProfile(ctx context.Context, id int64, name, email string) error
	TouchLastSeen(ctx context.Context, id int64, at time.Time) error
}

// SessionRevoker removes every live session of a user.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID string) (int, error)
}

// Profile is the editable part of an account.
type Profile struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"required,email,max=254"`
}

// Service handles account administration.
type Service struct {
	store     Store
	sessions  SessionRevoker
	audit     shared.Auditor
	logger    *slog.Logger
	validator *validator.Validate
}

// NewService builds Service instance.
func NewService(store Store, sessions SessionRevoker, audit shared.Auditor, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, sessions: sessions, audit: audit, logger: logger, validator: validator.New()}
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.store.List(ctx)
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.store.FindByID(ctx, id)
}

// Deactivate marks the account inactive and revokes its sessions. The Session
// Resolver already rejects inactive identities; revocation frees the storage.
func (s *Service) Deactivate(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return ErrSelfLockout
	}
	if err := s.store.SetActive(ctx, id, false); err != nil {
		return err
	}
	if _, err := s.RevokeSessions(ctx, actorID, id); err != nil {
		s.logger.Warn("revoke sessions after deactivation", slog.Int64("user_id", id), slog.Any("error", err))
	}
	s.record(ctx, actorID, shared.AuditIdentityActive, id, map[string]any{"active": false})
	return nil
}

// Reactivate restores a deactivated account.
func (s *Service) Reactivate(ctx context.Context, actorID, id int64) error {
	if err := s.store.SetActive(ctx, id, true); err != nil {
		return err
	}
	s.record(ctx, actorID, shared.AuditIdentityActive, id, map[string]any{"active": true})
	return nil
}

// AssignRole moves the account to roleID. Running sessions pick up the new
// role on their next request.
func (s *Service) AssignRole(ctx context.Context, actorID, id, roleID int64) error {
	if err := s.store.SetRole(ctx, id, roleID); err != nil {
		return err
	}
	s.record(ctx, actorID, shared.AuditIdentityRole, id, map[string]any{"role_id": roleID})
	return nil
}

// UpdateProfile validates and stores a new name and email.
func (s *Service) UpdateProfile(ctx context.Context, id int64, p Profile) (Account, error) {
	if err := s.validator.Struct(p); err != nil {
		return Account{}, fmt.Errorf("identity: profile: %w", err)
	}
	if err := s.store.UpdateProfile(ctx, id, p.Name, p.Email); err != nil {
		return Account{}, err
	}
	return s.store.FindByID(ctx, id)
}

// RevokeSessions ends every live session of the account.
func (s *Service) RevokeSessions(ctx context.Context, actorID, id int64) (int, error) {
	if s.sessions == nil {
		return 0, nil
	}
	n, err := s.sessions.RevokeUser(ctx, strconv.FormatInt(id, 10))
	if err != nil {
		return n, fmt.Errorf("identity: revoke sessions: %w", err)
	}
	s.record(ctx, actorID, shared.AuditSessionsRevoked, id, map[string]any{"sessions": n})
	return n, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("identity audit", slog.String("action", action), slog.Any("error", err))
	}
}
