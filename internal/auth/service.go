package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/chambers-pm/chambers/internal/identity"
	"github.com/chambers-pm/chambers/internal/shared"
)

// CredentialStore finds accounts by login email.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (identity.Account, error)
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	accounts CredentialStore
	audit    shared.Auditor
	logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, accounts CredentialStore, audit shared.Auditor, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, accounts: accounts, audit: audit, logger: logger}
}

// burnHash is compared against when the email is unknown so both paths cost a
// bcrypt round.
var burnHash, _ = bcrypt.GenerateFromPassword([]byte("chambers-unknown-account"), bcrypt.MinCost)

// Authenticate validates email/password credentials. Unknown, inactive and
// mismatching accounts all yield shared.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (identity.Account, error) {
	account, err := s.accounts.FindByEmail(ctx, identity.NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			return identity.Account{}, fmt.Errorf("auth: find account: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(burnHash, []byte(password))
		return identity.Account{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return identity.Account{}, shared.ErrInvalidCredentials
	}
	if !account.Active {
		return identity.Account{}, shared.ErrInvalidCredentials
	}
	return account, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// PurgeExpired deletes session records that expired before now.
func (s *Service) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.repo.PurgeExpiredSessions(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("auth: purge sessions: %w", err)
	}
	return n, nil
}

// Record writes an authentication audit entry; failures are logged only.
func (s *Service) Record(ctx context.Context, actorID int64, action string, meta map[string]any) {
	entityID := "anonymous"
	if actorID > 0 {
		entityID = strconv.FormatInt(actorID, 10)
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("auth audit", slog.String("action", action), slog.Any("error", err))
	}
}
