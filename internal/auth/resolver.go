// Package auth resolves session credentials into principals and serves the
// login, logout and session endpoints.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/chambers-pm/chambers/internal/access"
	"github.com/chambers-pm/chambers/internal/identity"
	"github.com/chambers-pm/chambers/internal/shared"
)

// SessionLookup reads stored sessions.
type SessionLookup interface {
	Lookup(ctx context.Context, id string) (*shared.Session, error)
	CookieName() string
	Now() time.Time
}

// AccountReader loads accounts with their current role.
type AccountReader interface {
	FindByID(ctx context.Context, id int64) (identity.Account, error)
	TouchLastSeen(ctx context.Context, id int64, at time.Time) error
}

// Resolver turns a session credential into a Principal. Every failure is
// reported as shared.ErrUnauthenticated; the reason is only logged.
type Resolver struct {
	sessions SessionLookup
	accounts AccountReader
	logger   *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(sessions SessionLookup, accounts AccountReader, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{sessions: sessions, accounts: accounts, logger: logger}
}

// Resolve validates the credential and returns the identity and role it
// currently belongs to. Nothing is cached between calls.
func (r *Resolver) Resolve(ctx context.Context, credential string) (access.Principal, error) {
	if credential == "" {
		return r.reject("missing credential", 0, nil)
	}
	sess, err := r.sessions.Lookup(ctx, credential)
	if err != nil {
		if errors.Is(err, shared.ErrSessionNotFound) {
			return r.reject("unknown session", 0, nil)
		}
		return r.reject("session lookup failed", 0, err)
	}
	if sess.User() == "" {
		return r.reject("anonymous session", 0, nil)
	}
	now := r.sessions.Now()
	if sess.Expired(now) {
		return r.reject("expired session", 0, nil)
	}
	userID, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil || userID <= 0 {
		return r.reject("malformed session user", 0, err)
	}
	account, err := r.accounts.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return r.reject("unknown identity", userID, nil)
		}
		return r.reject("identity lookup failed", userID, err)
	}
	if !account.Active {
		return r.reject("inactive identity", userID, nil)
	}
	if account.Role.ID <= 0 || account.Role.Name == "" {
		return r.reject("identity without role", userID, nil)
	}

	if err := r.accounts.TouchLastSeen(ctx, userID, now); err != nil {
		r.logger.Debug("touch last seen", slog.Int64("user_id", userID), slog.Any("error", err))
	}
	return access.Principal{Identity: account.Identity(), Role: account.Role}, nil
}

// ResolveRequest resolves the session cookie carried by req.
func (r *Resolver) ResolveRequest(req *http.Request) (access.Principal, error) {
	cookie, err := req.Cookie(r.sessions.CookieName())
	if err != nil {
		return access.Principal{}, shared.ErrUnauthenticated
	}
	return r.Resolve(req.Context(), cookie.Value)
}

func (r *Resolver) reject(reason string, userID int64, cause error) (access.Principal, error) {
	attrs := []any{slog.String("reason", reason)}
	if userID > 0 {
		attrs = append(attrs, slog.Int64("user_id", userID))
	}
	if cause != nil {
		attrs = append(attrs, slog.Any("error", cause))
		r.logger.Warn("session rejected", attrs...)
	} else {
		r.logger.Debug("session rejected", attrs...)
	}
	return access.Principal{}, shared.ErrUnauthenticated
}
