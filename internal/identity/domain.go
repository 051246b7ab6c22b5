// Package identity owns user accounts: who can sign in, under which role, and
// whether they are still active.
package identity

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/chambers-pm/chambers/internal/access"
)

var (
	// ErrNotFound indicates that no account matches.
	ErrNotFound = errors.New("identity: not found")
	// ErrDuplicateEmail is returned when another account already uses the email.
	ErrDuplicateEmail = errors.New("identity: email already in use")
	// ErrRoleNotFound is returned when assigning a role that does not exist.
	ErrRoleNotFound = errors.New("identity: role not found")
	// ErrSelfLockout prevents an administrator from deactivating their own account.
	ErrSelfLockout = errors.New("identity: cannot deactivate your own account")
)

// Account is the persisted user record.
type Account struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Active       bool
	Role         access.Role
	LastSeenAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity returns the public view of the account.
func (a Account) Identity() access.Identity {
	return access.Identity{ID: a.ID, Name: a.Name, Email: a.Email, Active: a.Active}
}

// Summary is the administrative listing shape of an account.
type Summary struct {
	access.Identity
	Role       access.Role `json:"role"`
	LastSeenAt *time.Time  `json:"lastSeenAt,omitempty"`
}

// Summary projects the account for administration endpoints.
func (a Account) Summary() Summary {
	return Summary{Identity: a.Identity(), Role: a.Role, LastSeenAt: a.LastSeenAt}
}

var emailFolder = cases.Fold()

// NormalizeEmail trims and case-folds an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return emailFolder.String(strings.TrimSpace(email))
}
