package rbac

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/chambers-pm/chambers/internal/access"
)

// Built-in role names. The set is closed; administrators assign, never invent.
const (
	RoleSuperadmin = "superadmin"
	RoleAdmin      = "admin"
	RolePartner    = "partner"
	RoleHR         = "hr"
	RoleAssociate  = "associate"
	RoleIntern     = "intern"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrInvalidPermission is returned for names not shaped like domain:action.
	ErrInvalidPermission = errors.New("rbac: invalid permission name")
	// ErrUnknownPermission is returned when a grant names a permission outside the universe.
	ErrUnknownPermission = errors.New("rbac: unknown permission")
	// ErrSuperadminDerived rejects manual edits of superadmin's grants.
	ErrSuperadminDerived = errors.New("rbac: superadmin permissions are derived from the permission universe")
)

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Ref returns the public role reference.
func (r Role) Ref() access.Role {
	return access.Role{ID: r.ID, Name: r.Name}
}

// Permission represents an atomic capability.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RolePermission ties a permission to a role.
type RolePermission struct {
	RoleID       int64
	PermissionID int64
	CreatedAt    time.Time
}

var permissionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*:[a-z][a-z0-9_]*$`)

// ParsePermission splits a permission name into its domain and action.
func ParsePermission(name string) (domain, action string, err error) {
	if !permissionPattern.MatchString(name) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPermission, name)
	}
	for i := 0; i < len(name); i++ {
		if name[i] == ':' {
			return name[:i], name[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("%w: %q", ErrInvalidPermission, name)
}

// BuiltinRoles lists the closed role enumeration with descriptions.
func BuiltinRoles() []Role {
	return []Role{
		{Name: RoleSuperadmin, Description: "Holds every permission"},
		{Name: RoleAdmin, Description: "Firm administration"},
		{Name: RolePartner, Description: "Equity and salaried partners"},
		{Name: RoleHR, Description: "People operations"},
		{Name: RoleAssociate, Description: "Fee earners"},
		{Name: RoleIntern, Description: "Trainees and interns"},
	}
}
