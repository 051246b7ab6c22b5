// Package access holds the authorization shapes shared by the server guard and
// API clients, and the pure rules that evaluate them.
package access

import (
	"path"
	"strings"
)

const (
	// DefaultRoute is the landing route every authenticated identity may enter.
	DefaultRoute = "/dashboard"
	// DefaultSidebarItem is the sidebar label paired with DefaultRoute.
	DefaultSidebarItem = "Dashboard"
	// LoginRoute is where unauthenticated navigation is sent.
	LoginRoute = "/login"
)

// Identity is the public view of an authenticated user.
type Identity struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Active bool   `json:"active"`
}

// Role is the public view of a role.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Principal is a resolved session: who is calling and under which role.
type Principal struct {
	Identity Identity `json:"identity"`
	Role     Role     `json:"role"`
}

// Policy is the derived access policy of a role.
type Policy struct {
	Permissions            []string `json:"permissions"`
	AccessibleRoutes       []string `json:"accessibleRoutes"`
	AccessibleSidebarItems []string `json:"accessibleSidebarItems"`
}

// MinimalPolicy is the dashboard-only policy used for roles without grants and
// whenever a policy cannot be computed.
func MinimalPolicy() Policy {
	return Policy{
		Permissions:            []string{},
		AccessibleRoutes:       []string{DefaultRoute},
		AccessibleSidebarItems: []string{DefaultSidebarItem},
	}
}

// HasPermission reports whether name is granted verbatim by the policy.
func HasPermission(p Policy, name string) bool {
	if name == "" {
		return false
	}
	for _, granted := range p.Permissions {
		if granted == name {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether at least one of names is granted.
func HasAnyPermission(p Policy, names ...string) bool {
	for _, name := range names {
		if HasPermission(p, name) {
			return true
		}
	}
	return false
}

// CanAccessRoute reports whether requestedPath falls under one of the policy's
// accessible route prefixes. Matching is per path segment so "/matter" covers
// "/matter/42/notes" but not "/matters-archive".
func CanAccessRoute(p Policy, requestedPath string) bool {
	cleaned := cleanPath(requestedPath)
	if cleaned == "" {
		return false
	}
	for _, prefix := range p.AccessibleRoutes {
		prefix = cleanPath(prefix)
		if prefix == "" {
			continue
		}
		if prefix == "/" || cleaned == prefix || strings.HasPrefix(cleaned, prefix+"/") {
			return true
		}
	}
	return false
}

// CanViewSidebarItem reports whether label is one of the policy's sidebar items.
func CanViewSidebarItem(p Policy, label string) bool {
	if label == "" {
		return false
	}
	for _, item := range p.AccessibleSidebarItems {
		if item == label {
			return true
		}
	}
	return false
}

func cleanPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return path.Clean(raw)
}
