package accessclient

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chambers-pm/chambers/internal/access"
)

// State is the route guard's rendering state.
type State int

const (
	// StateLoading renders nothing privileged while the snapshot is pending.
	StateLoading State = iota
	// StateAuthorized renders the protected route.
	StateAuthorized
	// StateRedirecting shows Notice while navigating to Redirect.
	StateRedirecting
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAuthorized:
		return "authorized"
	case StateRedirecting:
		return "redirecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Ticket identifies one navigation. Only the latest ticket may complete.
type Ticket uint64

// Decision is what the guard currently shows for Path.
type Decision struct {
	State    State
	Path     string
	Redirect string
	Notice   string
	Ticket   Ticket
}

// SnapshotSource supplies the session snapshot. *Client satisfies it.
type SnapshotSource interface {
	Current(ctx context.Context) (Snapshot, error)
}

// RouteGuard gates navigation on the cached policy. It re-evaluates on every
// path change and ignores completions for superseded navigations.
type RouteGuard struct {
	cache *Cache

	mu      sync.Mutex
	latest  Ticket
	current Decision
}

// NewRouteGuard returns a guard reading from cache.
func NewRouteGuard(cache *Cache) *RouteGuard {
	return &RouteGuard{cache: cache, current: Decision{State: StateLoading}}
}

// Current returns the decision last applied.
func (g *RouteGuard) Current() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Navigate starts a navigation to path. With a cached snapshot the decision is
// made synchronously; otherwise the guard enters StateLoading and the caller
// must finish with Complete using the returned ticket.
func (g *RouteGuard) Navigate(path string) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latest++
	if snap, ok := g.cache.Load(); ok {
		g.current = decide(g.latest, path, snap)
		return g.current
	}
	g.current = Decision{State: StateLoading, Path: path, Ticket: g.latest}
	return g.current
}

// Complete applies the outcome of the snapshot load started for ticket. It
// reports false, leaving the current decision untouched, when a newer
// navigation has started since.
func (g *RouteGuard) Complete(ticket Ticket, snap Snapshot, err error) (Decision, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ticket != g.latest || g.current.State != StateLoading {
		return g.current, false
	}
	if err != nil {
		notice := "Please sign in to continue."
		if !errors.Is(err, ErrUnauthenticated) {
			notice = "Your session could not be verified. Please sign in again."
		}
		g.current = Decision{State: StateRedirecting, Path: g.current.Path, Redirect: access.LoginRoute, Notice: notice, Ticket: ticket}
		return g.current, true
	}
	g.current = decide(ticket, g.current.Path, snap)
	return g.current, true
}

// Resolve navigates to path and, when the snapshot is not cached, loads it
// from src before completing.
func (g *RouteGuard) Resolve(ctx context.Context, path string, src SnapshotSource) Decision {
	d := g.Navigate(path)
	if d.State != StateLoading {
		return d
	}
	snap, err := src.Current(ctx)
	applied, _ := g.Complete(d.Ticket, snap, err)
	return applied
}

func decide(ticket Ticket, path string, snap Snapshot) Decision {
	if access.CanAccessRoute(snap.Policy, path) {
		return Decision{State: StateAuthorized, Path: path, Ticket: ticket}
	}
	return Decision{
		State:    StateRedirecting,
		Path:     path,
		Redirect: access.DefaultRoute,
		Notice:   fmt.Sprintf("You do not have access to %s.", path),
		Ticket:   ticket,
	}
}
