package accessclient_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chambers-pm/chambers/internal/access"
	"github.com/chambers-pm/chambers/internal/accessclient"
	"github.com/chambers-pm/chambers/internal/rbac"
	"github.com/chambers-pm/chambers/internal/shared"
)

func associateSnapshot() accessclient.Snapshot {
	return accessclient.Snapshot{
		Principal: access.Principal{Role: access.Role{ID: 5, Name: rbac.RoleAssociate}},
		Policy:    rbac.Derive([]string{shared.PermTimesheetRead, shared.PermTimesheetCreate}, rbac.DefaultCapabilities()),
	}
}

func TestGuardLoadsThenAuthorizes(t *testing.T) {
	guard := accessclient.NewRouteGuard(&accessclient.Cache{})
	assert.Equal(t, accessclient.StateLoading, guard.Current().State)

	d := guard.Navigate("/timesheet")
	require.Equal(t, accessclient.StateLoading, d.State)

	d, applied := guard.Complete(d.Ticket, associateSnapshot(), nil)
	require.True(t, applied)
	assert.Equal(t, accessclient.StateAuthorized, d.State)
}

func TestGuardRedirectsUnauthorizedToDashboard(t *testing.T) {
	cache := &accessclient.Cache{}
	cache.Store(associateSnapshot())
	guard := accessclient.NewRouteGuard(cache)

	d := guard.Navigate("/matter")
	assert.Equal(t, accessclient.StateRedirecting, d.State)
	assert.Equal(t, "/dashboard", d.Redirect)
	assert.Contains(t, d.Notice, "/matter")

	// Re-evaluated on every path change, not only on mount.
	d = guard.Navigate("/leave/requests")
	assert.Equal(t, accessclient.StateAuthorized, d.State)
}

func TestGuardRedirectsUnauthenticatedToLogin(t *testing.T) {
	guard := accessclient.NewRouteGuard(&accessclient.Cache{})
	d := guard.Navigate("/timesheet")

	d, applied := guard.Complete(d.Ticket, accessclient.Snapshot{}, accessclient.ErrUnauthenticated)
	require.True(t, applied)
	assert.Equal(t, accessclient.StateRedirecting, d.State)
	assert.Equal(t, "/login", d.Redirect)

	d = guard.Navigate("/timesheet")
	d, _ = guard.Complete(d.Ticket, accessclient.Snapshot{}, errors.New("dial tcp: refused"))
	assert.Equal(t, "/login", d.Redirect)
}

func TestGuardDropsOutOfOrderCompletion(t *testing.T) {
	guard := accessclient.NewRouteGuard(&accessclient.Cache{})

	first := guard.Navigate("/matter")
	second := guard.Navigate("/timesheet")
	require.NotEqual(t, first.Ticket, second.Ticket)

	d, applied := guard.Complete(second.Ticket, associateSnapshot(), nil)
	require.True(t, applied)
	assert.Equal(t, accessclient.StateAuthorized, d.State)

	// The superseded navigation resolves late and would have redirected.
	d, applied = guard.Complete(first.Ticket, associateSnapshot(), nil)
	assert.False(t, applied)
	assert.Equal(t, accessclient.StateAuthorized, d.State)
	assert.Equal(t, "/timesheet", guard.Current().Path)
}

func TestGuardStaleCompletionCannotOverrideRedirect(t *testing.T) {
	guard := accessclient.NewRouteGuard(&accessclient.Cache{})

	first := guard.Navigate("/timesheet")
	second := guard.Navigate("/matter")
	d, _ := guard.Complete(second.Ticket, associateSnapshot(), nil)
	require.Equal(t, accessclient.StateRedirecting, d.State)

	_, applied := guard.Complete(first.Ticket, associateSnapshot(), nil)
	assert.False(t, applied)
	assert.Equal(t, accessclient.StateRedirecting, guard.Current().State)
	assert.Equal(t, "/dashboard", guard.Current().Redirect)
}

type sourceFunc func(ctx context.Context) (accessclient.Snapshot, error)

func (f sourceFunc) Current(ctx context.Context) (accessclient.Snapshot, error) { return f(ctx) }

func TestGuardResolveUsesSource(t *testing.T) {
	cache := &accessclient.Cache{}
	guard := accessclient.NewRouteGuard(cache)
	calls := 0
	src := sourceFunc(func(context.Context) (accessclient.Snapshot, error) {
		calls++
		snap := associateSnapshot()
		cache.Store(snap)
		return snap, nil
	})

	d := guard.Resolve(context.Background(), "/timesheet", src)
	assert.Equal(t, accessclient.StateAuthorized, d.State)
	d = guard.Resolve(context.Background(), "/hr", src)
	assert.Equal(t, accessclient.StateRedirecting, d.State)
	assert.Equal(t, 1, calls)
}

func TestCacheReturnsCopies(t *testing.T) {
	cache := &accessclient.Cache{}
	cache.Store(associateSnapshot())

	snap, _ := cache.Load()
	snap.Policy.AccessibleRoutes[0] = "/admin/users"

	again, _ := cache.Load()
	assert.Equal(t, "/dashboard", again.Policy.AccessibleRoutes[0])
	assert.Equal(t, "loading", accessclient.StateLoading.String())
}
