package accessclient

import (
	"sync"
	"time"

	"github.com/chambers-pm/chambers/internal/access"
)

// Snapshot is an immutable copy of what the server said about the session at
// FetchedAt. Degraded marks a minimal policy substituted after the policy
// endpoint failed.
type Snapshot struct {
	Principal access.Principal
	Policy    access.Policy
	Degraded  bool
	FetchedAt time.Time
}

// HasPermission evaluates the cached policy.
func (s Snapshot) HasPermission(name string) bool {
	return access.HasPermission(s.Policy, name)
}

// CanAccessRoute evaluates the cached policy.
func (s Snapshot) CanAccessRoute(path string) bool {
	return access.CanAccessRoute(s.Policy, path)
}

// CanViewSidebarItem evaluates the cached policy.
func (s Snapshot) CanViewSidebarItem(label string) bool {
	return access.CanViewSidebarItem(s.Policy, label)
}

// Cache holds the snapshot of one client session. It is only replaced at the
// explicit invalidation points: login, logout and Refresh. Every Store and
// Invalidate advances the epoch, so a load started before one of them can be
// recognised as stale.
type Cache struct {
	mu    sync.RWMutex
	snap  *Snapshot
	epoch uint64
}

// Load returns the cached snapshot.
func (c *Cache) Load() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return Snapshot{}, false
	}
	return cloneSnapshot(*c.snap), true
}

// Epoch returns the current cache generation.
func (c *Cache) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Store replaces the cached snapshot.
func (c *Cache) Store(s Snapshot) {
	s = cloneSnapshot(s)
	c.mu.Lock()
	c.snap = &s
	c.epoch++
	c.mu.Unlock()
}

// StoreIfCurrent stores s only when no Store or Invalidate happened since
// epoch was read. It reports whether s was stored.
func (c *Cache) StoreIfCurrent(epoch uint64, s Snapshot) bool {
	s = cloneSnapshot(s)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.snap = &s
	c.epoch++
	return true
}

// Invalidate drops the cached snapshot.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.epoch++
	c.mu.Unlock()
}

// InvalidateIfCurrent drops the snapshot only when epoch is still current.
func (c *Cache) InvalidateIfCurrent(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.snap = nil
	c.epoch++
	return true
}

func cloneSnapshot(s Snapshot) Snapshot {
	s.Policy = access.Policy{
		Permissions:            cloneStrings(s.Policy.Permissions),
		AccessibleRoutes:       cloneStrings(s.Policy.AccessibleRoutes),
		AccessibleSidebarItems: cloneStrings(s.Policy.AccessibleSidebarItems),
	}
	return s
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
