// Package access resolves project identifiers against required roles using a
// TTL-bounded membership cache. The cache is an explicit object constructed at
// service start and injected into the guard, so tests get isolated instances
// and lifecycle is a contract rather than ambient global state.
package access

import (
	"context"
	"sync"
	"time"
)

// Membership maps member identifiers to their role on one project.
type Membership map[string]Role

// ProjectEntry is one cached project: its display name plus roles by member.
type ProjectEntry struct {
	ID    string
	Name  string
	Roles Membership
}

// Cache stores project membership entries and a separate name→id mapping.
// Both expire independently; implementations are safe for concurrent use.
// A refresh only ever rewrites from source, so last-writer-wins is safe.
type Cache interface {
	GetProject(ctx context.Context, projectID string) (ProjectEntry, bool)
	SetProject(ctx context.Context, entry ProjectEntry)
	GetProjectID(ctx context.Context, name string) (string, bool)
	SetProjectID(ctx context.Context, name, id string)
}

// DefaultTTL bounds how stale a membership entry may be.
const DefaultTTL = 60 * time.Second

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
	names   map[string]memoryName
}

type memoryEntry struct {
	entry  ProjectEntry
	expiry time.Time
}

type memoryName struct {
	id     string
	expiry time.Time
}

// NewMemoryCache creates an in-process cache. ttl <= 0 uses DefaultTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
		names:   make(map[string]memoryName),
	}
}

func (c *MemoryCache) GetProject(_ context.Context, projectID string) (ProjectEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[projectID]
	if !ok || c.now().After(e.expiry) {
		return ProjectEntry{}, false
	}
	return e.entry, true
}

func (c *MemoryCache) SetProject(_ context.Context, entry ProjectEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.ID] = memoryEntry{entry: entry, expiry: c.now().Add(c.ttl)}
}

func (c *MemoryCache) GetProjectID(_ context.Context, name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.names[name]
	if !ok || c.now().After(n.expiry) {
		return "", false
	}
	return n.id, true
}

func (c *MemoryCache) SetProjectID(_ context.Context, name, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[name] = memoryName{id: id, expiry: c.now().Add(c.ttl)}
}
