package access

import (
	"context"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"sampletrack/internal/errs"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sampletrack_permission_cache_hits_total",
		Help: "Permission cache lookups served without a backing fetch.",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sampletrack_permission_cache_misses_total",
		Help: "Permission cache lookups that required a backing fetch.",
	})
	denials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sampletrack_access_denials_total",
		Help: "Access checks that ended in denial.",
	})
)

// MembershipStore is the backing identity store the guard fills its cache
// from. Implementations fetch in one batch per call.
type MembershipStore interface {
	// ProjectMembers returns, for each existing requested project, its entry
	// with member roles. Unknown ids are simply absent from the result.
	ProjectMembers(ctx context.Context, projectIDs []string) (map[string]ProjectEntry, error)
	// ProjectIDsByName resolves project names to ids. Unknown names are
	// absent from the result.
	ProjectIDsByName(ctx context.Context, names []string) (map[string]string, error)
}

// Guard authorizes project-scoped operations. It is safe for concurrent use.
type Guard struct {
	store MembershipStore
	cache Cache

	// fullAccess bypasses membership checks for administrative or test
	// execution contexts. It is only ever set from explicit configuration.
	fullAccess bool
}

// NewGuard builds a guard over the given backing store and cache.
func NewGuard(store MembershipStore, cache Cache, fullAccess bool) *Guard {
	return &Guard{store: store, cache: cache, fullAccess: fullAccess}
}

// FullAccess reports whether the guard bypasses membership checks.
func (g *Guard) FullAccess() bool {
	return g.fullAccess
}

// Check verifies that member holds at least the required role on every given
// project. It returns errs.AccessDenied naming each project the member lacks,
// and always fails closed on an empty or unresolvable project set. The check
// completes before any guarded rows are fetched by the caller.
func (g *Guard) Check(ctx context.Context, member string, projectIDs []string, required Role) error {
	if len(projectIDs) == 0 {
		denials.Inc()
		return &errs.AccessDenied{Member: member}
	}
	if g.fullAccess {
		return nil
	}

	entries, err := g.resolve(ctx, projectIDs)
	if err != nil {
		return err
	}

	var denied []string
	for _, id := range projectIDs {
		entry, ok := entries[id]
		if !ok {
			// Unresolvable project: deny, never infer unrestricted.
			denied = append(denied, id)
			continue
		}
		if !entry.Roles[member].Covers(required) {
			label := entry.Name
			if label == "" {
				label = id
			}
			denied = append(denied, label)
		}
	}
	if len(denied) > 0 {
		sort.Strings(denied)
		denials.Inc()
		return &errs.AccessDenied{Member: member, Projects: denied}
	}
	return nil
}

// ResolveNames maps project names to ids through the name cache, fetching
// only the names not already cached. Unknown names are a NotFound.
func (g *Guard) ResolveNames(ctx context.Context, names []string) ([]string, error) {
	ids := make([]string, len(names))
	var missing []string
	missingIdx := map[string][]int{}

	for i, name := range names {
		if id, ok := g.cache.GetProjectID(ctx, name); ok {
			ids[i] = id
			continue
		}
		if len(missingIdx[name]) == 0 {
			missing = append(missing, name)
		}
		missingIdx[name] = append(missingIdx[name], i)
	}

	if len(missing) > 0 {
		resolved, err := g.store.ProjectIDsByName(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("resolve project names: %w", err)
		}
		for _, name := range missing {
			id, ok := resolved[name]
			if !ok {
				return nil, &errs.NotFound{Kind: "project", ID: name}
			}
			g.cache.SetProjectID(ctx, name, id)
			for _, i := range missingIdx[name] {
				ids[i] = id
			}
		}
	}
	return ids, nil
}

// resolve returns cached entries for the requested projects, batching one
// backing fetch for the ids that are uncached or expired. Recomputing from
// source never corrupts the cache: the stored value is a pure function of
// backing state.
func (g *Guard) resolve(ctx context.Context, projectIDs []string) (map[string]ProjectEntry, error) {
	entries := make(map[string]ProjectEntry, len(projectIDs))
	var missing []string
	requested := map[string]struct{}{}

	for _, id := range projectIDs {
		if _, seen := requested[id]; seen {
			continue
		}
		requested[id] = struct{}{}
		if entry, ok := g.cache.GetProject(ctx, id); ok {
			cacheHits.Inc()
			entries[id] = entry
			continue
		}
		cacheMisses.Inc()
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		fetched, err := g.store.ProjectMembers(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("fetch project members: %w", err)
		}
		for id, entry := range fetched {
			g.cache.SetProject(ctx, entry)
			entries[id] = entry
		}
	}
	return entries, nil
}
