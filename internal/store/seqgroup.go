package store

import (
	"context"
	"sort"

	"sampletrack/internal/access"
	"sampletrack/internal/errs"
	"sampletrack/internal/util"
)

// SequencingGroupUpsert is one submitted group in an upsert batch.
type SequencingGroupUpsert struct {
	// ID is empty for a new group.
	ID         string
	SampleID   string
	Type       string
	Technology string
	Platform   string
	Meta       map[string]any
	AssayIDs   []string
	// HasNewAssays marks member lists that reference assays created earlier
	// in the same request. The stored membership cannot match such a list,
	// so the group is archived and recreated without diffing.
	HasNewAssays bool
}

// SequencingGroupStore is the storage surface the version manager drives.
// PostgresStore implements it; tests substitute a fake.
type SequencingGroupStore interface {
	AssaysExist(ctx context.Context, ids []string) (map[string]bool, error)
	// FetchActiveGroups returns the current active row and member set for
	// each requested group id, in one batched query. Archived ids are absent.
	FetchActiveGroups(ctx context.Context, ids []string) (map[string]SequencingGroup, error)
	// LockActiveGroup re-reads one active group with a row lock held for the
	// remainder of the surrounding transaction.
	LockActiveGroup(ctx context.Context, id string) (SequencingGroup, error)
	PatchGroup(ctx context.Context, actor, id, platform string, meta map[string]any) error
	InsertGroup(ctx context.Context, actor string, g SequencingGroup) error
	ArchiveGroup(ctx context.Context, actor, id string) error
	Transact(ctx context.Context, fn func(SequencingGroupStore) error) error
}

// SequencingGroupManager owns the group lifecycle: membership is immutable
// once an id is assigned, so a membership change archives the current row and
// creates a successor linked through derived_from_id. Metadata and platform
// may change in place.
type SequencingGroupManager struct {
	store SequencingGroupStore
	guard *access.Guard
}

func NewSequencingGroupManager(store SequencingGroupStore, guard *access.Guard) *SequencingGroupManager {
	return &SequencingGroupManager{store: store, guard: guard}
}

// Upsert authorizes the mutation, validates the whole batch before touching
// any row, then applies each group. One group's patch or archive+create pair
// is its own transaction: sibling groups succeed or fail independently, but a
// group can never be observed archived without a successor. Returned ids
// follow batch order.
func (m *SequencingGroupManager) Upsert(ctx context.Context, actor string, projectIDs []string, batch []SequencingGroupUpsert) ([]string, error) {
	if err := m.guard.Check(ctx, actor, projectIDs, access.RoleContributor); err != nil {
		return nil, err
	}

	var allAssays []string
	for i, g := range batch {
		if len(g.AssayIDs) == 0 {
			return nil, errs.Validationf("sequencing group %d has no member assays", i)
		}
		if g.ID == "" && g.SampleID == "" {
			return nil, errs.Validationf("new sequencing group %d requires a sample id", i)
		}
		allAssays = append(allAssays, g.AssayIDs...)
	}

	exists, err := m.store.AssaysExist(ctx, allAssays)
	if err != nil {
		return nil, err
	}
	for _, id := range allAssays {
		if !exists[id] {
			return nil, &errs.NotFound{Kind: "assay", ID: id}
		}
	}

	// One batched fetch of current membership for the resolved existing
	// groups. Pending-members groups skip the diff entirely.
	var existingIDs []string
	for _, g := range batch {
		if g.ID != "" && !g.HasNewAssays {
			existingIDs = append(existingIDs, g.ID)
		}
	}
	current := map[string]SequencingGroup{}
	if len(existingIDs) > 0 {
		current, err = m.store.FetchActiveGroups(ctx, existingIDs)
		if err != nil {
			return nil, err
		}
		for _, id := range existingIDs {
			if _, ok := current[id]; !ok {
				return nil, &errs.NotFound{Kind: "sequencing group", ID: id}
			}
		}
	}

	ids := make([]string, 0, len(batch))
	for _, g := range batch {
		switch {
		case g.ID == "":
			id, err := m.create(ctx, actor, g)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)

		case !g.HasNewAssays && sameMembers(current[g.ID].AssayIDs, g.AssayIDs):
			if err := m.store.Transact(ctx, func(tx SequencingGroupStore) error {
				return tx.PatchGroup(ctx, actor, g.ID, g.Platform, g.Meta)
			}); err != nil {
				return nil, err
			}
			ids = append(ids, g.ID)

		default:
			id, err := m.archiveAndRecreate(ctx, actor, g)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *SequencingGroupManager) create(ctx context.Context, actor string, g SequencingGroupUpsert) (string, error) {
	id := util.NewID("sg")
	err := m.store.Transact(ctx, func(tx SequencingGroupStore) error {
		return tx.InsertGroup(ctx, actor, SequencingGroup{
			ID:         id,
			SampleID:   g.SampleID,
			Type:       g.Type,
			Technology: g.Technology,
			Platform:   g.Platform,
			Meta:       g.Meta,
			AssayIDs:   dedupe(g.AssayIDs),
		})
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// archiveAndRecreate is the critical section: the active row is locked for
// the duration of the transaction and the diff recomputed against the locked
// state, so two concurrent writers against the same logical key serialize
// instead of both diffing a stale snapshot. The partial unique index on the
// active key backstops the lock.
func (m *SequencingGroupManager) archiveAndRecreate(ctx context.Context, actor string, g SequencingGroupUpsert) (string, error) {
	var resultID string
	err := m.store.Transact(ctx, func(tx SequencingGroupStore) error {
		locked, err := tx.LockActiveGroup(ctx, g.ID)
		if err != nil {
			return err
		}

		if !g.HasNewAssays && sameMembers(locked.AssayIDs, g.AssayIDs) {
			// A concurrent writer already applied this membership; only the
			// metadata patch remains.
			resultID = locked.ID
			return tx.PatchGroup(ctx, actor, locked.ID, g.Platform, g.Meta)
		}

		if err := tx.ArchiveGroup(ctx, actor, locked.ID); err != nil {
			return err
		}

		platform := locked.Platform
		if g.Platform != "" {
			platform = g.Platform
		}
		successor := SequencingGroup{
			ID:            util.NewID("sg"),
			SampleID:      locked.SampleID,
			Type:          locked.Type,
			Technology:    locked.Technology,
			Platform:      platform,
			Meta:          mergeMeta(locked.Meta, g.Meta),
			AssayIDs:      dedupe(g.AssayIDs),
			DerivedFromID: &locked.ID,
		}
		if err := tx.InsertGroup(ctx, actor, successor); err != nil {
			return err
		}
		resultID = successor.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return resultID, nil
}

func sameMembers(a, b []string) bool {
	da, db := dedupe(a), dedupe(b)
	if len(da) != len(db) {
		return false
	}
	for i := range da {
		if da[i] != db[i] {
			return false
		}
	}
	return true
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
