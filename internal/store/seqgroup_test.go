package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"sampletrack/internal/access"
	"sampletrack/internal/errs"
)

// fakeGroupStore keeps groups in memory and counts writes, standing in for
// the Postgres implementation.
type fakeGroupStore struct {
	assays   map[string]bool
	groups   map[string]*SequencingGroup // active and archived, by id
	inserts  int
	patches  int
	archives int
	txDepth  int
}

func newFakeGroupStore() *fakeGroupStore {
	return &fakeGroupStore{
		assays: map[string]bool{"A": true, "B": true, "C": true},
		groups: map[string]*SequencingGroup{},
	}
}

func (f *fakeGroupStore) addActiveGroup(id, sampleID string, assayIDs []string, meta map[string]any) {
	f.groups[id] = &SequencingGroup{
		ID:         id,
		SampleID:   sampleID,
		Type:       "genome",
		Technology: "short-read",
		Platform:   "illumina",
		Meta:       meta,
		AssayIDs:   assayIDs,
		CreatedAt:  time.Now(),
	}
}

func (f *fakeGroupStore) AssaysExist(_ context.Context, ids []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, id := range ids {
		out[id] = f.assays[id]
	}
	return out, nil
}

func (f *fakeGroupStore) FetchActiveGroups(_ context.Context, ids []string) (map[string]SequencingGroup, error) {
	out := map[string]SequencingGroup{}
	for _, id := range ids {
		if g, ok := f.groups[id]; ok && !g.Archived {
			out[id] = *g
		}
	}
	return out, nil
}

func (f *fakeGroupStore) LockActiveGroup(_ context.Context, id string) (SequencingGroup, error) {
	if g, ok := f.groups[id]; ok && !g.Archived {
		return *g, nil
	}
	return SequencingGroup{}, &errs.NotFound{Kind: "sequencing group", ID: id}
}

func (f *fakeGroupStore) PatchGroup(_ context.Context, _, id, platform string, meta map[string]any) error {
	g, ok := f.groups[id]
	if !ok || g.Archived {
		return &errs.NotFound{Kind: "sequencing group", ID: id}
	}
	g.Meta = mergeMeta(g.Meta, meta)
	if platform != "" {
		g.Platform = platform
	}
	f.patches++
	return nil
}

func (f *fakeGroupStore) InsertGroup(_ context.Context, _ string, g SequencingGroup) error {
	stored := g
	f.groups[g.ID] = &stored
	f.inserts++
	return nil
}

func (f *fakeGroupStore) ArchiveGroup(_ context.Context, _, id string) error {
	g, ok := f.groups[id]
	if !ok || g.Archived {
		return &errs.NotFound{Kind: "sequencing group", ID: id}
	}
	g.Archived = true
	f.archives++
	return nil
}

func (f *fakeGroupStore) Transact(_ context.Context, fn func(SequencingGroupStore) error) error {
	f.txDepth++
	defer func() { f.txDepth-- }()
	return fn(f)
}

func (f *fakeGroupStore) activeForSample(sampleID string) *SequencingGroup {
	for _, g := range f.groups {
		if g.SampleID == sampleID && !g.Archived {
			return g
		}
	}
	return nil
}

func newTestManager(store SequencingGroupStore) *SequencingGroupManager {
	guard := access.NewGuard(nil, access.NewMemoryCache(time.Minute), true)
	return NewSequencingGroupManager(store, guard)
}

func TestUpsertCreatesNewGroup(t *testing.T) {
	fake := newFakeGroupStore()
	mgr := newTestManager(fake)

	ids, err := mgr.Upsert(context.Background(), "svc", []string{"p1"}, []SequencingGroupUpsert{{
		SampleID:   "smp1",
		Type:       "genome",
		Technology: "short-read",
		Platform:   "illumina",
		AssayIDs:   []string{"A", "B"},
	}})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if len(ids) != 1 || ids[0] == "" {
		t.Fatalf("expected one assigned id, got %v", ids)
	}
	g := fake.groups[ids[0]]
	if g == nil || g.Archived {
		t.Fatalf("expected active group, got %+v", g)
	}
	if len(g.AssayIDs) != 2 {
		t.Fatalf("expected two members, got %v", g.AssayIDs)
	}
}

func TestUpsertUnchangedMembersPatchesInPlace(t *testing.T) {
	fake := newFakeGroupStore()
	fake.addActiveGroup("G", "smp1", []string{"A", "B"}, map[string]any{"old": "kept"})
	mgr := newTestManager(fake)

	ids, err := mgr.Upsert(context.Background(), "svc", []string{"p1"}, []SequencingGroupUpsert{{
		ID:       "G",
		AssayIDs: []string{"B", "A"}, // order must not matter
		Meta:     map[string]any{"k": "v"},
	}})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if ids[0] != "G" {
		t.Fatalf("id must be unchanged, got %v", ids)
	}
	if fake.inserts != 0 || fake.archives != 0 || fake.patches != 1 {
		t.Fatalf("expected one in-place patch, got inserts=%d archives=%d patches=%d", fake.inserts, fake.archives, fake.patches)
	}
	g := fake.groups["G"]
	if g.Meta["k"] != "v" || g.Meta["old"] != "kept" {
		t.Fatalf("expected merged meta, got %v", g.Meta)
	}
}

func TestUpsertChangedMembersArchivesAndRecreates(t *testing.T) {
	fake := newFakeGroupStore()
	fake.addActiveGroup("G", "smp1", []string{"A", "B"}, map[string]any{"old": "kept"})
	mgr := newTestManager(fake)

	ids, err := mgr.Upsert(context.Background(), "svc", []string{"p1"}, []SequencingGroupUpsert{{
		ID:       "G",
		AssayIDs: []string{"A", "C"},
		Meta:     map[string]any{"k": "v"},
	}})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if ids[0] == "G" {
		t.Fatalf("membership change must assign a new id")
	}

	old := fake.groups["G"]
	if !old.Archived {
		t.Fatalf("predecessor must be archived, not deleted")
	}

	successor := fake.groups[ids[0]]
	if successor.DerivedFromID == nil || *successor.DerivedFromID != "G" {
		t.Fatalf("successor must link its predecessor, got %+v", successor.DerivedFromID)
	}
	if got := successor.AssayIDs; len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Fatalf("unexpected successor members: %v", got)
	}
	if successor.Meta["old"] != "kept" || successor.Meta["k"] != "v" {
		t.Fatalf("successor meta must merge old and new, got %v", successor.Meta)
	}
	if successor.SampleID != "smp1" || successor.Type != "genome" || successor.Technology != "short-read" {
		t.Fatalf("successor must carry forward the logical key, got %+v", successor)
	}
	if active := fake.activeForSample("smp1"); active == nil || active.ID != successor.ID {
		t.Fatalf("exactly one active group expected for the sample")
	}
}

func TestUpsertIdempotentForUnchangedMembers(t *testing.T) {
	fake := newFakeGroupStore()
	fake.addActiveGroup("G", "smp1", []string{"A", "B"}, nil)
	mgr := newTestManager(fake)
	ctx := context.Background()

	batch := []SequencingGroupUpsert{{ID: "G", AssayIDs: []string{"A", "B"}, Meta: map[string]any{"k": "v"}}}
	var lastID string
	for i := 0; i < 3; i++ {
		ids, err := mgr.Upsert(ctx, "svc", []string{"p1"}, batch)
		if err != nil {
			t.Fatalf("Upsert %d failed: %v", i, err)
		}
		lastID = ids[0]
	}
	if lastID != "G" {
		t.Fatalf("repeated unchanged upserts must keep the id, got %s", lastID)
	}
	if fake.inserts != 0 || fake.archives != 0 {
		t.Fatalf("repeated unchanged upserts must not create rows: inserts=%d archives=%d", fake.inserts, fake.archives)
	}
}

func TestUpsertOneArchivePerLogicalChange(t *testing.T) {
	fake := newFakeGroupStore()
	fake.addActiveGroup("G", "smp1", []string{"A", "B"}, nil)
	mgr := newTestManager(fake)
	ctx := context.Background()

	ids, err := mgr.Upsert(ctx, "svc", []string{"p1"}, []SequencingGroupUpsert{{ID: "G", AssayIDs: []string{"A", "C"}}})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Re-submitting the same membership against the successor is a no-op.
	for i := 0; i < 3; i++ {
		again, err := mgr.Upsert(ctx, "svc", []string{"p1"}, []SequencingGroupUpsert{{ID: ids[0], AssayIDs: []string{"C", "A"}}})
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if again[0] != ids[0] {
			t.Fatalf("unchanged re-submit must keep id %s, got %s", ids[0], again[0])
		}
	}
	if fake.archives != 1 {
		t.Fatalf("expected exactly one archived predecessor, got %d", fake.archives)
	}
}

func TestUpsertPendingMembersForcesRecreate(t *testing.T) {
	fake := newFakeGroupStore()
	fake.addActiveGroup("G", "smp1", []string{"A", "B"}, nil)
	mgr := newTestManager(fake)

	ids, err := mgr.Upsert(context.Background(), "svc", []string{"p1"}, []SequencingGroupUpsert{{
		ID:           "G",
		AssayIDs:     []string{"A", "B"},
		HasNewAssays: true,
	}})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if ids[0] == "G" {
		t.Fatalf("pending members must force a recreate")
	}
	if !fake.groups["G"].Archived {
		t.Fatalf("predecessor must be archived")
	}
}

func TestUpsertNoMembersIsValidationError(t *testing.T) {
	fake := newFakeGroupStore()
	fake.addActiveGroup("G", "smp1", []string{"A"}, nil)
	mgr := newTestManager(fake)

	_, err := mgr.Upsert(context.Background(), "svc", []string{"p1"}, []SequencingGroupUpsert{
		{ID: "G", AssayIDs: []string{"A"}},
		{ID: "G2", AssayIDs: nil},
	})
	var verr *errs.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if fake.patches != 0 || fake.inserts != 0 || fake.archives != 0 {
		t.Fatalf("validation must run before any write")
	}
}

func TestUpsertUnknownAssayAbortsBatch(t *testing.T) {
	fake := newFakeGroupStore()
	mgr := newTestManager(fake)

	_, err := mgr.Upsert(context.Background(), "svc", []string{"p1"}, []SequencingGroupUpsert{
		{SampleID: "smp1", AssayIDs: []string{"A"}},
		{SampleID: "smp2", AssayIDs: []string{"GHOST"}},
	})
	var nf *errs.NotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if nf.Kind != "assay" || nf.ID != "GHOST" {
		t.Fatalf("unexpected NotFound: %+v", nf)
	}
	if fake.inserts != 0 {
		t.Fatalf("no partial application: inserts=%d", fake.inserts)
	}
}

func TestUpsertUnknownGroupIsNotFound(t *testing.T) {
	fake := newFakeGroupStore()
	mgr := newTestManager(fake)

	_, err := mgr.Upsert(context.Background(), "svc", []string{"p1"}, []SequencingGroupUpsert{{
		ID:       "GHOST",
		AssayIDs: []string{"A"},
	}})
	var nf *errs.NotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestUpsertDeniedBeforeAnyFetch(t *testing.T) {
	fake := newFakeGroupStore()
	fake.addActiveGroup("G", "smp1", []string{"A"}, nil)

	// A guard with no membership for the caller denies everything.
	guard := access.NewGuard(emptyMembershipStore{}, access.NewMemoryCache(time.Minute), false)
	mgr := NewSequencingGroupManager(fake, guard)

	_, err := mgr.Upsert(context.Background(), "outsider", []string{"p1"}, []SequencingGroupUpsert{{
		ID:       "G",
		AssayIDs: []string{"A"},
	}})
	var denied *errs.AccessDenied
	if !errors.As(err, &denied) {
		t.Fatalf("expected AccessDenied, got %v", err)
	}
	if fake.patches != 0 || fake.inserts != 0 || fake.archives != 0 {
		t.Fatalf("denied caller must not reach storage")
	}
}

type emptyMembershipStore struct{}

func (emptyMembershipStore) ProjectMembers(_ context.Context, ids []string) (map[string]access.ProjectEntry, error) {
	out := map[string]access.ProjectEntry{}
	for _, id := range ids {
		out[id] = access.ProjectEntry{ID: id, Name: id, Roles: access.Membership{}}
	}
	return out, nil
}

func (emptyMembershipStore) ProjectIDsByName(context.Context, []string) (map[string]string, error) {
	return map[string]string{}, nil
}

func TestUpsertConcurrentWriterAlreadyApplied(t *testing.T) {
	// The locked re-read sees membership already equal to the request: the
	// manager must fall back to a patch instead of archiving.
	fake := newFakeGroupStore()
	fake.addActiveGroup("G", "smp1", []string{"A", "B"}, nil)
	staleFetch := &staleFetchStore{fakeGroupStore: fake}
	mgr := newTestManager(staleFetch)

	ids, err := mgr.Upsert(context.Background(), "svc", []string{"p1"}, []SequencingGroupUpsert{{
		ID:       "G",
		AssayIDs: []string{"A", "B"},
		Meta:     map[string]any{"k": "v"},
	}})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if ids[0] != "G" {
		t.Fatalf("expected patch of existing group, got %v", ids)
	}
	if fake.archives != 0 {
		t.Fatalf("no archive expected when locked state matches the request")
	}
}

// staleFetchStore simulates a concurrent writer landing between the batched
// snapshot fetch and the locked re-read: the snapshot claims members differ,
// the locked row says they match.
type staleFetchStore struct {
	*fakeGroupStore
}

func (s *staleFetchStore) FetchActiveGroups(ctx context.Context, ids []string) (map[string]SequencingGroup, error) {
	out, err := s.fakeGroupStore.FetchActiveGroups(ctx, ids)
	if err != nil {
		return nil, err
	}
	for id, g := range out {
		g.AssayIDs = []string{"STALE"}
		out[id] = g
	}
	return out, nil
}

func (s *staleFetchStore) Transact(_ context.Context, fn func(SequencingGroupStore) error) error {
	return fn(s)
}
