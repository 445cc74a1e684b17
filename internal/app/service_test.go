package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"sampletrack/internal/access"
	"sampletrack/internal/apikey"
	"sampletrack/internal/errs"
	"sampletrack/internal/store"
)

type fakeMembers struct {
	entries map[string]access.ProjectEntry
}

func (f *fakeMembers) ProjectMembers(_ context.Context, projectIDs []string) (map[string]access.ProjectEntry, error) {
	out := map[string]access.ProjectEntry{}
	for _, id := range projectIDs {
		if entry, ok := f.entries[id]; ok {
			out[id] = entry
		}
	}
	return out, nil
}

func (f *fakeMembers) ProjectIDsByName(_ context.Context, names []string) (map[string]string, error) {
	out := map[string]string{}
	for _, entry := range f.entries {
		out[entry.Name] = entry.ID
	}
	return out, nil
}

type fakeAppStore struct {
	projects map[string]store.Project
	readable map[string][]string
	samples  map[string]store.Sample

	sampleFilters []store.SampleFilter
	groupFilters  []store.SequencingGroupFilter
	memberSets    int
	upsertCalls   int
}

func newFakeAppStore() *fakeAppStore {
	return &fakeAppStore{
		projects: map[string]store.Project{},
		readable: map[string][]string{},
		samples:  map[string]store.Sample{},
	}
}

func (f *fakeAppStore) Ping(context.Context) error { return nil }

func (f *fakeAppStore) CreateProject(_ context.Context, name, creator string, meta map[string]any) (store.Project, error) {
	p := store.Project{ID: "prj_" + name, Name: name, Meta: meta}
	f.projects[p.ID] = p
	return p, nil
}

func (f *fakeAppStore) GetProject(_ context.Context, id string) (store.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return store.Project{}, &errs.NotFound{Kind: "project", ID: id}
	}
	return p, nil
}

func (f *fakeAppStore) ListProjects(context.Context) ([]store.Project, error) {
	out := make([]store.Project, 0, len(f.projects))
	for _, p := range f.projects {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeAppStore) SetProjectMember(_ context.Context, actor, projectID, member string, role access.Role) error {
	f.memberSets++
	return nil
}

func (f *fakeAppStore) GetProjectSummary(_ context.Context, projectID string) (store.ProjectSummary, error) {
	return store.ProjectSummary{}, nil
}

func (f *fakeAppStore) ReadableProjects(_ context.Context, member string) ([]string, error) {
	return f.readable[member], nil
}

func (f *fakeAppStore) ListAudit(_ context.Context, subjectKind, subjectID string, limit int) ([]store.AuditEntry, error) {
	return nil, nil
}

func (f *fakeAppStore) UpsertParticipant(_ context.Context, actor string, p store.Participant) (store.Participant, error) {
	f.upsertCalls++
	p.ID = "pt_1"
	return p, nil
}

func (f *fakeAppStore) UpsertSampleTree(_ context.Context, actor, projectID string, roots []*store.SampleUpsert) ([]string, error) {
	f.upsertCalls++
	ids := make([]string, 0, len(roots))
	for i := range roots {
		ids = append(ids, "smp_"+string(rune('a'+i)))
	}
	return ids, nil
}

func (f *fakeAppStore) QuerySamples(_ context.Context, filter store.SampleFilter) ([]store.Sample, error) {
	f.sampleFilters = append(f.sampleFilters, filter)
	return nil, nil
}

func (f *fakeAppStore) GetSample(_ context.Context, id string) (store.Sample, error) {
	s, ok := f.samples[id]
	if !ok {
		return store.Sample{}, &errs.NotFound{Kind: "sample", ID: id}
	}
	return s, nil
}

func (f *fakeAppStore) ListAssays(_ context.Context, sampleID string) ([]store.Assay, error) {
	return nil, nil
}

func (f *fakeAppStore) QuerySequencingGroups(_ context.Context, filter store.SequencingGroupFilter) ([]store.SequencingGroup, error) {
	f.groupFilters = append(f.groupFilters, filter)
	return nil, nil
}

func (f *fakeAppStore) CreateAnalysis(_ context.Context, actor, projectID string, in store.AnalysisCreate) (store.Analysis, error) {
	f.upsertCalls++
	return store.Analysis{ID: "an_1", ProjectID: projectID, Type: in.Type, Status: "queued"}, nil
}

func (f *fakeAppStore) UpdateAnalysisStatus(_ context.Context, actor, projectID, analysisID, status, outputObject string) error {
	return nil
}

func (f *fakeAppStore) GetAnalysis(_ context.Context, projectID, analysisID string) (store.Analysis, error) {
	return store.Analysis{}, &errs.NotFound{Kind: "analysis", ID: analysisID}
}

func (f *fakeAppStore) ListAnalyses(_ context.Context, projectID string) ([]store.Analysis, error) {
	return nil, nil
}

func (f *fakeAppStore) CreateCohort(_ context.Context, actor, projectID, name, description string, groupIDs []string) (store.Cohort, error) {
	f.upsertCalls++
	return store.Cohort{ID: "coh_1", ProjectID: projectID, Name: name}, nil
}

func (f *fakeAppStore) GetCohort(_ context.Context, projectID, cohortID string) (store.Cohort, error) {
	return store.Cohort{}, &errs.NotFound{Kind: "cohort", ID: cohortID}
}

func (f *fakeAppStore) ListCohorts(_ context.Context, projectID string) ([]store.Cohort, error) {
	return nil, nil
}

type fakeGroups struct {
	calls int
	ids   []string
}

func (f *fakeGroups) Upsert(_ context.Context, actor string, projectIDs []string, batch []store.SequencingGroupUpsert) ([]string, error) {
	f.calls++
	return f.ids, nil
}

func newTestService(fs *fakeAppStore) *Service {
	members := &fakeMembers{
		entries: map[string]access.ProjectEntry{
			"p1": {ID: "p1", Name: "seq-prod", Roles: access.Membership{
				"alice": access.RoleAdmin,
				"bob":   access.RoleReader,
			}},
			"p2": {ID: "p2", Name: "seq-test", Roles: access.Membership{
				"alice": access.RoleContributor,
			}},
		},
	}
	guard := access.NewGuard(members, access.NewMemoryCache(time.Minute), false)
	return NewService(fs, guard, &fakeGroups{ids: []string{"sg_1"}}, []byte("test-secret"))
}

func TestLoginAndSessionRoundTrip(t *testing.T) {
	svc := newTestService(newFakeAppStore())

	session, err := svc.Login(context.Background(), "alice", "Alice")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.Token == "" {
		t.Fatal("expected a token")
	}

	resolved, err := svc.SessionFromToken(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	if resolved.Member != "alice" || resolved.Name != "Alice" || resolved.Service {
		t.Fatalf("unexpected session %+v", resolved)
	}
}

func TestLoginRequiresMember(t *testing.T) {
	svc := newTestService(newFakeAppStore())

	_, err := svc.Login(context.Background(), "  ", "Nobody")
	var validation *errs.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestQuerySamplesDeniedBeforeStore(t *testing.T) {
	fs := newFakeAppStore()
	svc := newTestService(fs)

	_, err := svc.QuerySamples(context.Background(), Session{Member: "mallory"}, "p1", SampleQueryInput{})
	var denied *errs.AccessDenied
	if !errors.As(err, &denied) {
		t.Fatalf("expected access denied, got %v", err)
	}
	if len(fs.sampleFilters) != 0 {
		t.Fatalf("store queried despite denial: %d calls", len(fs.sampleFilters))
	}
}

func TestQuerySamplesPinsProject(t *testing.T) {
	fs := newFakeAppStore()
	svc := newTestService(fs)

	eq := "blood"
	_, err := svc.QuerySamples(context.Background(), Session{Member: "bob"}, "p1", SampleQueryInput{
		Type: &StringExprInput{Eq: &eq},
	})
	if err != nil {
		t.Fatalf("QuerySamples: %v", err)
	}
	if len(fs.sampleFilters) != 1 {
		t.Fatalf("expected one store query, got %d", len(fs.sampleFilters))
	}
	got := fs.sampleFilters[0]
	if got.ProjectID == nil {
		t.Fatal("project filter not pinned")
	}
	if got.Type == nil {
		t.Fatal("type filter dropped")
	}
	if got.ID != nil || got.Active != nil {
		t.Fatal("absent filters should stay nil")
	}
}

func TestQuerySamplesEmptyInListStaysExplicit(t *testing.T) {
	fs := newFakeAppStore()
	svc := newTestService(fs)

	empty := []string{}
	_, err := svc.QuerySamples(context.Background(), Session{Member: "bob"}, "p1", SampleQueryInput{
		ID: &StringExprInput{In: &empty},
	})
	if err != nil {
		t.Fatalf("QuerySamples: %v", err)
	}
	if fs.sampleFilters[0].ID == nil {
		t.Fatal("explicit empty in-list must produce a filter, not be dropped")
	}
}

func TestListProjectsScopesToMembership(t *testing.T) {
	fs := newFakeAppStore()
	fs.projects["p1"] = store.Project{ID: "p1", Name: "seq-prod"}
	fs.projects["p2"] = store.Project{ID: "p2", Name: "seq-test"}
	fs.projects["p3"] = store.Project{ID: "p3", Name: "seq-other"}
	fs.readable["bob"] = []string{"p1"}
	svc := newTestService(fs)

	projects, err := svc.ListProjects(context.Background(), Session{Member: "bob"})
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != "p1" {
		t.Fatalf("expected only p1, got %+v", projects)
	}
}

func TestListProjectsFullAccessSeesAll(t *testing.T) {
	fs := newFakeAppStore()
	fs.projects["p1"] = store.Project{ID: "p1"}
	fs.projects["p2"] = store.Project{ID: "p2"}
	guard := access.NewGuard(&fakeMembers{}, access.NewMemoryCache(time.Minute), true)
	svc := NewService(fs, guard, &fakeGroups{}, []byte("test-secret"))

	projects, err := svc.ListProjects(context.Background(), Session{Member: "pipeline"})
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(projects))
	}
}

func TestGetSampleCrossProjectDenied(t *testing.T) {
	fs := newFakeAppStore()
	fs.samples["smp_x"] = store.Sample{ID: "smp_x", ProjectID: "p2", ExternalID: "EXT-1"}
	svc := newTestService(fs)

	// bob reads p1 but not p2; the sample itself resolves, access does not.
	_, err := svc.GetSample(context.Background(), Session{Member: "bob"}, "smp_x")
	var denied *errs.AccessDenied
	if !errors.As(err, &denied) {
		t.Fatalf("expected access denied, got %v", err)
	}
}

func TestUpsertSamplesRequiresContributor(t *testing.T) {
	fs := newFakeAppStore()
	svc := newTestService(fs)

	_, err := svc.UpsertSamples(context.Background(), Session{Member: "bob"}, "p1", []*SampleNodeInput{
		{ExternalID: "EXT-1", Type: "blood"},
	})
	var denied *errs.AccessDenied
	if !errors.As(err, &denied) {
		t.Fatalf("expected access denied for reader, got %v", err)
	}
	if fs.upsertCalls != 0 {
		t.Fatalf("store written despite denial: %d calls", fs.upsertCalls)
	}
}

func TestSetProjectMemberRejectsUnknownRole(t *testing.T) {
	fs := newFakeAppStore()
	svc := newTestService(fs)

	err := svc.SetProjectMember(context.Background(), Session{Member: "alice"}, "p1", "carol", access.Role("owner"))
	var validation *errs.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fs.memberSets != 0 {
		t.Fatal("membership written despite invalid role")
	}
}

func TestSetProjectMemberRequiresAdmin(t *testing.T) {
	fs := newFakeAppStore()
	svc := newTestService(fs)

	err := svc.SetProjectMember(context.Background(), Session{Member: "bob"}, "p1", "carol", access.RoleReader)
	var denied *errs.AccessDenied
	if !errors.As(err, &denied) {
		t.Fatalf("expected access denied, got %v", err)
	}
}

func TestSearchEntitiesWithoutBackendReturnsEmpty(t *testing.T) {
	svc := newTestService(newFakeAppStore())

	response, err := svc.SearchEntities(context.Background(), Session{Member: "bob"}, "EXT", "", 10, 0)
	if err != nil {
		t.Fatalf("SearchEntities: %v", err)
	}
	if len(response.Results) != 0 {
		t.Fatalf("expected no results, got %d", len(response.Results))
	}
}

type fakeKeyStore struct {
	keys map[string]store.APIKey
}

func (f *fakeKeyStore) CreateAPIKey(_ context.Context, key store.APIKey) error {
	f.keys[key.ID] = key
	return nil
}

func (f *fakeKeyStore) GetAPIKey(_ context.Context, id string) (store.APIKey, error) {
	key, ok := f.keys[id]
	if !ok {
		return store.APIKey{}, &errs.NotFound{Kind: "api key", ID: id}
	}
	return key, nil
}

func (f *fakeKeyStore) TouchAPIKey(_ context.Context, id string, usedAt time.Time) error {
	return nil
}

func (f *fakeKeyStore) RevokeAPIKey(_ context.Context, actor, id string) error {
	key, ok := f.keys[id]
	if !ok {
		return &errs.NotFound{Kind: "api key", ID: id}
	}
	now := time.Now()
	key.RevokedAt = &now
	f.keys[id] = key
	return nil
}

func (f *fakeKeyStore) ListAPIKeys(_ context.Context, member string) ([]store.APIKey, error) {
	var out []store.APIKey
	for _, key := range f.keys {
		if key.Member == member && key.RevokedAt == nil {
			out = append(out, key)
		}
	}
	return out, nil
}

func TestRevokeAPIKeyChecksOwnership(t *testing.T) {
	fs := newFakeAppStore()
	svc := newTestService(fs)
	ks := &fakeKeyStore{keys: map[string]store.APIKey{}}
	svc.Keys = apikey.NewService(ks)

	_, aliceKey, err := svc.IssueAPIKey(context.Background(), Session{Member: "alice"}, "loader")
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}

	// bob cannot revoke alice's key; the failure reads like the key not existing.
	err = svc.RevokeAPIKey(context.Background(), Session{Member: "bob"}, aliceKey.ID)
	var notFound *errs.NotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected not found for foreign key, got %v", err)
	}
	if ks.keys[aliceKey.ID].RevokedAt != nil {
		t.Fatal("key revoked by non-owner")
	}

	if err := svc.RevokeAPIKey(context.Background(), Session{Member: "alice"}, aliceKey.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	if ks.keys[aliceKey.ID].RevokedAt == nil {
		t.Fatal("key not revoked by owner")
	}
}

func TestSessionFromAPIKey(t *testing.T) {
	svc := newTestService(newFakeAppStore())
	svc.Keys = apikey.NewService(&fakeKeyStore{keys: map[string]store.APIKey{}})

	plaintext, _, err := svc.IssueAPIKey(context.Background(), Session{Member: "pipeline-loader"}, "batch")
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}

	session, err := svc.SessionFromToken(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	if session.Member != "pipeline-loader" || !session.Service {
		t.Fatalf("unexpected session %+v", session)
	}
}
