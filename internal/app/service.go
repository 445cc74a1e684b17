package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"sampletrack/internal/access"
	"sampletrack/internal/apikey"
	"sampletrack/internal/auth"
	"sampletrack/internal/errs"
	"sampletrack/internal/export"
	"sampletrack/internal/filter"
	"sampletrack/internal/objectstore"
	"sampletrack/internal/search"
	"sampletrack/internal/store"
)

// TokenTTL bounds member session tokens. Pipelines use api keys instead.
const TokenTTL = 12 * time.Hour

// Session identifies an authenticated caller for the duration of a request.
type Session struct {
	Member  string
	Name    string
	Service bool
	Token   string
}

type dataStore interface {
	Ping(context.Context) error

	CreateProject(ctx context.Context, name, creator string, meta map[string]any) (store.Project, error)
	GetProject(ctx context.Context, id string) (store.Project, error)
	ListProjects(ctx context.Context) ([]store.Project, error)
	SetProjectMember(ctx context.Context, actor, projectID, member string, role access.Role) error
	GetProjectSummary(ctx context.Context, projectID string) (store.ProjectSummary, error)
	ReadableProjects(ctx context.Context, member string) ([]string, error)
	ListAudit(ctx context.Context, subjectKind, subjectID string, limit int) ([]store.AuditEntry, error)

	UpsertParticipant(ctx context.Context, actor string, p store.Participant) (store.Participant, error)
	UpsertSampleTree(ctx context.Context, actor, projectID string, roots []*store.SampleUpsert) ([]string, error)
	QuerySamples(ctx context.Context, f store.SampleFilter) ([]store.Sample, error)
	GetSample(ctx context.Context, id string) (store.Sample, error)
	ListAssays(ctx context.Context, sampleID string) ([]store.Assay, error)
	QuerySequencingGroups(ctx context.Context, f store.SequencingGroupFilter) ([]store.SequencingGroup, error)

	CreateAnalysis(ctx context.Context, actor, projectID string, in store.AnalysisCreate) (store.Analysis, error)
	UpdateAnalysisStatus(ctx context.Context, actor, projectID, analysisID, status, outputObject string) error
	GetAnalysis(ctx context.Context, projectID, analysisID string) (store.Analysis, error)
	ListAnalyses(ctx context.Context, projectID string) ([]store.Analysis, error)

	CreateCohort(ctx context.Context, actor, projectID, name, description string, groupIDs []string) (store.Cohort, error)
	GetCohort(ctx context.Context, projectID, cohortID string) (store.Cohort, error)
	ListCohorts(ctx context.Context, projectID string) ([]store.Cohort, error)
}

type groupUpserter interface {
	Upsert(ctx context.Context, actor string, projectIDs []string, batch []store.SequencingGroupUpsert) ([]string, error)
}

type objectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Stat(ctx context.Context, key string) (objectstore.ObjectInfo, error)
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Service owns all request-level orchestration: access checks first, then
// storage, then best-effort side effects like search indexing.
type Service struct {
	store       dataStore
	guard       *access.Guard
	groups      groupUpserter
	tokenSecret []byte

	// Optional collaborators, nil when not configured.
	Search  *search.Service
	Export  *export.Service
	Objects objectStore
	Keys    *apikey.Service
}

func NewService(store dataStore, guard *access.Guard, groups groupUpserter, tokenSecret []byte) *Service {
	return &Service{
		store:       store,
		guard:       guard,
		groups:      groups,
		tokenSecret: tokenSecret,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Login issues a session token for a member. There is no password step here:
// identity arrives from the deployment's SSO proxy and this endpoint only
// mints the short-lived API credential.
func (s *Service) Login(ctx context.Context, member, name string) (Session, error) {
	member = strings.TrimSpace(member)
	if member == "" {
		return Session{}, errs.Validationf("member is required")
	}
	token, err := auth.IssueToken(s.tokenSecret, auth.Claims{
		Sub:  member,
		Name: name,
		JTI:  uuid.NewString(),
		Exp:  time.Now().Add(TokenTTL).Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{Member: member, Name: name, Token: token}, nil
}

// SessionFromToken resolves a bearer credential to a session. API keys are
// recognized by their prefix and verified against their stored hash.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	if strings.HasPrefix(token, "stk_") {
		if s.Keys == nil {
			return Session{}, auth.ErrInvalidToken
		}
		member, err := s.Keys.Verify(ctx, token)
		if err != nil {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{Member: member, Service: true}, nil
	}

	claims, err := auth.ParseToken(s.tokenSecret, token)
	if err != nil {
		return Session{}, err
	}
	return Session{Member: claims.Sub, Name: claims.Name, Service: claims.Service}, nil
}

// Projects

func (s *Service) CreateProject(ctx context.Context, session Session, name string, meta map[string]any) (store.Project, error) {
	return s.store.CreateProject(ctx, name, session.Member, meta)
}

func (s *Service) GetProject(ctx context.Context, session Session, id string) (store.Project, error) {
	if err := s.guard.Check(ctx, session.Member, []string{id}, access.RoleReader); err != nil {
		return store.Project{}, err
	}
	return s.store.GetProject(ctx, id)
}

// ListProjects returns the projects the caller can read.
func (s *Service) ListProjects(ctx context.Context, session Session) ([]store.Project, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	if s.guard.FullAccess() {
		return projects, nil
	}

	readable, err := s.store.ReadableProjects(ctx, session.Member)
	if err != nil {
		return nil, err
	}
	allowed := map[string]bool{}
	for _, id := range readable {
		allowed[id] = true
	}
	visible := make([]store.Project, 0, len(projects))
	for _, p := range projects {
		if allowed[p.ID] {
			visible = append(visible, p)
		}
	}
	return visible, nil
}

func (s *Service) SetProjectMember(ctx context.Context, session Session, projectID, member string, role access.Role) error {
	if err := s.guard.Check(ctx, session.Member, []string{projectID}, access.RoleAdmin); err != nil {
		return err
	}
	if access.Normalize(string(role)) != role {
		return errs.Validationf("unknown role %q", role)
	}
	return s.store.SetProjectMember(ctx, session.Member, projectID, member, role)
}

// ResolveProjectNames maps project names to ids for callers that hold names
// from pipeline configs.
func (s *Service) ResolveProjectNames(ctx context.Context, names []string) ([]string, error) {
	return s.guard.ResolveNames(ctx, names)
}

func (s *Service) ProjectAudit(ctx context.Context, session Session, projectID string, limit int) ([]store.AuditEntry, error) {
	if err := s.guard.Check(ctx, session.Member, []string{projectID}, access.RoleAdmin); err != nil {
		return nil, err
	}
	return s.store.ListAudit(ctx, "project", projectID, limit)
}

// Participants and samples

type ParticipantInput struct {
	ID          string         `json:"id,omitempty"`
	ExternalID  string         `json:"externalId"`
	ReportedSex string         `json:"reportedSex,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

func (s *Service) UpsertParticipant(ctx context.Context, session Session, projectID string, in ParticipantInput) (store.Participant, error) {
	if err := s.guard.Check(ctx, session.Member, []string{projectID}, access.RoleContributor); err != nil {
		return store.Participant{}, err
	}
	participant, err := s.store.UpsertParticipant(ctx, session.Member, store.Participant{
		ID:          in.ID,
		ProjectID:   projectID,
		ExternalID:  in.ExternalID,
		ReportedSex: in.ReportedSex,
		Meta:        in.Meta,
	})
	if err != nil {
		return store.Participant{}, err
	}
	if s.Search != nil {
		s.Search.IndexParticipant(search.ParticipantRecord{
			ID:         participant.ID,
			ExternalID: participant.ExternalID,
			ProjectID:  projectID,
		})
	}
	return participant, nil
}

type AssayInput struct {
	ID   string         `json:"id,omitempty"`
	Type string         `json:"type,omitempty"`
	Meta map[string]any `json:"meta,omitempty"`
}

type SampleNodeInput struct {
	ID            string             `json:"id,omitempty"`
	ExternalID    string             `json:"externalId,omitempty"`
	ParticipantID string             `json:"participantId,omitempty"`
	Type          string             `json:"type,omitempty"`
	Active        *bool              `json:"active,omitempty"`
	Meta          map[string]any     `json:"meta,omitempty"`
	Assays        []AssayInput       `json:"assays,omitempty"`
	Children      []*SampleNodeInput `json:"children,omitempty"`
}

func (in *SampleNodeInput) toUpsert() *store.SampleUpsert {
	if in == nil {
		return nil
	}
	u := &store.SampleUpsert{
		ID:         in.ID,
		ExternalID: in.ExternalID,
		Type:       in.Type,
		Active:     in.Active,
		Meta:       in.Meta,
	}
	if in.ParticipantID != "" {
		pid := in.ParticipantID
		u.ParticipantID = &pid
	}
	for _, a := range in.Assays {
		u.Assays = append(u.Assays, store.AssayUpsert{ID: a.ID, Type: a.Type, Meta: a.Meta})
	}
	for _, c := range in.Children {
		u.Children = append(u.Children, c.toUpsert())
	}
	return u
}

// UpsertSamples applies a batch of sample trees and returns the affected
// sample ids, parents before children.
func (s *Service) UpsertSamples(ctx context.Context, session Session, projectID string, roots []*SampleNodeInput) ([]string, error) {
	if err := s.guard.Check(ctx, session.Member, []string{projectID}, access.RoleContributor); err != nil {
		return nil, err
	}

	upserts := make([]*store.SampleUpsert, 0, len(roots))
	for _, r := range roots {
		upserts = append(upserts, r.toUpsert())
	}
	ids, err := s.store.UpsertSampleTree(ctx, session.Member, projectID, upserts)
	if err != nil {
		return nil, err
	}

	if s.Search != nil {
		for _, id := range ids {
			sample, err := s.store.GetSample(ctx, id)
			if err != nil {
				continue
			}
			s.Search.IndexSample(search.SampleRecord{
				ID:         sample.ID,
				ExternalID: sample.ExternalID,
				Type:       sample.Type,
				ProjectID:  sample.ProjectID,
				Active:     sample.Active,
			})
		}
	}
	return ids, nil
}

// Filter inputs. Pointer-to-slice distinguishes an absent in/nin list from an
// explicitly empty one, which matches nothing / everything respectively.

type StringExprInput struct {
	Eq         *string   `json:"eq,omitempty"`
	Neq        *string   `json:"neq,omitempty"`
	Gt         *string   `json:"gt,omitempty"`
	Gte        *string   `json:"gte,omitempty"`
	Lt         *string   `json:"lt,omitempty"`
	Lte        *string   `json:"lte,omitempty"`
	Contains   *string   `json:"contains,omitempty"`
	StartsWith *string   `json:"startsWith,omitempty"`
	In         *[]string `json:"in,omitempty"`
	Nin        *[]string `json:"nin,omitempty"`
	IsNull     *bool     `json:"isNull,omitempty"`
}

func (in *StringExprInput) expr() *filter.Expression[string] {
	if in == nil {
		return nil
	}
	e := filter.New[string]()
	if in.Eq != nil {
		e.Eq(*in.Eq)
	}
	if in.Neq != nil {
		e.Neq(*in.Neq)
	}
	if in.Gt != nil {
		e.Gt(*in.Gt)
	}
	if in.Gte != nil {
		e.Gte(*in.Gte)
	}
	if in.Lt != nil {
		e.Lt(*in.Lt)
	}
	if in.Lte != nil {
		e.Lte(*in.Lte)
	}
	if in.Contains != nil {
		e.Contains(*in.Contains)
	}
	if in.StartsWith != nil {
		e.StartsWith(*in.StartsWith)
	}
	if in.In != nil {
		e.In(*in.In...)
	}
	if in.Nin != nil {
		e.Nin(*in.Nin...)
	}
	if in.IsNull != nil {
		e.IsNull(*in.IsNull)
	}
	return e
}

type BoolExprInput struct {
	Eq     *bool `json:"eq,omitempty"`
	IsNull *bool `json:"isNull,omitempty"`
}

func (in *BoolExprInput) expr() *filter.Expression[bool] {
	if in == nil {
		return nil
	}
	e := filter.New[bool]()
	if in.Eq != nil {
		e.Eq(*in.Eq)
	}
	if in.IsNull != nil {
		e.IsNull(*in.IsNull)
	}
	return e
}

func metaExprs(in map[string]*StringExprInput) map[string]*filter.Expression[string] {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]*filter.Expression[string], len(in))
	for k, v := range in {
		out[k] = v.expr()
	}
	return out
}

type SampleQueryInput struct {
	ID            *StringExprInput            `json:"id,omitempty"`
	ExternalID    *StringExprInput            `json:"externalId,omitempty"`
	ParticipantID *StringExprInput            `json:"participantId,omitempty"`
	Type          *StringExprInput            `json:"type,omitempty"`
	Active        *BoolExprInput              `json:"active,omitempty"`
	Meta          map[string]*StringExprInput `json:"meta,omitempty"`
}

func (s *Service) QuerySamples(ctx context.Context, session Session, projectID string, in SampleQueryInput) ([]store.Sample, error) {
	if err := s.guard.Check(ctx, session.Member, []string{projectID}, access.RoleReader); err != nil {
		return nil, err
	}
	return s.store.QuerySamples(ctx, store.SampleFilter{
		ID:            in.ID.expr(),
		ExternalID:    in.ExternalID.expr(),
		ProjectID:     filter.New[string]().Eq(projectID),
		ParticipantID: in.ParticipantID.expr(),
		Type:          in.Type.expr(),
		Active:        in.Active.expr(),
		Meta:          metaExprs(in.Meta),
	})
}

// SampleDetail is a sample with its assays attached.
type SampleDetail struct {
	Sample store.Sample
	Assays []store.Assay
}

func (s *Service) GetSample(ctx context.Context, session Session, id string) (SampleDetail, error) {
	sample, err := s.store.GetSample(ctx, id)
	if err != nil {
		return SampleDetail{}, err
	}
	if err := s.guard.Check(ctx, session.Member, []string{sample.ProjectID}, access.RoleReader); err != nil {
		return SampleDetail{}, err
	}
	assays, err := s.store.ListAssays(ctx, id)
	if err != nil {
		return SampleDetail{}, err
	}
	return SampleDetail{Sample: sample, Assays: assays}, nil
}

// Sequencing groups

type SequencingGroupInput struct {
	ID           string         `json:"id,omitempty"`
	SampleID     string         `json:"sampleId,omitempty"`
	Type         string         `json:"type,omitempty"`
	Technology   string         `json:"technology,omitempty"`
	Platform     string         `json:"platform,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	AssayIDs     []string       `json:"assayIds"`
	HasNewAssays bool           `json:"hasNewAssays,omitempty"`
}

// UpsertSequencingGroups applies a batch of group upserts. The access check
// and membership-change sequencing live in the group manager.
func (s *Service) UpsertSequencingGroups(ctx context.Context, session Session, projectID string, in []SequencingGroupInput) ([]string, error) {
	batch := make([]store.SequencingGroupUpsert, 0, len(in))
	for _, g := range in {
		batch = append(batch, store.SequencingGroupUpsert{
			ID:           g.ID,
			SampleID:     g.SampleID,
			Type:         g.Type,
			Technology:   g.Technology,
			Platform:     g.Platform,
			Meta:         g.Meta,
			AssayIDs:     g.AssayIDs,
			HasNewAssays: g.HasNewAssays,
		})
	}
	ids, err := s.groups.Upsert(ctx, session.Member, []string{projectID}, batch)
	if err != nil {
		return nil, err
	}

	if s.Search != nil {
		groups, err := s.store.QuerySequencingGroups(ctx, store.SequencingGroupFilter{
			ID: filter.New[string]().In(ids...),
		})
		if err == nil {
			for _, g := range groups {
				s.indexGroup(ctx, projectID, g)
			}
		}
	}
	return ids, nil
}

func (s *Service) indexGroup(ctx context.Context, projectID string, g store.SequencingGroup) {
	sampleExternal := ""
	if sample, err := s.store.GetSample(ctx, g.SampleID); err == nil {
		sampleExternal = sample.ExternalID
	}
	s.Search.IndexGroup(search.GroupRecord{
		ID:               g.ID,
		SampleExternalID: sampleExternal,
		Type:             g.Type,
		Technology:       g.Technology,
		Platform:         g.Platform,
		ProjectID:        projectID,
		Archived:         g.Archived,
	})
}

type SequencingGroupQueryInput struct {
	ID         *StringExprInput            `json:"id,omitempty"`
	SampleID   *StringExprInput            `json:"sampleId,omitempty"`
	Type       *StringExprInput            `json:"type,omitempty"`
	Technology *StringExprInput            `json:"technology,omitempty"`
	Platform   *StringExprInput            `json:"platform,omitempty"`
	Archived   *BoolExprInput              `json:"archived,omitempty"`
	Meta       map[string]*StringExprInput `json:"meta,omitempty"`
}

func (s *Service) QuerySequencingGroups(ctx context.Context, session Session, projectID string, in SequencingGroupQueryInput) ([]store.SequencingGroup, error) {
	if err := s.guard.Check(ctx, session.Member, []string{projectID}, access.RoleReader); err != nil {
		return nil, err
	}
	return s.store.QuerySequencingGroups(ctx, store.SequencingGroupFilter{
		ID:         in.ID.expr(),
		SampleID:   in.SampleID.expr(),
		ProjectID:  filter.New[string]().Eq(projectID),
		Type:       in.Type.expr(),
		Technology: in.Technology.expr(),
		Platform:   in.Platform.expr(),
		Archived:   in.Archived.expr(),
		Meta:       metaExprs(in.Meta),
	})
}

// Analyses

type AnalysisInput struct {
	Type               string         `json:"type"`
	SequencingGroupIDs []string       `json:"sequencingGroupIds"`
	Meta               map[string]any `json:"meta,omitempty"`
}

func (s *Service) CreateAnalysis(ctx context.Context, session Session, projectID string, in AnalysisInput) (store.Analysis, error) {
	if err := s.guard.Check(ctx, session.Member, []string{projectID}, access.RoleContributor); err != nil {
		return store.Analysis{}, err
	}
	return s.store.CreateAnalysis(ctx, session.Member, projectID, store.AnalysisCreate{
		Type:               in.Type,
		SequencingGroupIDs: in.SequencingGroupIDs,
		Meta:               in.Meta,
	})
}

func (s *Service) UpdateAnalysisStatus(ctx context.Context, session Session, projectID, analysisID, status, outputObject string) error {
	if err := s.guard.Check(ctx, session.Member, []string{projectID}, access.RoleContributor); err != nil {
		return err
	}
	return s.store.UpdateAnalysisStatus(ctx, session.Member, projectID, analysisID, status, outputObject)
}

func (s *Service) ListAnalyses(ctx context.Context, session Session, projectID string) ([]store.Analysis, error) {
	if err := s.guard.Check(ctx, session.Member, []string{projectID}, access.RoleReader); err != nil {
		return nil, err
	}
	return s.store.ListAnalyses(ctx, projectID)
}

// UploadAnalysisOutput streams an artifact into the object store and marks
// the analysis completed with the stored key.
func (s *Service) UploadAnalysisOutput(ctx context.Context, session Session, projectID, analysisID string, r io.Reader, size int64, contentType string) (string, error) {
	if err := s.guard.Check(ctx, session.Member, []string{projectID}, access.RoleContributor); err != nil {
		return "", err
	}
	if s.Objects == nil {
		return "", domainError(503, "STORAGE_UNAVAILABLE", "Object storage not configured", nil)
	}
	analysis, err := s.store.GetAnalysis(ctx, projectID, analysisID)
	if err != nil {
		return "", err
	}

	key := "analyses/" + analysis.ID + "/output"
	if err := s.Objects.Put(ctx, key, r, size, contentType); err != nil {
		return "", err
	}
	if err := s.store.UpdateAnalysisStatus(ctx, session.Member, projectID, analysisID, "completed", key); err != nil {
		return "", err
	}
	return key, nil
}

// AnalysisOutputURL returns a presigned download URL for a completed
// analysis artifact.
func (s *Service) AnalysisOutputURL(ctx context.Context, session Session, projectID, analysisID string) (string, error) {
	if err := s.guard.Check(ctx, session.Member, []string{projectID}, access.RoleReader); err != nil {
		return "", err
	}
	if s.Objects == nil {
		return "", domainError(503, "STORAGE_UNAVAILABLE", "Object storage not configured", nil)
	}
	analysis, err := s.store.GetAnalysis(ctx, projectID, analysisID)
	if err != nil {
		return "", err
	}
	if analysis.OutputObject == "" {
		return "", errs.Validationf("analysis %s has no output", analysisID)
	}
	if _, err := s.Objects.Stat(ctx, analysis.OutputObject); err != nil {
		return "", &errs.NotFound{Kind: "analysis output", ID: analysis.OutputObject}
	}
	return s.Objects.PresignGet(ctx, analysis.OutputObject, 15*time.Minute)
}

// Cohorts

type CohortInput struct {
	Name               string   `json:"name"`
	Description        string   `json:"description,omitempty"`
	SequencingGroupIDs []string `json:"sequencingGroupIds"`
}

func (s *Service) CreateCohort(ctx context.Context, session Session, projectID string, in CohortInput) (store.Cohort, error) {
	if err := s.guard.Check(ctx, session.Member, []string{projectID}, access.RoleContributor); err != nil {
		return store.Cohort{}, err
	}
	return s.store.CreateCohort(ctx, session.Member, projectID, in.Name, in.Description, in.SequencingGroupIDs)
}

func (s *Service) GetCohort(ctx context.Context, session Session, projectID, cohortID string) (store.Cohort, error) {
	if err := s.guard.Check(ctx, session.Member, []string{projectID}, access.RoleReader); err != nil {
		return store.Cohort{}, err
	}
	return s.store.GetCohort(ctx, projectID, cohortID)
}

func (s *Service) ListCohorts(ctx context.Context, session Session, projectID string) ([]store.Cohort, error) {
	if err := s.guard.Check(ctx, session.Member, []string{projectID}, access.RoleReader); err != nil {
		return nil, err
	}
	return s.store.ListCohorts(ctx, projectID)
}

// Search

func (s *Service) SearchEntities(ctx context.Context, session Session, text string, filterType search.ResultType, limit, offset int) (search.Response, error) {
	if s.Search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}

	var scope []string
	var err error
	if s.guard.FullAccess() {
		projects, perr := s.store.ListProjects(ctx)
		if perr != nil {
			return search.Response{}, perr
		}
		for _, p := range projects {
			scope = append(scope, p.ID)
		}
	} else if scope, err = s.store.ReadableProjects(ctx, session.Member); err != nil {
		return search.Response{}, err
	}

	return s.Search.Search(search.Query{
		Text:       text,
		FilterType: filterType,
		ProjectIDs: scope,
		Limit:      limit,
		Offset:     offset,
	}), nil
}

// Export

func (s *Service) ExportSummary(ctx context.Context, session Session, projectID string, format export.Format) (*export.Result, error) {
	if err := s.guard.Check(ctx, session.Member, []string{projectID}, access.RoleReader); err != nil {
		return nil, err
	}
	if s.Export == nil {
		return nil, domainError(503, "EXPORT_UNAVAILABLE", "Export service not configured", nil)
	}
	return s.Export.Export(ctx, export.Request{ProjectID: projectID, Format: format})
}

// API keys

func (s *Service) IssueAPIKey(ctx context.Context, session Session, name string) (string, store.APIKey, error) {
	if s.Keys == nil {
		return "", store.APIKey{}, domainError(503, "KEYS_UNAVAILABLE", "API key service not configured", nil)
	}
	return s.Keys.Issue(ctx, session.Member, name)
}

func (s *Service) ListAPIKeys(ctx context.Context, session Session) ([]store.APIKey, error) {
	if s.Keys == nil {
		return nil, domainError(503, "KEYS_UNAVAILABLE", "API key service not configured", nil)
	}
	return s.Keys.List(ctx, session.Member)
}

// RevokeAPIKey revokes one of the caller's own keys.
func (s *Service) RevokeAPIKey(ctx context.Context, session Session, id string) error {
	if s.Keys == nil {
		return domainError(503, "KEYS_UNAVAILABLE", "API key service not configured", nil)
	}
	keys, err := s.Keys.List(ctx, session.Member)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if key.ID == id {
			return s.Keys.Revoke(ctx, session.Member, id)
		}
	}
	return &errs.NotFound{Kind: "api key", ID: id}
}
