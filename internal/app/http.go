package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sampletrack/internal/access"
	"sampletrack/internal/auth"
	"sampletrack/internal/errs"
	"sampletrack/internal/export"
	"sampletrack/internal/search"
	"sampletrack/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		promhttp.Handler().ServeHTTP(w, r)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/login" {
		var body struct {
			Member string `json:"member"`
			Name   string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Login(r.Context(), body.Member, body.Name)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":  session.Token,
			"member": session.Member,
			"name":   session.Name,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"member":        session.Member,
			"name":          session.Name,
			"service":       session.Service,
		})
		return
	}

	// Everything below requires a session.
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "keys":
		s.handleKeys(w, r, session, parts[2:])
	case "search":
		s.handleSearch(w, r, session)
	case "samples":
		if r.Method == http.MethodGet && len(parts) == 3 {
			detail, err := s.service.GetSample(r.Context(), session, parts[2])
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"sample": sampleView(detail.Sample), "assays": assayViews(detail.Assays)})
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	case "projects":
		s.handleProjects(w, r, session, parts[2:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleKeys(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case r.Method == http.MethodPost && len(parts) == 0:
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		plaintext, key, err := s.service.IssueAPIKey(r.Context(), session, body.Name)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"key":  plaintext,
			"id":   key.ID,
			"name": key.Name,
		})
	case r.Method == http.MethodGet && len(parts) == 0:
		keys, err := s.service.ListAPIKeys(r.Context(), session)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"keys": apiKeyViews(keys)})
	case r.Method == http.MethodDelete && len(parts) == 1:
		if err := s.service.RevokeAPIKey(r.Context(), session, parts[0]); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	response, err := s.service.SearchEntities(r.Context(), session, q.Get("q"), search.ResultType(q.Get("type")), limit, offset)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleProjects(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()

	// /api/projects
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			projects, err := s.service.ListProjects(ctx, session)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"projects": projectViews(projects)})
		case http.MethodPost:
			var body struct {
				Name string         `json:"name"`
				Meta map[string]any `json:"meta"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			project, err := s.service.CreateProject(ctx, session, body.Name, body.Meta)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, projectView(project))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	// /api/projects/resolve?names=a,b
	if parts[0] == "resolve" && r.Method == http.MethodGet {
		names := strings.Split(r.URL.Query().Get("names"), ",")
		ids, err := s.service.ResolveProjectNames(ctx, names)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
		return
	}

	projectID := parts[0]
	rest := parts[1:]

	// /api/projects/{id}
	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		project, err := s.service.GetProject(ctx, session, projectID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, projectView(project))
		return
	}

	switch rest[0] {
	case "members":
		if r.Method != http.MethodPut {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		var body struct {
			Member string `json:"member"`
			Role   string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.SetProjectMember(ctx, session, projectID, body.Member, access.Role(body.Role)); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case "audit":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		entries, err := s.service.ProjectAudit(ctx, session, projectID, limit)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": auditViews(entries)})

	case "export":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		format := export.Format(r.URL.Query().Get("format"))
		if format == "" {
			format = export.FormatPDF
		}
		result, err := s.service.ExportSummary(ctx, session, projectID, format)
		if err != nil {
			s.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)

	case "participants":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		var body ParticipantInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		participant, err := s.service.UpsertParticipant(ctx, session, projectID, body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, participantView(participant))

	case "samples":
		s.handleSamples(w, r, session, projectID, rest[1:])

	case "sequencing-groups":
		s.handleSequencingGroups(w, r, session, projectID, rest[1:])

	case "analyses":
		s.handleAnalyses(w, r, session, projectID, rest[1:])

	case "cohorts":
		s.handleCohorts(w, r, session, projectID, rest[1:])

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSamples(w http.ResponseWriter, r *http.Request, session Session, projectID string, parts []string) {
	ctx := r.Context()
	switch {
	case r.Method == http.MethodPost && len(parts) == 0:
		var body struct {
			Samples []*SampleNodeInput `json:"samples"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		ids, err := s.service.UpsertSamples(ctx, session, projectID, body.Samples)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "query":
		var body SampleQueryInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		samples, err := s.service.QuerySamples(ctx, session, projectID, body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"samples": sampleViews(samples)})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSequencingGroups(w http.ResponseWriter, r *http.Request, session Session, projectID string, parts []string) {
	ctx := r.Context()
	switch {
	case r.Method == http.MethodPost && len(parts) == 0:
		var body struct {
			Groups []SequencingGroupInput `json:"groups"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		ids, err := s.service.UpsertSequencingGroups(ctx, session, projectID, body.Groups)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "query":
		var body SequencingGroupQueryInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		groups, err := s.service.QuerySequencingGroups(ctx, session, projectID, body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"groups": groupViews(groups)})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleAnalyses(w http.ResponseWriter, r *http.Request, session Session, projectID string, parts []string) {
	ctx := r.Context()
	switch {
	case r.Method == http.MethodPost && len(parts) == 0:
		var body AnalysisInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		analysis, err := s.service.CreateAnalysis(ctx, session, projectID, body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, analysisView(analysis))
	case r.Method == http.MethodGet && len(parts) == 0:
		analyses, err := s.service.ListAnalyses(ctx, session, projectID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"analyses": analysisViews(analyses)})
	case r.Method == http.MethodPut && len(parts) == 2 && parts[1] == "status":
		var body struct {
			Status       string `json:"status"`
			OutputObject string `json:"outputObject"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.UpdateAnalysisStatus(ctx, session, projectID, parts[0], body.Status, body.OutputObject); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case r.Method == http.MethodPut && len(parts) == 2 && parts[1] == "output":
		contentType := r.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		key, err := s.service.UploadAnalysisOutput(ctx, session, projectID, parts[0], r.Body, r.ContentLength, contentType)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"key": key})
	case r.Method == http.MethodGet && len(parts) == 2 && parts[1] == "output":
		url, err := s.service.AnalysisOutputURL(ctx, session, projectID, parts[0])
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"url": url})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleCohorts(w http.ResponseWriter, r *http.Request, session Session, projectID string, parts []string) {
	ctx := r.Context()
	switch {
	case r.Method == http.MethodPost && len(parts) == 0:
		var body CohortInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		cohort, err := s.service.CreateCohort(ctx, session, projectID, body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, cohortView(cohort))
	case r.Method == http.MethodGet && len(parts) == 0:
		cohorts, err := s.service.ListCohorts(ctx, session, projectID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cohorts": cohortViews(cohorts)})
	case r.Method == http.MethodGet && len(parts) == 1:
		cohort, err := s.service.GetCohort(ctx, session, projectID, parts[0])
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cohortView(cohort))
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// View mappers keep wire payloads lowerCamel regardless of model field names.

func projectView(p store.Project) map[string]any {
	return map[string]any{
		"id":        p.ID,
		"name":      p.Name,
		"meta":      p.Meta,
		"createdAt": p.CreatedAt,
		"updatedAt": p.UpdatedAt,
	}
}

func projectViews(projects []store.Project) []map[string]any {
	out := make([]map[string]any, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectView(p))
	}
	return out
}

func participantView(p store.Participant) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"projectId":   p.ProjectID,
		"externalId":  p.ExternalID,
		"reportedSex": p.ReportedSex,
		"meta":        p.Meta,
	}
}

func sampleView(smp store.Sample) map[string]any {
	return map[string]any{
		"id":            smp.ID,
		"projectId":     smp.ProjectID,
		"participantId": smp.ParticipantID,
		"externalId":    smp.ExternalID,
		"type":          smp.Type,
		"active":        smp.Active,
		"meta":          smp.Meta,
		"createdAt":     smp.CreatedAt,
	}
}

func sampleViews(samples []store.Sample) []map[string]any {
	out := make([]map[string]any, 0, len(samples))
	for _, smp := range samples {
		out = append(out, sampleView(smp))
	}
	return out
}

func assayViews(assays []store.Assay) []map[string]any {
	out := make([]map[string]any, 0, len(assays))
	for _, a := range assays {
		out = append(out, map[string]any{
			"id":       a.ID,
			"sampleId": a.SampleID,
			"type":     a.Type,
			"meta":     a.Meta,
		})
	}
	return out
}

func groupViews(groups []store.SequencingGroup) []map[string]any {
	out := make([]map[string]any, 0, len(groups))
	for _, g := range groups {
		out = append(out, map[string]any{
			"id":            g.ID,
			"sampleId":      g.SampleID,
			"type":          g.Type,
			"technology":    g.Technology,
			"platform":      g.Platform,
			"meta":          g.Meta,
			"archived":      g.Archived,
			"derivedFromId": g.DerivedFromID,
			"assayIds":      g.AssayIDs,
			"createdAt":     g.CreatedAt,
		})
	}
	return out
}

func analysisView(a store.Analysis) map[string]any {
	return map[string]any{
		"id":                 a.ID,
		"projectId":          a.ProjectID,
		"type":               a.Type,
		"status":             a.Status,
		"outputObject":       a.OutputObject,
		"sequencingGroupIds": a.SequencingGroupIDs,
		"meta":               a.Meta,
		"createdAt":          a.CreatedAt,
		"completedAt":        a.CompletedAt,
	}
}

func analysisViews(analyses []store.Analysis) []map[string]any {
	out := make([]map[string]any, 0, len(analyses))
	for _, a := range analyses {
		out = append(out, analysisView(a))
	}
	return out
}

func cohortView(c store.Cohort) map[string]any {
	return map[string]any{
		"id":                 c.ID,
		"projectId":          c.ProjectID,
		"name":               c.Name,
		"description":        c.Description,
		"sequencingGroupIds": c.SequencingGroupIDs,
		"createdAt":          c.CreatedAt,
	}
}

func cohortViews(cohorts []store.Cohort) []map[string]any {
	out := make([]map[string]any, 0, len(cohorts))
	for _, c := range cohorts {
		out = append(out, cohortView(c))
	}
	return out
}

func auditViews(entries []store.AuditEntry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id":          e.ID,
			"actor":       e.Actor,
			"action":      e.Action,
			"subjectKind": e.SubjectKind,
			"subjectId":   e.SubjectID,
			"details":     e.Details,
			"createdAt":   e.CreatedAt,
		})
	}
	return out
}

func apiKeyViews(keys []store.APIKey) []map[string]any {
	out := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, map[string]any{
			"id":         k.ID,
			"name":       k.Name,
			"createdAt":  k.CreatedAt,
			"lastUsedAt": k.LastUsedAt,
		})
	}
	return out
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var validation *errs.ValidationError
	if errors.As(err, &validation) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", validation.Message, nil
	}
	var denied *errs.AccessDenied
	if errors.As(err, &denied) {
		return http.StatusForbidden, "FORBIDDEN", "Forbidden", map[string]any{"projects": denied.Projects}
	}
	var notFound *errs.NotFound
	if errors.As(err, &notFound) {
		return http.StatusNotFound, "NOT_FOUND", notFound.Error(), nil
	}
	var structural *errs.StructuralError
	if errors.As(err, &structural) {
		return http.StatusUnprocessableEntity, "STRUCTURAL_ERROR", structural.Message, map[string]any{"nodes": structural.Nodes}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
