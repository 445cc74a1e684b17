package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sampletrack/internal/access"
	"sampletrack/internal/errs"
	"sampletrack/internal/util"
)

func (s *PostgresStore) CreateProject(ctx context.Context, name, creator string, meta map[string]any) (Project, error) {
	if strings.TrimSpace(name) == "" {
		return Project{}, errs.Validationf("project name is required")
	}
	metaJSON, err := marshalMeta(meta)
	if err != nil {
		return Project{}, err
	}

	project := Project{ID: util.NewID("prj"), Name: name, Meta: meta}
	err = s.transact(ctx, func(tx *PostgresStore) error {
		err := tx.q.QueryRowContext(ctx, `
			INSERT INTO project (id, name, meta)
			VALUES ($1, $2, $3)
			RETURNING created_at, updated_at
		`, project.ID, name, metaJSON).Scan(&project.CreatedAt, &project.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		if _, err := tx.q.ExecContext(ctx, `
			INSERT INTO project_member (project_id, member, role)
			VALUES ($1, $2, 'admin')
		`, project.ID, creator); err != nil {
			return fmt.Errorf("insert project admin: %w", err)
		}
		return tx.appendAudit(ctx, creator, "project.create", "project", project.ID, nil)
	})
	if err != nil {
		return Project{}, err
	}
	return project, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (Project, error) {
	var (
		project Project
		metaRaw []byte
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, meta, created_at, updated_at FROM project WHERE id = $1
	`, id).Scan(&project.ID, &project.Name, &metaRaw, &project.CreatedAt, &project.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, &errs.NotFound{Kind: "project", ID: id}
	}
	if err != nil {
		return Project{}, fmt.Errorf("get project: %w", err)
	}
	if project.Meta, err = unmarshalMeta(metaRaw); err != nil {
		return Project{}, err
	}
	return project, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, meta, created_at, updated_at FROM project ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var (
			p       Project
			metaRaw []byte
		)
		if err := rows.Scan(&p.ID, &p.Name, &metaRaw, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		if p.Meta, err = unmarshalMeta(metaRaw); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *PostgresStore) SetProjectMember(ctx context.Context, actor, projectID, member string, role access.Role) error {
	err := s.transact(ctx, func(tx *PostgresStore) error {
		var exists bool
		err := tx.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM project WHERE id=$1)`, projectID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check project: %w", err)
		}
		if !exists {
			return &errs.NotFound{Kind: "project", ID: projectID}
		}
		if _, err := tx.q.ExecContext(ctx, `
			INSERT INTO project_member (project_id, member, role)
			VALUES ($1, $2, $3)
			ON CONFLICT (project_id, member) DO UPDATE SET role = EXCLUDED.role
		`, projectID, member, string(role)); err != nil {
			return fmt.Errorf("set project member: %w", err)
		}
		return tx.appendAudit(ctx, actor, "project.member.set", "project", projectID, map[string]any{
			"member": member,
			"role":   string(role),
		})
	})
	return err
}

// ProjectMembers implements access.MembershipStore: one batched query for all
// requested ids. Unknown ids are absent from the result.
func (s *PostgresStore) ProjectMembers(ctx context.Context, projectIDs []string) (map[string]access.ProjectEntry, error) {
	if len(projectIDs) == 0 {
		return map[string]access.ProjectEntry{}, nil
	}

	placeholders := make([]string, len(projectIDs))
	args := make([]any, len(projectIDs))
	for i, id := range projectIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := s.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT p.id, p.name, pm.member, pm.role
		FROM project p
		LEFT JOIN project_member pm ON pm.project_id = p.id
		WHERE p.id IN (%s)
	`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return nil, fmt.Errorf("query project members: %w", err)
	}
	defer rows.Close()

	entries := map[string]access.ProjectEntry{}
	for rows.Next() {
		var (
			id, name     string
			member, role sql.NullString
		)
		if err := rows.Scan(&id, &name, &member, &role); err != nil {
			return nil, fmt.Errorf("scan project member: %w", err)
		}
		entry, ok := entries[id]
		if !ok {
			entry = access.ProjectEntry{ID: id, Name: name, Roles: access.Membership{}}
		}
		if member.Valid {
			entry.Roles[member.String] = access.Normalize(role.String)
		}
		entries[id] = entry
	}
	return entries, rows.Err()
}

// ReadableProjects returns every project id the member holds any role on.
// Used to bound search and cross-project listings to the caller's scope.
func (s *PostgresStore) ReadableProjects(ctx context.Context, member string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT project_id FROM project_member WHERE member = $1 ORDER BY project_id
	`, member)
	if err != nil {
		return nil, fmt.Errorf("query readable projects: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan readable project: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ProjectIDsByName implements the name half of access.MembershipStore.
func (s *PostgresStore) ProjectIDsByName(ctx context.Context, names []string) (map[string]string, error) {
	if len(names) == 0 {
		return map[string]string{}, nil
	}

	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = name
	}

	rows, err := s.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT name, id FROM project WHERE name IN (%s)
	`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return nil, fmt.Errorf("query project ids: %w", err)
	}
	defer rows.Close()

	ids := map[string]string{}
	for rows.Next() {
		var name, id string
		if err := rows.Scan(&name, &id); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		ids[name] = id
	}
	return ids, rows.Err()
}

// ProjectSummary aggregates per-project counts for the export report.
type ProjectSummary struct {
	Project           Project
	Participants      int
	Samples           int
	Assays            int
	ActiveGroups      int
	ArchivedGroups    int
	CompletedAnalyses int
	GeneratedAt       time.Time
}

func (s *PostgresStore) GetProjectSummary(ctx context.Context, projectID string) (ProjectSummary, error) {
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return ProjectSummary{}, err
	}

	summary := ProjectSummary{Project: project, GeneratedAt: time.Now().UTC()}
	err = s.q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM participant WHERE project_id = $1),
			(SELECT COUNT(*) FROM sample WHERE project_id = $1),
			(SELECT COUNT(*) FROM assay a JOIN sample sm ON sm.id = a.sample_id WHERE sm.project_id = $1),
			(SELECT COUNT(*) FROM sequencing_group g JOIN sample sm ON sm.id = g.sample_id WHERE sm.project_id = $1 AND NOT g.archived),
			(SELECT COUNT(*) FROM sequencing_group g JOIN sample sm ON sm.id = g.sample_id WHERE sm.project_id = $1 AND g.archived),
			(SELECT COUNT(*) FROM analysis WHERE project_id = $1 AND status = 'completed')
	`, projectID).Scan(
		&summary.Participants,
		&summary.Samples,
		&summary.Assays,
		&summary.ActiveGroups,
		&summary.ArchivedGroups,
		&summary.CompletedAnalyses,
	)
	if err != nil {
		return ProjectSummary{}, fmt.Errorf("project summary: %w", err)
	}
	return summary, nil
}
