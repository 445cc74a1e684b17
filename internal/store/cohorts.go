package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sampletrack/internal/errs"
	"sampletrack/internal/util"
)

// CreateCohort snapshots a named set of sequencing groups. Cohort membership
// is fixed at creation: archiving a member later does not alter the cohort,
// which is the point of keeping archived rows around.
func (s *PostgresStore) CreateCohort(ctx context.Context, actor, projectID, name, description string, groupIDs []string) (Cohort, error) {
	if strings.TrimSpace(name) == "" {
		return Cohort{}, errs.Validationf("cohort name is required")
	}
	if len(groupIDs) == 0 {
		return Cohort{}, errs.Validationf("cohort requires at least one sequencing group")
	}

	groupIDs = dedupe(groupIDs)
	cohort := Cohort{
		ID:                 util.NewID("coh"),
		ProjectID:          projectID,
		Name:               name,
		Description:        description,
		SequencingGroupIDs: groupIDs,
	}
	err := s.transact(ctx, func(tx *PostgresStore) error {
		missing, err := tx.missingGroups(ctx, projectID, groupIDs)
		if err != nil {
			return err
		}
		if missing != "" {
			return &errs.NotFound{Kind: "sequencing group", ID: missing}
		}
		err = tx.q.QueryRowContext(ctx, `
			INSERT INTO cohort (id, project_id, name, description)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at
		`, cohort.ID, projectID, name, description).Scan(&cohort.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert cohort: %w", err)
		}
		for _, gid := range groupIDs {
			if _, err := tx.q.ExecContext(ctx, `
				INSERT INTO cohort_sequencing_group (cohort_id, sequencing_group_id)
				VALUES ($1, $2)
			`, cohort.ID, gid); err != nil {
				return fmt.Errorf("insert cohort group link: %w", err)
			}
		}
		return tx.appendAudit(ctx, actor, "cohort.create", "cohort", cohort.ID, map[string]any{
			"name":   name,
			"groups": len(groupIDs),
		})
	})
	if err != nil {
		return Cohort{}, err
	}
	return cohort, nil
}

// missingGroups is the cohort variant of the analysis check: cohorts may
// reference archived groups, so only existence under the project is required.
func (s *PostgresStore) missingGroups(ctx context.Context, projectID string, groupIDs []string) (string, error) {
	placeholders := make([]string, len(groupIDs))
	args := []any{projectID}
	for i, id := range groupIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	rows, err := s.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT g.id
		FROM sequencing_group g
		JOIN sample sm ON sm.id = g.sample_id
		WHERE sm.project_id = $1 AND g.id IN (%s)
	`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return "", fmt.Errorf("check cohort groups: %w", err)
	}
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("scan group id: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	for _, id := range groupIDs {
		if !found[id] {
			return id, nil
		}
	}
	return "", nil
}

func (s *PostgresStore) GetCohort(ctx context.Context, projectID, cohortID string) (Cohort, error) {
	var c Cohort
	err := s.q.QueryRowContext(ctx, `
		SELECT id, project_id, name, description, created_at
		FROM cohort WHERE id = $1 AND project_id = $2
	`, cohortID, projectID).Scan(&c.ID, &c.ProjectID, &c.Name, &c.Description, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Cohort{}, &errs.NotFound{Kind: "cohort", ID: cohortID}
	}
	if err != nil {
		return Cohort{}, fmt.Errorf("get cohort: %w", err)
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT sequencing_group_id FROM cohort_sequencing_group
		WHERE cohort_id = $1 ORDER BY sequencing_group_id
	`, c.ID)
	if err != nil {
		return Cohort{}, fmt.Errorf("query cohort groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return Cohort{}, fmt.Errorf("scan cohort group: %w", err)
		}
		c.SequencingGroupIDs = append(c.SequencingGroupIDs, id)
	}
	return c, rows.Err()
}

func (s *PostgresStore) ListCohorts(ctx context.Context, projectID string) ([]Cohort, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, project_id, name, description, created_at
		FROM cohort WHERE project_id = $1 ORDER BY name
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list cohorts: %w", err)
	}
	defer rows.Close()

	var cohorts []Cohort
	for rows.Next() {
		var c Cohort
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cohort: %w", err)
		}
		cohorts = append(cohorts, c)
	}
	return cohorts, rows.Err()
}
