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

// AnalysisCreate describes a new analysis record. Group membership is fixed at
// creation; status moves queued -> in-progress -> completed/failed.
type AnalysisCreate struct {
	Type               string
	SequencingGroupIDs []string
	Meta               map[string]any
}

var analysisStatuses = map[string]bool{
	"queued":      true,
	"in-progress": true,
	"completed":   true,
	"failed":      true,
}

func (s *PostgresStore) CreateAnalysis(ctx context.Context, actor, projectID string, in AnalysisCreate) (Analysis, error) {
	if strings.TrimSpace(in.Type) == "" {
		return Analysis{}, errs.Validationf("analysis type is required")
	}
	if len(in.SequencingGroupIDs) == 0 {
		return Analysis{}, errs.Validationf("analysis requires at least one sequencing group")
	}
	metaJSON, err := marshalMeta(in.Meta)
	if err != nil {
		return Analysis{}, err
	}

	groupIDs := dedupe(in.SequencingGroupIDs)
	analysis := Analysis{
		ID:                 util.NewID("an"),
		ProjectID:          projectID,
		Type:               in.Type,
		Status:             "queued",
		SequencingGroupIDs: groupIDs,
		Meta:               in.Meta,
	}
	err = s.transact(ctx, func(tx *PostgresStore) error {
		missing, err := tx.missingActiveGroups(ctx, projectID, groupIDs)
		if err != nil {
			return err
		}
		if missing != "" {
			return &errs.NotFound{Kind: "sequencing group", ID: missing}
		}
		err = tx.q.QueryRowContext(ctx, `
			INSERT INTO analysis (id, project_id, type, status, meta)
			VALUES ($1, $2, $3, 'queued', $4)
			RETURNING created_at
		`, analysis.ID, projectID, in.Type, metaJSON).Scan(&analysis.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert analysis: %w", err)
		}
		for _, gid := range groupIDs {
			if _, err := tx.q.ExecContext(ctx, `
				INSERT INTO analysis_sequencing_group (analysis_id, sequencing_group_id)
				VALUES ($1, $2)
			`, analysis.ID, gid); err != nil {
				return fmt.Errorf("insert analysis group link: %w", err)
			}
		}
		return tx.appendAudit(ctx, actor, "analysis.create", "analysis", analysis.ID, map[string]any{
			"type":   in.Type,
			"groups": len(groupIDs),
		})
	})
	if err != nil {
		return Analysis{}, err
	}
	return analysis, nil
}

// missingActiveGroups returns the first requested group id that does not exist
// as a non-archived group under the project, or "" when all resolve.
func (s *PostgresStore) missingActiveGroups(ctx context.Context, projectID string, groupIDs []string) (string, error) {
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
		WHERE sm.project_id = $1 AND NOT g.archived AND g.id IN (%s)
	`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return "", fmt.Errorf("check analysis groups: %w", err)
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

// UpdateAnalysisStatus moves an analysis through its lifecycle. A completed
// analysis records its output object key; completed_at is set exactly once.
func (s *PostgresStore) UpdateAnalysisStatus(ctx context.Context, actor, projectID, analysisID, status, outputObject string) error {
	if !analysisStatuses[status] {
		return errs.Validationf("unknown analysis status %q", status)
	}
	if status == "completed" && strings.TrimSpace(outputObject) == "" {
		return errs.Validationf("completed analysis requires an output object")
	}
	return s.transact(ctx, func(tx *PostgresStore) error {
		res, err := tx.q.ExecContext(ctx, `
			UPDATE analysis
			SET status = $3,
			    output_object = CASE WHEN $4 = '' THEN output_object ELSE $4 END,
			    completed_at = CASE WHEN $3 IN ('completed', 'failed') THEN COALESCE(completed_at, now()) ELSE completed_at END
			WHERE id = $1 AND project_id = $2
		`, analysisID, projectID, status, outputObject)
		if err != nil {
			return fmt.Errorf("update analysis: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update analysis rows: %w", err)
		}
		if n == 0 {
			return &errs.NotFound{Kind: "analysis", ID: analysisID}
		}
		return tx.appendAudit(ctx, actor, "analysis.status", "analysis", analysisID, map[string]any{
			"status": status,
		})
	})
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, projectID, analysisID string) (Analysis, error) {
	var (
		a       Analysis
		metaRaw []byte
		output  sql.NullString
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, project_id, type, status, COALESCE(output_object, ''), meta, created_at, completed_at
		FROM analysis WHERE id = $1 AND project_id = $2
	`, analysisID, projectID).Scan(&a.ID, &a.ProjectID, &a.Type, &a.Status, &output, &metaRaw, &a.CreatedAt, &a.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, &errs.NotFound{Kind: "analysis", ID: analysisID}
	}
	if err != nil {
		return Analysis{}, fmt.Errorf("get analysis: %w", err)
	}
	a.OutputObject = output.String
	if a.Meta, err = unmarshalMeta(metaRaw); err != nil {
		return Analysis{}, err
	}
	if a.SequencingGroupIDs, err = s.analysisGroups(ctx, a.ID); err != nil {
		return Analysis{}, err
	}
	return a, nil
}

func (s *PostgresStore) analysisGroups(ctx context.Context, analysisID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT sequencing_group_id FROM analysis_sequencing_group
		WHERE analysis_id = $1 ORDER BY sequencing_group_id
	`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("query analysis groups: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan analysis group: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, projectID string) ([]Analysis, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, project_id, type, status, COALESCE(output_object, ''), meta, created_at, completed_at
		FROM analysis WHERE project_id = $1 ORDER BY created_at, id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var analyses []Analysis
	for rows.Next() {
		var (
			a       Analysis
			metaRaw []byte
		)
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Type, &a.Status, &a.OutputObject, &metaRaw, &a.CreatedAt, &a.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		if a.Meta, err = unmarshalMeta(metaRaw); err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range analyses {
		if analyses[i].SequencingGroupIDs, err = s.analysisGroups(ctx, analyses[i].ID); err != nil {
			return nil, err
		}
	}
	return analyses, nil
}
