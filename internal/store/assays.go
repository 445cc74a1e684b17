package store

import (
	"context"
	"fmt"
	"strings"

	"sampletrack/internal/errs"
	"sampletrack/internal/util"
)

func (s *PostgresStore) upsertAssay(ctx context.Context, actor, sampleID string, a AssayUpsert) (string, error) {
	metaJSON, err := marshalMeta(a.Meta)
	if err != nil {
		return "", err
	}

	if a.ID == "" {
		if a.Type == "" {
			return "", errs.Validationf("new assay on sample %s requires a type", sampleID)
		}
		id := util.NewID("asy")
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO assay (id, sample_id, type, meta)
			VALUES ($1, $2, $3, $4)
		`, id, sampleID, a.Type, metaJSON); err != nil {
			return "", fmt.Errorf("insert assay: %w", err)
		}
		if err := s.appendAudit(ctx, actor, "assay.create", "assay", id, nil); err != nil {
			return "", err
		}
		return id, nil
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE assay SET
			meta = meta || $2,
			type = COALESCE(NULLIF($3, ''), type),
			updated_at = NOW()
		WHERE id = $1 AND sample_id = $4
	`, a.ID, metaJSON, a.Type, sampleID)
	if err != nil {
		return "", fmt.Errorf("update assay %s: %w", a.ID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return "", &errs.NotFound{Kind: "assay", ID: a.ID}
	}
	if err := s.appendAudit(ctx, actor, "assay.update", "assay", a.ID, nil); err != nil {
		return "", err
	}
	return a.ID, nil
}

func (s *PostgresStore) ListAssays(ctx context.Context, sampleID string) ([]Assay, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, sample_id, type, meta, created_at, updated_at
		FROM assay WHERE sample_id = $1
		ORDER BY created_at, id
	`, sampleID)
	if err != nil {
		return nil, fmt.Errorf("list assays: %w", err)
	}
	defer rows.Close()

	var assays []Assay
	for rows.Next() {
		var (
			a       Assay
			metaRaw []byte
		)
		if err := rows.Scan(&a.ID, &a.SampleID, &a.Type, &metaRaw, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan assay: %w", err)
		}
		if a.Meta, err = unmarshalMeta(metaRaw); err != nil {
			return nil, err
		}
		assays = append(assays, a)
	}
	return assays, rows.Err()
}

// AssaysExist reports, for each requested id, whether the assay exists. One
// batched query per call.
func (s *PostgresStore) AssaysExist(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids))
	seen := map[string]struct{}{}
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out[id] = false
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+1))
		args = append(args, id)
	}

	rows, err := s.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT id FROM assay WHERE id IN (%s)
	`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return nil, fmt.Errorf("check assays: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan assay id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}
