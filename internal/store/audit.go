package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// appendAudit records one mutating operation. Called inside the mutation's
// transaction so the audit trail never references uncommitted work.
func (s *PostgresStore) appendAudit(ctx context.Context, actor, action, subjectKind, subjectID string, details map[string]any) error {
	detailsJSON, err := marshalMeta(details)
	if err != nil {
		return err
	}
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor, action, subject_kind, subject_id, details)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), actor, action, subjectKind, subjectID, detailsJSON); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAudit(ctx context.Context, subjectKind, subjectID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, actor, action, subject_kind, subject_id, details, created_at
		FROM audit_log
		WHERE subject_kind = $1 AND subject_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, subjectKind, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			e          AuditEntry
			detailsRaw []byte
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.SubjectKind, &e.SubjectID, &detailsRaw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if e.Details, err = unmarshalMeta(detailsRaw); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
