package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sampletrack/internal/errs"
	"sampletrack/internal/filter"
)

// Transact implements SequencingGroupStore: fn runs against a tx-bound store.
func (s *PostgresStore) Transact(ctx context.Context, fn func(SequencingGroupStore) error) error {
	return s.transact(ctx, func(tx *PostgresStore) error {
		return fn(tx)
	})
}

// FetchActiveGroups loads the current active rows and member sets for the
// given ids in one compiled query.
func (s *PostgresStore) FetchActiveGroups(ctx context.Context, ids []string) (map[string]SequencingGroup, error) {
	groups, err := s.QuerySequencingGroups(ctx, SequencingGroupFilter{
		ID:       filter.New[string]().In(ids...),
		Archived: filter.New[bool]().Eq(false),
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]SequencingGroup, len(groups))
	for _, g := range groups {
		out[g.ID] = g
	}
	return out, nil
}

// LockActiveGroup re-reads one active group under FOR UPDATE. The lock holds
// for the remainder of the surrounding transaction, serializing concurrent
// archive-and-recreate attempts on the same logical key.
func (s *PostgresStore) LockActiveGroup(ctx context.Context, id string) (SequencingGroup, error) {
	var (
		g       SequencingGroup
		metaRaw []byte
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, sample_id, type, technology, platform, meta, archived, derived_from_id, created_at
		FROM sequencing_group
		WHERE id = $1 AND NOT archived
		FOR UPDATE
	`, id).Scan(&g.ID, &g.SampleID, &g.Type, &g.Technology, &g.Platform, &metaRaw, &g.Archived, &g.DerivedFromID, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SequencingGroup{}, &errs.NotFound{Kind: "sequencing group", ID: id}
	}
	if err != nil {
		return SequencingGroup{}, fmt.Errorf("lock sequencing group: %w", err)
	}
	if g.Meta, err = unmarshalMeta(metaRaw); err != nil {
		return SequencingGroup{}, err
	}
	if g.AssayIDs, err = s.groupMembers(ctx, g.ID); err != nil {
		return SequencingGroup{}, err
	}
	return g, nil
}

func (s *PostgresStore) PatchGroup(ctx context.Context, actor, id, platform string, meta map[string]any) error {
	metaJSON, err := marshalMeta(meta)
	if err != nil {
		return err
	}
	result, err := s.q.ExecContext(ctx, `
		UPDATE sequencing_group SET
			meta = meta || $2,
			platform = COALESCE(NULLIF($3, ''), platform)
		WHERE id = $1 AND NOT archived
	`, id, metaJSON, platform)
	if err != nil {
		return fmt.Errorf("patch sequencing group: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return &errs.NotFound{Kind: "sequencing group", ID: id}
	}
	return s.appendAudit(ctx, actor, "sequencing_group.patch", "sequencing_group", id, nil)
}

func (s *PostgresStore) InsertGroup(ctx context.Context, actor string, g SequencingGroup) error {
	metaJSON, err := marshalMeta(g.Meta)
	if err != nil {
		return err
	}
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO sequencing_group (id, sample_id, type, technology, platform, meta, archived, derived_from_id)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7)
	`, g.ID, g.SampleID, g.Type, g.Technology, g.Platform, metaJSON, g.DerivedFromID); err != nil {
		return fmt.Errorf("insert sequencing group: %w", err)
	}
	for _, assayID := range g.AssayIDs {
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO sequencing_group_assay (sequencing_group_id, assay_id)
			VALUES ($1, $2)
		`, g.ID, assayID); err != nil {
			return fmt.Errorf("link assay %s: %w", assayID, err)
		}
	}
	details := map[string]any{"assays": len(g.AssayIDs)}
	if g.DerivedFromID != nil {
		details["derived_from"] = *g.DerivedFromID
	}
	return s.appendAudit(ctx, actor, "sequencing_group.create", "sequencing_group", g.ID, details)
}

func (s *PostgresStore) ArchiveGroup(ctx context.Context, actor, id string) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE sequencing_group SET archived = true WHERE id = $1 AND NOT archived
	`, id)
	if err != nil {
		return fmt.Errorf("archive sequencing group: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return &errs.NotFound{Kind: "sequencing group", ID: id}
	}
	return s.appendAudit(ctx, actor, "sequencing_group.archive", "sequencing_group", id, nil)
}

// QuerySequencingGroups compiles the filter against the group/sample join and
// returns matching groups with their member sets.
func (s *PostgresStore) QuerySequencingGroups(ctx context.Context, f SequencingGroupFilter) ([]SequencingGroup, error) {
	where, params, err := filter.Compile(f.Model(), nil)
	if err != nil {
		return nil, err
	}

	query, args, err := Expand(`
		SELECT g.id, g.sample_id, g.type, g.technology, g.platform, g.meta, g.archived, g.derived_from_id, g.created_at,
			COALESCE(array_agg(sga.assay_id ORDER BY sga.assay_id) FILTER (WHERE sga.assay_id IS NOT NULL), '{}')
		FROM sequencing_group g
		JOIN sample sm ON sm.id = g.sample_id
		LEFT JOIN sequencing_group_assay sga ON sga.sequencing_group_id = g.id
		WHERE `+where+`
		GROUP BY g.id, g.sample_id, g.type, g.technology, g.platform, g.meta, g.archived, g.derived_from_id, g.created_at
		ORDER BY g.created_at, g.id
	`, params)
	if err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sequencing groups: %w", err)
	}
	defer rows.Close()

	var groups []SequencingGroup
	for rows.Next() {
		var (
			g        SequencingGroup
			metaRaw  []byte
			assayIDs []byte
		)
		if err := rows.Scan(&g.ID, &g.SampleID, &g.Type, &g.Technology, &g.Platform, &metaRaw, &g.Archived, &g.DerivedFromID, &g.CreatedAt, &assayIDs); err != nil {
			return nil, fmt.Errorf("scan sequencing group: %w", err)
		}
		if g.Meta, err = unmarshalMeta(metaRaw); err != nil {
			return nil, err
		}
		g.AssayIDs = parseTextArray(assayIDs)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ActiveGroups lists a project's non-archived groups for report rendering.
func (s *PostgresStore) ActiveGroups(ctx context.Context, projectID string) ([]SequencingGroup, error) {
	return s.QuerySequencingGroups(ctx, SequencingGroupFilter{
		ProjectID: filter.New[string]().Eq(projectID),
		Archived:  filter.New[bool]().Eq(false),
	})
}

func (s *PostgresStore) groupMembers(ctx context.Context, groupID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT assay_id FROM sequencing_group_assay
		WHERE sequencing_group_id = $1
		ORDER BY assay_id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("group members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// parseTextArray decodes Postgres text[] wire form ({a,b,c}). Member ids are
// generated by this service and contain no quoting-sensitive characters.
func parseTextArray(raw []byte) []string {
	s := string(raw)
	if len(s) < 2 || s == "{}" {
		return nil
	}
	s = s[1 : len(s)-1]
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
