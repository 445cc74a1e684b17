package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across sample, participant, and
// sequencing_group using plainto_tsquery and ts_rank. All sub-queries are
// bounded by the caller's project scope.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || len(q.ProjectIDs) == 0 {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}

	scopePlaceholders := make([]string, len(q.ProjectIDs))
	for i, id := range q.ProjectIDs {
		scopePlaceholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, id)
	}
	scope := strings.Join(scopePlaceholders, ", ")

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultSample {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'sample'::text AS type, s.id, s.external_id AS title,
				s.type AS snippet,
				s.project_id,
				ts_rank(s.fts, %s) AS rank
			FROM sample s
			WHERE s.fts @@ %s AND s.project_id IN (%s)`, tsQuery, tsQuery, scope))
	}

	if q.FilterType == "" || q.FilterType == ResultParticipant {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'participant'::text AS type, pt.id, pt.external_id AS title,
				''::text AS snippet,
				pt.project_id,
				ts_rank(pt.fts, %s) AS rank
			FROM participant pt
			WHERE pt.fts @@ %s AND pt.project_id IN (%s)`, tsQuery, tsQuery, scope))
	}

	if q.FilterType == "" || q.FilterType == ResultGroup {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'sequencing-group'::text AS type, g.id, s.external_id AS title,
				g.type || ' ' || g.technology || ' ' || g.platform AS snippet,
				s.project_id,
				ts_rank(g.fts, %s) AS rank
			FROM sequencing_group g
			JOIN sample s ON s.id = g.sample_id
			WHERE g.fts @@ %s AND s.project_id IN (%s)`, tsQuery, tsQuery, scope))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, project_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ProjectID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]SampleRecord, []ParticipantRecord, []GroupRecord, error) {
	sampleRows, err := p.db.QueryContext(ctx, `
		SELECT id, external_id, type, project_id, active
		FROM sample
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load samples: %w", err)
	}
	defer sampleRows.Close()

	samples := make([]SampleRecord, 0)
	for sampleRows.Next() {
		var s SampleRecord
		if err := sampleRows.Scan(&s.ID, &s.ExternalID, &s.Type, &s.ProjectID, &s.Active); err != nil {
			return nil, nil, nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, s)
	}
	if err := sampleRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate samples: %w", err)
	}

	participantRows, err := p.db.QueryContext(ctx, `
		SELECT id, external_id, project_id
		FROM participant
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load participants: %w", err)
	}
	defer participantRows.Close()

	participants := make([]ParticipantRecord, 0)
	for participantRows.Next() {
		var pt ParticipantRecord
		if err := participantRows.Scan(&pt.ID, &pt.ExternalID, &pt.ProjectID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, pt)
	}
	if err := participantRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate participants: %w", err)
	}

	groupRows, err := p.db.QueryContext(ctx, `
		SELECT g.id, s.external_id, g.type, g.technology, g.platform, s.project_id, g.archived
		FROM sequencing_group g
		JOIN sample s ON s.id = g.sample_id
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load sequencing groups: %w", err)
	}
	defer groupRows.Close()

	groups := make([]GroupRecord, 0)
	for groupRows.Next() {
		var g GroupRecord
		if err := groupRows.Scan(&g.ID, &g.SampleExternalID, &g.Type, &g.Technology, &g.Platform, &g.ProjectID, &g.Archived); err != nil {
			return nil, nil, nil, fmt.Errorf("scan sequencing group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := groupRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate sequencing groups: %w", err)
	}

	return samples, participants, groups, nil
}
