package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sampletrack/internal/errs"
	"sampletrack/internal/filter"
	"sampletrack/internal/hierarchy"
	"sampletrack/internal/util"
)

// MaxUpsertDepth bounds nested sample trees. Deeper trees indicate a
// malformed request, not a legitimate derivation chain.
const MaxUpsertDepth = 10

// AssayUpsert is one assay payload inside a sample upsert. An empty ID
// creates the assay; a set ID patches its meta.
type AssayUpsert struct {
	ID   string
	Type string
	Meta map[string]any
}

// SampleUpsert is one node of a nested sample upsert tree. Children are
// derived samples (e.g. aliquots) owned exclusively by this node for the
// duration of one request.
type SampleUpsert struct {
	ID            string
	ExternalID    string
	ParticipantID *string
	Type          string
	Active        *bool
	Meta          map[string]any
	Assays        []AssayUpsert
	Children      []*SampleUpsert
}

func (u *SampleUpsert) ChildNodes() []hierarchy.Node {
	nodes := make([]hierarchy.Node, 0, len(u.Children))
	for _, c := range u.Children {
		nodes = append(nodes, c)
	}
	return nodes
}

func (u *SampleUpsert) Describe() string {
	if u.ID != "" {
		return u.ID
	}
	if u.ExternalID != "" {
		return "external:" + u.ExternalID
	}
	return "sample(unnamed)"
}

// hasNilNode reports whether any node in the trees is nil. A decoded JSON
// null produces a typed-nil *SampleUpsert, which the flattener's interface
// nil check cannot see.
func hasNilNode(nodes []*SampleUpsert) bool {
	for _, n := range nodes {
		if n == nil || hasNilNode(n.Children) {
			return true
		}
	}
	return false
}

// UpsertSampleTree linearizes the given upsert trees breadth-first and
// applies them in emission order, so every parent row exists before its
// children reference it. The whole request runs in one transaction. Returned
// ids follow emission order.
func (s *PostgresStore) UpsertSampleTree(ctx context.Context, actor, projectID string, roots []*SampleUpsert) ([]string, error) {
	if hasNilNode(roots) {
		return nil, errs.Validationf("sample tree contains a null node")
	}

	nodes := make([]hierarchy.Node, 0, len(roots))
	for _, r := range roots {
		nodes = append(nodes, r)
	}
	placed, err := hierarchy.Flatten(nodes, MaxUpsertDepth)
	if err != nil {
		return nil, err
	}

	for _, p := range placed {
		u := p.Node.(*SampleUpsert)
		if u.ID == "" && u.ExternalID == "" {
			return nil, errs.Validationf("new sample requires an external id")
		}
	}

	ids := make([]string, 0, len(placed))
	assigned := map[*SampleUpsert]string{}

	err = s.transact(ctx, func(tx *PostgresStore) error {
		for _, p := range placed {
			u := p.Node.(*SampleUpsert)

			var parentID *string
			if p.Parent != nil {
				pid := assigned[p.Parent.(*SampleUpsert)]
				parentID = &pid
			}

			id, err := tx.upsertSample(ctx, actor, projectID, parentID, u)
			if err != nil {
				return err
			}
			assigned[u] = id
			ids = append(ids, id)

			for _, a := range u.Assays {
				if _, err := tx.upsertAssay(ctx, actor, id, a); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *PostgresStore) upsertSample(ctx context.Context, actor, projectID string, parentID *string, u *SampleUpsert) (string, error) {
	metaJSON, err := marshalMeta(u.Meta)
	if err != nil {
		return "", err
	}

	if u.ID == "" {
		id := util.NewID("smp")
		active := true
		if u.Active != nil {
			active = *u.Active
		}
		sampleType := u.Type
		if sampleType == "" {
			sampleType = "unknown"
		}
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO sample (id, project_id, participant_id, parent_id, external_id, type, active, meta)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, id, projectID, u.ParticipantID, parentID, u.ExternalID, sampleType, active, metaJSON); err != nil {
			return "", fmt.Errorf("insert sample %s: %w", u.Describe(), err)
		}
		if err := s.appendAudit(ctx, actor, "sample.create", "sample", id, map[string]any{"external_id": u.ExternalID}); err != nil {
			return "", err
		}
		return id, nil
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE sample SET
			meta = meta || $2,
			type = COALESCE(NULLIF($3, ''), type),
			active = COALESCE($4, active),
			participant_id = COALESCE($5, participant_id),
			updated_at = NOW()
		WHERE id = $1 AND project_id = $6
	`, u.ID, metaJSON, u.Type, u.Active, u.ParticipantID, projectID)
	if err != nil {
		return "", fmt.Errorf("update sample %s: %w", u.ID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return "", &errs.NotFound{Kind: "sample", ID: u.ID}
	}
	if err := s.appendAudit(ctx, actor, "sample.update", "sample", u.ID, nil); err != nil {
		return "", err
	}
	return u.ID, nil
}

// QuerySamples compiles the filter and fetches matching samples. External-id
// lookups against joined aliases go through column overrides, never string
// concatenation.
func (s *PostgresStore) QuerySamples(ctx context.Context, f SampleFilter) ([]Sample, error) {
	where, params, err := filter.Compile(f.Model(), nil)
	if err != nil {
		return nil, err
	}

	query, args, err := Expand(`
		SELECT s.id, s.project_id, s.participant_id, s.external_id, s.type, s.active, s.meta, s.created_at, s.updated_at
		FROM sample s
		WHERE `+where+`
		ORDER BY s.created_at, s.id
	`, params)
	if err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var (
			smp     Sample
			metaRaw []byte
		)
		if err := rows.Scan(&smp.ID, &smp.ProjectID, &smp.ParticipantID, &smp.ExternalID, &smp.Type, &smp.Active, &metaRaw, &smp.CreatedAt, &smp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		if smp.Meta, err = unmarshalMeta(metaRaw); err != nil {
			return nil, err
		}
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

func (s *PostgresStore) GetSample(ctx context.Context, id string) (Sample, error) {
	var (
		smp     Sample
		metaRaw []byte
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, project_id, participant_id, external_id, type, active, meta, created_at, updated_at
		FROM sample WHERE id = $1
	`, id).Scan(&smp.ID, &smp.ProjectID, &smp.ParticipantID, &smp.ExternalID, &smp.Type, &smp.Active, &metaRaw, &smp.CreatedAt, &smp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Sample{}, &errs.NotFound{Kind: "sample", ID: id}
	}
	if err != nil {
		return Sample{}, fmt.Errorf("get sample: %w", err)
	}
	if smp.Meta, err = unmarshalMeta(metaRaw); err != nil {
		return Sample{}, err
	}
	return smp, nil
}

func (s *PostgresStore) UpsertParticipant(ctx context.Context, actor string, p Participant) (Participant, error) {
	if strings.TrimSpace(p.ExternalID) == "" {
		return Participant{}, errs.Validationf("participant external id is required")
	}
	metaJSON, err := marshalMeta(p.Meta)
	if err != nil {
		return Participant{}, err
	}

	err = s.transact(ctx, func(tx *PostgresStore) error {
		if p.ID == "" {
			p.ID = util.NewID("pt")
			err := tx.q.QueryRowContext(ctx, `
				INSERT INTO participant (id, project_id, external_id, reported_sex, meta)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING created_at, updated_at
			`, p.ID, p.ProjectID, p.ExternalID, p.ReportedSex, metaJSON).Scan(&p.CreatedAt, &p.UpdatedAt)
			if err != nil {
				return fmt.Errorf("insert participant: %w", err)
			}
			return tx.appendAudit(ctx, actor, "participant.create", "participant", p.ID, nil)
		}

		result, err := tx.q.ExecContext(ctx, `
			UPDATE participant SET
				meta = meta || $2,
				reported_sex = COALESCE(NULLIF($3, ''), reported_sex),
				updated_at = NOW()
			WHERE id = $1 AND project_id = $4
		`, p.ID, metaJSON, p.ReportedSex, p.ProjectID)
		if err != nil {
			return fmt.Errorf("update participant: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return &errs.NotFound{Kind: "participant", ID: p.ID}
		}
		return tx.appendAudit(ctx, actor, "participant.update", "participant", p.ID, nil)
	})
	if err != nil {
		return Participant{}, err
	}
	return p, nil
}
