package store

import (
	"sort"

	"sampletrack/internal/filter"
)

// SampleFilter declares the filterable fields of the sample table. The field
// list is fixed here, at definition time; the compiler never discovers fields
// by inspecting runtime shapes.
type SampleFilter struct {
	ID            *filter.Expression[string]
	ExternalID    *filter.Expression[string]
	ProjectID     *filter.Expression[string]
	ParticipantID *filter.Expression[string]
	Type          *filter.Expression[string]
	Active        *filter.Expression[bool]
	// Meta filters address single keys of the JSONB meta column.
	Meta map[string]*filter.Expression[string]
}

func (f SampleFilter) Model() *filter.Model {
	m := filter.NewModel().
		Add("id", "s.id", f.ID).
		Add("external_id", "s.external_id", f.ExternalID).
		Add("project_id", "s.project_id", f.ProjectID).
		Add("participant_id", "s.participant_id", f.ParticipantID).
		Add("type", "s.type", f.Type).
		Add("active", "s.active", f.Active)
	for _, key := range sortedKeys(f.Meta) {
		m.AddMeta("meta."+key, "s.meta", key, f.Meta[key])
	}
	return m
}

// SequencingGroupFilter declares the filterable fields of sequencing_group.
// ProjectID filters through the owning sample and relies on the join alias
// the query method supplies via an override.
type SequencingGroupFilter struct {
	ID         *filter.Expression[string]
	SampleID   *filter.Expression[string]
	ProjectID  *filter.Expression[string]
	Type       *filter.Expression[string]
	Technology *filter.Expression[string]
	Platform   *filter.Expression[string]
	Archived   *filter.Expression[bool]
	Meta       map[string]*filter.Expression[string]
}

func (f SequencingGroupFilter) Model() *filter.Model {
	m := filter.NewModel().
		Add("id", "g.id", f.ID).
		Add("sample_id", "g.sample_id", f.SampleID).
		Add("project_id", "sm.project_id", f.ProjectID).
		Add("type", "g.type", f.Type).
		Add("technology", "g.technology", f.Technology).
		Add("platform", "g.platform", f.Platform).
		Add("archived", "g.archived", f.Archived)
	for _, key := range sortedKeys(f.Meta) {
		m.AddMeta("meta."+key, "g.meta", key, f.Meta[key])
	}
	return m
}

func sortedKeys(meta map[string]*filter.Expression[string]) []string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
