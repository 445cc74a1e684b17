package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxSamples      = "sampletrack_samples"
	idxParticipants = "sampletrack_participants"
	idxGroups       = "sampletrack_groups"
)

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes.
// The caller proceeds without it when the instance is unreachable; the
// health loop reconfigures once it recovers.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxSamples,
			filterable: []string{"projectId", "type", "active"},
			searchable: []string{"externalId", "type"},
		},
		{
			uid:        idxParticipants,
			filterable: []string{"projectId"},
			searchable: []string{"externalId"},
		},
		{
			uid:        idxGroups,
			filterable: []string{"projectId", "type", "technology", "platform", "archived"},
			searchable: []string{"sampleExternalId", "type", "technology", "platform"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: "id",
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		filterableInterface := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterableInterface[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the per-type indexes and merges results. Every query carries
// the caller's project scope as a filter; an empty scope short-circuits.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	if len(q.ProjectIDs) == 0 {
		return nil, 0, nil
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	scope := projectScopeFilter(q.ProjectIDs)

	var queries []*meili.SearchRequest
	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxSamples, ResultSample},
		{idxParticipants, ResultParticipant},
		{idxGroups, ResultGroup},
	}

	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              ti.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
			Filter:                []string{scope},
		}
		queries = append(queries, sr)
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func projectScopeFilter(projectIDs []string) string {
	quoted := make([]string, len(projectIDs))
	for i, id := range projectIDs {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	return fmt.Sprintf("projectId IN [%s]", strings.Join(quoted, ", "))
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxSamples:
		return ResultSample
	case idxParticipants:
		return ResultParticipant
	case idxGroups:
		return ResultGroup
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")
	r.ProjectID = decodeString(hit, "projectId")

	switch rtyp {
	case ResultSample:
		r.Title = firstNonBlank(decodeFormattedString(hit, "externalId"), decodeString(hit, "externalId"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "type"), decodeString(hit, "type"))
	case ResultParticipant:
		r.Title = firstNonBlank(decodeFormattedString(hit, "externalId"), decodeString(hit, "externalId"))
	case ResultGroup:
		r.Title = firstNonBlank(decodeFormattedString(hit, "sampleExternalId"), decodeString(hit, "sampleExternalId"))
		r.Snippet = strings.TrimSpace(strings.Join([]string{
			decodeString(hit, "type"),
			decodeString(hit, "technology"),
			decodeString(hit, "platform"),
		}, " "))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexSample adds or updates a sample in the search index.
func (m *Meili) IndexSample(s SampleRecord) error {
	_, err := m.client.Index(idxSamples).AddDocuments([]SampleRecord{s}, nil)
	return err
}

// IndexParticipant adds or updates a participant in the search index.
func (m *Meili) IndexParticipant(p ParticipantRecord) error {
	_, err := m.client.Index(idxParticipants).AddDocuments([]ParticipantRecord{p}, nil)
	return err
}

// IndexGroup adds or updates a sequencing group in the search index.
func (m *Meili) IndexGroup(g GroupRecord) error {
	_, err := m.client.Index(idxGroups).AddDocuments([]GroupRecord{g}, nil)
	return err
}

// IndexSamples bulk-indexes samples.
func (m *Meili) IndexSamples(samples []SampleRecord) error {
	if len(samples) == 0 {
		return nil
	}
	_, err := m.client.Index(idxSamples).AddDocuments(samples, nil)
	return err
}

// IndexParticipants bulk-indexes participants.
func (m *Meili) IndexParticipants(participants []ParticipantRecord) error {
	if len(participants) == 0 {
		return nil
	}
	_, err := m.client.Index(idxParticipants).AddDocuments(participants, nil)
	return err
}

// IndexGroups bulk-indexes sequencing groups.
func (m *Meili) IndexGroups(groups []GroupRecord) error {
	if len(groups) == 0 {
		return nil
	}
	_, err := m.client.Index(idxGroups).AddDocuments(groups, nil)
	return err
}
