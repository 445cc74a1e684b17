package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexSample indexes a sample (fire-and-forget to Meilisearch).
func (s *Service) IndexSample(rec SampleRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexSample(rec); err != nil {
			log.Printf("search: index sample %s: %v", rec.ID, err)
		}
	}()
}

// IndexParticipant indexes a participant (fire-and-forget to Meilisearch).
func (s *Service) IndexParticipant(rec ParticipantRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexParticipant(rec); err != nil {
			log.Printf("search: index participant %s: %v", rec.ID, err)
		}
	}()
}

// IndexGroup indexes a sequencing group (fire-and-forget to Meilisearch).
// Archiving re-indexes with archived=true rather than deleting: lineage
// queries still need to find predecessors.
func (s *Service) IndexGroup(rec GroupRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexGroup(rec); err != nil {
			log.Printf("search: index sequencing group %s: %v", rec.ID, err)
		}
	}()
}

// ReindexAll pushes full record sets into Meilisearch.
func (s *Service) ReindexAll(samples []SampleRecord, participants []ParticipantRecord, groups []GroupRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}

	if len(samples) > 0 {
		if err := s.meili.IndexSamples(samples); err != nil {
			log.Printf("search: reindex samples: %v", err)
		}
	}
	if len(participants) > 0 {
		if err := s.meili.IndexParticipants(participants); err != nil {
			log.Printf("search: reindex participants: %v", err)
		}
	}
	if len(groups) > 0 {
		if err := s.meili.IndexGroups(groups); err != nil {
			log.Printf("search: reindex groups: %v", err)
		}
	}
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	samples, participants, groups, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	s.ReindexAll(samples, participants, groups)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
