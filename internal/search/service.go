package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to
// PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch
// is not configured, pgfts may be nil when running without Postgres.
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

	if s.pgfts == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexConcern indexes a concern (fire-and-forget to Meilisearch).
func (s *Service) IndexConcern(rec ConcernRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexConcern(rec); err != nil {
			log.Printf("search: index concern %s: %v", rec.ID, err)
		}
	}()
}

// IndexJob indexes a job service (fire-and-forget to Meilisearch).
func (s *Service) IndexJob(rec JobRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexJob(rec); err != nil {
			log.Printf("search: index job %s: %v", rec.ID, err)
		}
	}()
}

// IndexPermit indexes a work permit (fire-and-forget to Meilisearch).
func (s *Service) IndexPermit(rec PermitRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexPermit(rec); err != nil {
			log.Printf("search: index permit %s: %v", rec.ID, err)
		}
	}()
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL
// into Meilisearch. Called at startup when both backends are up.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	concerns, jobs, permits, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexConcerns(concerns); err != nil {
		log.Printf("search: reindex concerns: %v", err)
	}
	if err := s.meili.IndexJobs(jobs); err != nil {
		log.Printf("search: reindex jobs: %v", err)
	}
	if err := s.meili.IndexPermits(permits); err != nil {
		log.Printf("search: reindex permits: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
