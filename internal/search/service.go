package search

import (
	"context"
	"log"
)

type fallbackSearcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	LoadAllRecords(ctx context.Context) ([]ListingRecord, error)
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts fallbackSearcher
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts fallbackSearcher) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

func (s *Service) meiliReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	q = q.normalized()
	if s.meiliReady() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexListing upserts a public listing (fire-and-forget to Meilisearch).
func (s *Service) IndexListing(rec ListingRecord) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.IndexListing(rec); err != nil {
			log.Printf("search: index listing %s: %v", rec.ID, err)
		}
	}()
}

// DeleteListing removes a listing from the index (fire-and-forget).
func (s *Service) DeleteListing(id string) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.DeleteListing(id); err != nil {
			log.Printf("search: delete listing %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG pushes every public listing from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.meiliReady() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexListings(records); err != nil {
		log.Printf("search: reindex listings: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
