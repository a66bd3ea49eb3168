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
	idxConcerns = "facilityfix_concerns"
	idxJobs     = "facilityfix_jobs"
	idxPermits  = "facilityfix_permits"
)

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. The
// caller should proceed without it when the initial connection fails;
// the health loop will pick it up if it comes back.
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
		primaryKey string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxConcerns,
			primaryKey: "id",
			filterable: []string{"status", "category"},
			searchable: []string{"title", "description", "location"},
		},
		{
			uid:        idxJobs,
			primaryKey: "id",
			filterable: []string{"status", "assignedTo"},
			searchable: []string{"title", "description", "location"},
		},
		{
			uid:        idxPermits,
			primaryKey: "id",
			filterable: []string{"status", "unitId"},
			searchable: []string{"contractorName", "workDescription"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: idx.primaryKey,
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

// Search queries all three indexes (or a filtered subset) and merges
// results.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxConcerns, ResultConcern},
		{idxJobs, ResultJobService},
		{idxPermits, ResultWorkPermit},
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
		}
		if q.FilterStatus != "" {
			sr.Filter = []string{fmt.Sprintf("status = %q", q.FilterStatus)}
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

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxConcerns:
		return ResultConcern
	case idxJobs:
		return ResultJobService
	case idxPermits:
		return ResultWorkPermit
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")
	r.Status = decodeString(hit, "status")

	switch rtyp {
	case ResultConcern, ResultJobService:
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description"))
		r.Location = decodeString(hit, "location")
	case ResultWorkPermit:
		r.Title = firstNonBlank(decodeFormattedString(hit, "contractorName"), decodeString(hit, "contractorName"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "workDescription"), decodeString(hit, "workDescription"))
		r.Location = decodeString(hit, "unitId")
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

// IndexConcern adds or updates a concern in the search index.
func (m *Meili) IndexConcern(rec ConcernRecord) error {
	_, err := m.client.Index(idxConcerns).AddDocuments([]ConcernRecord{rec}, nil)
	return err
}

// IndexJob adds or updates a job service in the search index.
func (m *Meili) IndexJob(rec JobRecord) error {
	_, err := m.client.Index(idxJobs).AddDocuments([]JobRecord{rec}, nil)
	return err
}

// IndexPermit adds or updates a work permit in the search index.
func (m *Meili) IndexPermit(rec PermitRecord) error {
	_, err := m.client.Index(idxPermits).AddDocuments([]PermitRecord{rec}, nil)
	return err
}

// IndexConcerns bulk-indexes concerns.
func (m *Meili) IndexConcerns(records []ConcernRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxConcerns).AddDocuments(records, nil)
	return err
}

// IndexJobs bulk-indexes job services.
func (m *Meili) IndexJobs(records []JobRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxJobs).AddDocuments(records, nil)
	return err
}

// IndexPermits bulk-indexes work permits.
func (m *Meili) IndexPermits(records []PermitRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxPermits).AddDocuments(records, nil)
	return err
}
