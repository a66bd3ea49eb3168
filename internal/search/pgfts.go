package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search over the
// documents table as a fallback. The tsvector is computed on the fly
// from the JSONB payload; fine at fallback scale.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is
// down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across the three workflow
// collections using plainto_tsquery and ts_rank, with ts_headline for
// snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
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
	argN := 2

	statusFilter := ""
	if q.FilterStatus != "" {
		statusFilter = fmt.Sprintf(" AND d.data->>'status' = $%d", argN)
		args = append(args, q.FilterStatus)
		argN++
	}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultConcern {
		vector := "to_tsvector('english', coalesce(d.data->>'title','') || ' ' || coalesce(d.data->>'description','') || ' ' || coalesce(d.data->>'location',''))"
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'concern'::text AS type, d.id, coalesce(d.data->>'title','') AS title,
				ts_headline('english', coalesce(d.data->>'description',''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				coalesce(d.data->>'status','') AS status,
				coalesce(d.data->>'location','') AS location,
				ts_rank(%s, %s) AS rank
			FROM documents d
			WHERE d.collection = 'concern_slips' AND %s @@ %s%s`,
			tsQuery, vector, tsQuery, vector, tsQuery, statusFilter))
	}

	if q.FilterType == "" || q.FilterType == ResultJobService {
		vector := "to_tsvector('english', coalesce(d.data->>'title','') || ' ' || coalesce(d.data->>'description','') || ' ' || coalesce(d.data->>'location',''))"
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'job_service'::text AS type, d.id, coalesce(d.data->>'title','') AS title,
				ts_headline('english', coalesce(d.data->>'description',''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				coalesce(d.data->>'status','') AS status,
				coalesce(d.data->>'location','') AS location,
				ts_rank(%s, %s) AS rank
			FROM documents d
			WHERE d.collection = 'job_services' AND %s @@ %s%s`,
			tsQuery, vector, tsQuery, vector, tsQuery, statusFilter))
	}

	if q.FilterType == "" || q.FilterType == ResultWorkPermit {
		vector := "to_tsvector('english', coalesce(d.data->>'contractor_name','') || ' ' || coalesce(d.data->>'work_description',''))"
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'work_permit'::text AS type, d.id, coalesce(d.data->>'contractor_name','') AS title,
				ts_headline('english', coalesce(d.data->>'work_description',''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				coalesce(d.data->>'status','') AS status,
				coalesce(d.data->>'unit_id','') AS location,
				ts_rank(%s, %s) AS rank
			FROM documents d
			WHERE d.collection = 'work_order_permits' AND %s @@ %s%s`,
			tsQuery, vector, tsQuery, vector, tsQuery, statusFilter))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, status, location
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
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.Status, &r.Location); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ConcernRecord, []JobRecord, []PermitRecord, error) {
	concernRows, err := p.db.QueryContext(ctx, `
		SELECT id,
			coalesce(data->>'title',''), coalesce(data->>'description',''),
			coalesce(data->>'location',''), coalesce(data->>'category',''),
			coalesce(data->>'status','')
		FROM documents WHERE collection = 'concern_slips'
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load concerns: %w", err)
	}
	defer concernRows.Close()

	concerns := make([]ConcernRecord, 0)
	for concernRows.Next() {
		var c ConcernRecord
		if err := concernRows.Scan(&c.ID, &c.Title, &c.Description, &c.Location, &c.Category, &c.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan concern: %w", err)
		}
		concerns = append(concerns, c)
	}
	if err := concernRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate concerns: %w", err)
	}

	jobRows, err := p.db.QueryContext(ctx, `
		SELECT id,
			coalesce(data->>'title',''), coalesce(data->>'description',''),
			coalesce(data->>'location',''), coalesce(data->>'assigned_to',''),
			coalesce(data->>'status','')
		FROM documents WHERE collection = 'job_services'
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load jobs: %w", err)
	}
	defer jobRows.Close()

	jobs := make([]JobRecord, 0)
	for jobRows.Next() {
		var j JobRecord
		if err := jobRows.Scan(&j.ID, &j.Title, &j.Description, &j.Location, &j.AssignedTo, &j.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := jobRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate jobs: %w", err)
	}

	permitRows, err := p.db.QueryContext(ctx, `
		SELECT id,
			coalesce(data->>'contractor_name',''), coalesce(data->>'work_description',''),
			coalesce(data->>'unit_id',''), coalesce(data->>'status','')
		FROM documents WHERE collection = 'work_order_permits'
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load permits: %w", err)
	}
	defer permitRows.Close()

	permits := make([]PermitRecord, 0)
	for permitRows.Next() {
		var p PermitRecord
		if err := permitRows.Scan(&p.ID, &p.ContractorName, &p.WorkDescription, &p.UnitID, &p.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan permit: %w", err)
		}
		permits = append(permits, p)
	}
	if err := permitRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate permits: %w", err)
	}

	return concerns, jobs, permits, nil
}
