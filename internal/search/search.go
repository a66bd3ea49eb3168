package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultConcern    ResultType = "concern"
	ResultJobService ResultType = "job_service"
	ResultWorkPermit ResultType = "work_permit"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	Status   string     `json:"status"`
	Location string     `json:"location,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text         string
	FilterType   ResultType // empty = all types
	FilterStatus string
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ConcernRecord is the data we index for a concern slip.
type ConcernRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Category    string `json:"category"`
	Status      string `json:"status"`
}

// JobRecord is the data we index for a job service.
type JobRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	AssignedTo  string `json:"assignedTo"`
	Status      string `json:"status"`
}

// PermitRecord is the data we index for a work order permit.
type PermitRecord struct {
	ID              string `json:"id"`
	ContractorName  string `json:"contractorName"`
	WorkDescription string `json:"workDescription"`
	UnitID          string `json:"unitId"`
	Status          string `json:"status"`
}
