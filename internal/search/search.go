package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultSample      ResultType = "sample"
	ResultParticipant ResultType = "participant"
	ResultGroup       ResultType = "sequencing-group"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ProjectID string     `json:"projectId"`
}

// Query describes a search request. ProjectIDs is the caller's readable
// project scope; an empty scope returns nothing.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	ProjectIDs []string
	Limit      int
	Offset     int
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

// SampleRecord is the data we index for a sample.
type SampleRecord struct {
	ID         string `json:"id"`
	ExternalID string `json:"externalId"`
	Type       string `json:"type"`
	ProjectID  string `json:"projectId"`
	Active     bool   `json:"active"`
}

// ParticipantRecord is the data we index for a participant.
type ParticipantRecord struct {
	ID         string `json:"id"`
	ExternalID string `json:"externalId"`
	ProjectID  string `json:"projectId"`
}

// GroupRecord is the data we index for a sequencing group. Archived groups
// stay indexed so lineage stays findable.
type GroupRecord struct {
	ID               string `json:"id"`
	SampleExternalID string `json:"sampleExternalId"`
	Type             string `json:"type"`
	Technology       string `json:"technology"`
	Platform         string `json:"platform"`
	ProjectID        string `json:"projectId"`
	Archived         bool   `json:"archived"`
}
