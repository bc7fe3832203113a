package models

import "time"

// Outcomes recorded on a SearchEvent.
const (
	OutcomeRendered = "rendered"
	OutcomeFailed   = "failed"
)

// SearchEvent records one submitted search. It is published to Kafka by the
// dashboard and stored in the search-history index by the worker.
type SearchEvent struct {
	ID                 string    `json:"id"`
	Timestamp          time.Time `json:"timestamp"`
	KeywordQuery       string    `json:"keyword_query"`
	SemanticQuery      string    `json:"semantic_query"`
	StartDate          string    `json:"start_date"`
	EndDate            string    `json:"end_date"`
	SearchSimilarity   float64   `json:"search_similarity"`
	ClusterMinSize     int       `json:"cluster_min_size"`
	ClusterTopN        int       `json:"cluster_top_n"`
	ClusterSimilarity  float64   `json:"cluster_similarity"`
	IncludeDescription bool      `json:"include_description"`
	IncludeReport      bool      `json:"include_report"`
	SampleSize         int       `json:"sample_size"`
	Outcome            string    `json:"outcome"`
	Error              string    `json:"error,omitempty"`
	Clusters           int       `json:"clusters"`
	Articles           int       `json:"articles"`
	Reports            int       `json:"reports"`
	Filepath           string    `json:"filepath,omitempty"`
	DurationMS         int64     `json:"duration_ms"`
}

// NewSearchEvent copies the request parameters into an event.
func NewSearchEvent(id string, ts time.Time, req SearchRequest) SearchEvent {
	return SearchEvent{
		ID:                 id,
		Timestamp:          ts.UTC(),
		KeywordQuery:       req.KeywordQuery,
		SemanticQuery:      req.SemanticQuery,
		StartDate:          req.StartDate.Format(DateLayout),
		EndDate:            req.EndDate.Format(DateLayout),
		SearchSimilarity:   req.SearchSimilarity,
		ClusterMinSize:     req.ClusterMinSize,
		ClusterTopN:        req.ClusterTopN,
		ClusterSimilarity:  req.ClusterSimilarity,
		IncludeDescription: req.IncludeDescription,
		IncludeReport:      req.IncludeReport,
		SampleSize:         req.SampleSize,
	}
}
