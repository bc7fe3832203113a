package models

import "time"

// DateLayout is the ISO calendar date format used on the wire and in forms.
const DateLayout = "2006-01-02"

// SearchRequest carries the parameters a user submits from the search form.
// StartDate and EndDate are the dates the user picked, both inclusive.
type SearchRequest struct {
	KeywordQuery       string
	SemanticQuery      string
	StartDate          time.Time
	EndDate            time.Time
	SearchSimilarity   float64
	ClusterMinSize     int
	ClusterTopN        int
	ClusterSimilarity  float64
	IncludeDescription bool
	IncludeReport      bool
	SampleSize         int
}

// SearchResponse is the body returned by the remote search function.
type SearchResponse struct {
	StatusCode int                 `json:"-"`
	Summaries  map[string]string   `json:"summaries"`
	Articles   map[string][]string `json:"articles"`
	Filepath   string              `json:"filepath"`
}

// ReportRequest asks the remote report function for per-cluster narratives.
type ReportRequest struct {
	Filepath    string `json:"filepath"`
	ClusterTopN int    `json:"cluster_top_n"`
	SampleSize  int    `json:"give_gpt_n_sample"`
}

// ReportResponse holds one narrative per cluster, index i belonging to cluster i.
type ReportResponse struct {
	Reports []string
}
