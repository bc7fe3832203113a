// Package input turns raw form values into a SearchRequest.
package input

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fairlabs/stms-dashboard/internal/models"
)

// Widget bounds and defaults of the search form.
const (
	MinSimilarity = 0.1
	MaxSimilarity = 1.0
	MinCount      = 1
	MaxCount      = 20

	DefaultSearchSimilarity  = 0.5
	DefaultClusterSimilarity = 0.6
	DefaultClusterMinSize    = 5
	DefaultClusterTopN       = 5
	DefaultSampleSize        = 5
)

// ErrInvalidDate is returned when a date field is present but not an ISO date.
var ErrInvalidDate = errors.New("invalid date")

// Form mirrors the search form. Zero numeric values select the defaults.
type Form struct {
	KeywordQuery       string  `json:"keyword_query"`
	SemanticQuery      string  `json:"semantic_query"`
	StartDate          string  `json:"start_date"`
	EndDate            string  `json:"end_date"`
	SearchSimilarity   float64 `json:"search_similarity"`
	ClusterMinSize     int     `json:"cluster_min_size"`
	ClusterTopN        int     `json:"cluster_top_n"`
	ClusterSimilarity  float64 `json:"cluster_similarity"`
	IncludeDescription bool    `json:"use_body"`
	IncludeReport      bool    `json:"generate_report"`
	SampleSize         int     `json:"give_gpt_n_sample"`
}

// DefaultForm is the form shown before the first search.
func DefaultForm(now time.Time) Form {
	today := now.Format(models.DateLayout)
	return Form{
		StartDate:         today,
		EndDate:           today,
		SearchSimilarity:  DefaultSearchSimilarity,
		ClusterMinSize:    DefaultClusterMinSize,
		ClusterTopN:       DefaultClusterTopN,
		ClusterSimilarity: DefaultClusterSimilarity,
		SampleSize:        DefaultSampleSize,
	}
}

// FromValues reads a submitted HTML form. Unparsable numbers fall back to defaults.
func FromValues(v url.Values) Form {
	return Form{
		KeywordQuery:       v.Get("keyword_query"),
		SemanticQuery:      v.Get("semantic_query"),
		StartDate:          v.Get("start_date"),
		EndDate:            v.Get("end_date"),
		SearchSimilarity:   parseFloat(v.Get("search_similarity")),
		ClusterMinSize:     parseInt(v.Get("cluster_min_size")),
		ClusterTopN:        parseInt(v.Get("cluster_top_n")),
		ClusterSimilarity:  parseFloat(v.Get("cluster_similarity")),
		IncludeDescription: parseBool(v.Get("use_body")),
		IncludeReport:      parseBool(v.Get("generate_report")),
		SampleSize:         parseInt(v.Get("give_gpt_n_sample")),
	}
}

// Request builds a SearchRequest. It returns nil and no error when any of the
// four required inputs (both queries and both dates) is empty.
func (f Form) Request() (*models.SearchRequest, error) {
	startRaw := strings.TrimSpace(f.StartDate)
	endRaw := strings.TrimSpace(f.EndDate)
	if blank(f.KeywordQuery) || blank(f.SemanticQuery) || startRaw == "" || endRaw == "" {
		return nil, nil
	}

	start, err := time.Parse(models.DateLayout, startRaw)
	if err != nil {
		return nil, fmt.Errorf("start date %q: %w", startRaw, ErrInvalidDate)
	}
	end, err := time.Parse(models.DateLayout, endRaw)
	if err != nil {
		return nil, fmt.Errorf("end date %q: %w", endRaw, ErrInvalidDate)
	}

	return &models.SearchRequest{
		KeywordQuery:       f.KeywordQuery,
		SemanticQuery:      f.SemanticQuery,
		StartDate:          start,
		EndDate:            end,
		SearchSimilarity:   clampFloat(f.SearchSimilarity, DefaultSearchSimilarity, MinSimilarity, MaxSimilarity),
		ClusterMinSize:     clampInt(f.ClusterMinSize, DefaultClusterMinSize, MinCount, MaxCount),
		ClusterTopN:        clampInt(f.ClusterTopN, DefaultClusterTopN, MinCount, MaxCount),
		ClusterSimilarity:  clampFloat(f.ClusterSimilarity, DefaultClusterSimilarity, MinSimilarity, MaxSimilarity),
		IncludeDescription: f.IncludeDescription,
		IncludeReport:      f.IncludeReport,
		SampleSize:         clampInt(f.SampleSize, DefaultSampleSize, MinCount, MaxCount),
	}, nil
}

// blank reports whether a query has no visible characters. Queries that pass
// are forwarded exactly as typed.
func blank(query string) bool {
	return strings.TrimSpace(query) == ""
}

func clampInt(value, fallback, min, max int) int {
	if value == 0 {
		return fallback
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func clampFloat(value, fallback, min, max float64) float64 {
	if value == 0 {
		return fallback
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func parseInt(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return v
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "true", "1", "yes":
		return true
	default:
		return false
	}
}
