package render

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/fairlabs/stms-dashboard/internal/models"
)

// ClusterSummary is a topic heading followed by the cluster's article titles.
type ClusterSummary struct {
	ClusterID string   `json:"cluster_id"`
	Heading   string   `json:"heading"`
	Topic     string   `json:"topic"`
	Titles    []string `json:"titles"`
}

// Summaries lists the clusters of resp ordered by numeric id. Ids that are
// not integers come last in lexical order.
func Summaries(resp *models.SearchResponse) []ClusterSummary {
	if resp == nil {
		return nil
	}

	ids := make([]string, 0, len(resp.Summaries))
	for id := range resp.Summaries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, aErr := strconv.Atoi(ids[i])
		b, bErr := strconv.Atoi(ids[j])
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})

	out := make([]ClusterSummary, 0, len(ids))
	for _, id := range ids {
		topic := resp.Summaries[id]
		label := id
		if n, err := strconv.Atoi(id); err == nil {
			label = strconv.Itoa(n)
		}
		out = append(out, ClusterSummary{
			ClusterID: id,
			Heading:   fmt.Sprintf("Cluster %s Topic: %s", label, topic),
			Topic:     topic,
			Titles:    resp.Articles[id],
		})
	}
	return out
}
