package render

import (
	"log/slog"
	"strconv"

	"github.com/fairlabs/stms-dashboard/internal/logger"
	"github.com/fairlabs/stms-dashboard/internal/models"
)

// ReportBlock is the narrative for one cluster.
type ReportBlock struct {
	Cluster int    `json:"cluster"`
	Topic   string `json:"topic"`
	Text    string `json:"text"`
}

// Reports pairs report i with the topic of cluster i. A report whose cluster
// has no summary keeps an empty topic and is logged.
func Reports(log *slog.Logger, resp *models.ReportResponse, summaries map[string]string) []ReportBlock {
	if resp == nil {
		return nil
	}
	if log == nil {
		log = logger.Discard()
	}
	out := make([]ReportBlock, 0, len(resp.Reports))
	for i, text := range resp.Reports {
		topic, ok := summaries[strconv.Itoa(i)]
		if !ok {
			log.Warn("report has no cluster summary", slog.Int("cluster", i))
		}
		out = append(out, ReportBlock{
			Cluster: i,
			Topic:   topic,
			Text:    text,
		})
	}
	return out
}
