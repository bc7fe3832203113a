package render

import (
	"encoding/json"

	"github.com/fairlabs/stms-dashboard/internal/models"
)

const (
	vegaLiteSchema = "https://vega.github.io/schema/vega-lite/v5.json"
	chartTitle     = "R&D Monitoring"
	legendParam    = "cluster_select"
)

// ChartPoint is one plotted article.
type ChartPoint struct {
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Title         string  `json:"title"`
	Cluster       string  `json:"cluster"`
	KMeansCluster string  `json:"kmeans_cluster"`
	Similarity    float64 `json:"similarity"`
}

// Chart is the scatter plot of the sampled articles.
type Chart struct {
	Points []ChartPoint
}

// NewChart samples the table and projects the rows into chart points.
func NewChart(table *models.ResultTable) *Chart {
	var rows []models.Article
	if table != nil {
		rows = table.Articles
	}
	sampled := Sample(rows, ChartSampleSize, ChartSampleSeed)

	points := make([]ChartPoint, 0, len(sampled))
	for _, a := range sampled {
		points = append(points, ChartPoint{
			X:             a.X,
			Y:             a.Y,
			Title:         a.Title,
			Cluster:       a.Cluster,
			KMeansCluster: a.KMeansCluster,
			Similarity:    a.Similarity,
		})
	}
	return &Chart{Points: points}
}

// Spec returns the Vega-Lite specification. Clicking a legend entry selects
// a k-means cluster and dims every other point; dragging pans, scrolling zooms.
func (c *Chart) Spec() map[string]any {
	hiddenAxis := map[string]any{"labels": false, "ticks": false, "domain": false}

	return map[string]any{
		"$schema":    vegaLiteSchema,
		"title":      chartTitle,
		"width":      "container",
		"height":     500,
		"background": "#FFFFFF",
		"config": map[string]any{
			"view":   map[string]any{"strokeWidth": 0},
			"legend": map[string]any{"labelLimit": 0},
		},
		"data": map[string]any{"values": c.Points},
		"mark": map[string]any{
			"type":        "circle",
			"size":        60,
			"stroke":      "#666",
			"strokeWidth": 1,
			"opacity":     0.3,
		},
		"params": []map[string]any{
			{
				"name":   legendParam,
				"select": map[string]any{"type": "point", "fields": []string{"kmeans_cluster"}},
				"bind":   "legend",
			},
			{
				"name":   "pan_zoom",
				"select": "interval",
				"bind":   "scales",
			},
		},
		"encoding": map[string]any{
			"x": map[string]any{
				"field": "x",
				"type":  "quantitative",
				"scale": map[string]any{"zero": false},
				"axis":  hiddenAxis,
			},
			"y": map[string]any{
				"field": "y",
				"type":  "quantitative",
				"scale": map[string]any{"zero": false},
				"axis":  hiddenAxis,
			},
			"color": map[string]any{
				"field": "kmeans_cluster",
				"type":  "nominal",
				"legend": map[string]any{
					"columns":       1,
					"symbolLimit":   0,
					"labelFontSize": 14,
				},
			},
			"opacity": map[string]any{
				"condition": map[string]any{"param": legendParam, "value": 1},
				"value":     0.2,
			},
			"tooltip": []map[string]any{
				{"field": "title", "type": "nominal"},
				{"field": "kmeans_cluster", "type": "nominal"},
				{"field": "similarity", "type": "quantitative"},
			},
		},
	}
}

// MarshalJSON encodes the chart as its Vega-Lite specification.
func (c *Chart) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Spec())
}
