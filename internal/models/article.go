package models

// Article is one row of the result file written by the remote search function.
// Cluster groups rows in the data table; KMeansCluster colours the chart.
type Article struct {
	Cluster       string
	Topic         string
	Title         string
	Summary       string
	Author        string
	PublishedDate string
	X             float64
	Y             float64
	Similarity    float64
	KMeansCluster string
}

// ResultTable is the authoritative, unsampled result set.
type ResultTable struct {
	Articles []Article
}

// Len returns the number of rows.
func (t *ResultTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Articles)
}
