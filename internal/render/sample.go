// Package render builds the presentation model of a search: chart, cluster
// summaries, data table, CSV export and reports.
package render

import (
	"math/rand/v2"
	"sort"

	"github.com/fairlabs/stms-dashboard/internal/models"
)

// Chart sampling parameters.
const (
	ChartSampleSize = 5000
	ChartSampleSeed = 1
)

// Sample returns n rows drawn without replacement using a PRNG seeded with
// seed, kept in their original order. When there are at most n rows all of
// them are returned. The result is always a new slice.
func Sample(rows []models.Article, n int, seed uint64) []models.Article {
	if n < 0 {
		n = 0
	}
	if len(rows) <= n {
		out := make([]models.Article, len(rows))
		copy(out, rows)
		return out
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	picked := rng.Perm(len(rows))[:n]
	sort.Ints(picked)

	out := make([]models.Article, 0, n)
	for _, i := range picked {
		out = append(out, rows[i])
	}
	return out
}
