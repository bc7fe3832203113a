package objectstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/fairlabs/stms-dashboard/internal/models"
)

// ErrMissingColumn is returned when the result file lacks a required column.
var ErrMissingColumn = errors.New("missing column")

var errNotFinite = errors.New("not a finite number")

// RequiredColumns lists the result file columns the dashboard reads.
var RequiredColumns = []string{
	"cluster", "topic", "title", "summary", "author", "published_date",
	"x", "y", "similarity", "kmeans_cluster",
}

// DecodeTable parses a result file: CSV with a header row. Columns not in
// RequiredColumns, such as a leading unnamed index, are ignored.
func DecodeTable(r io.Reader) (*models.ResultTable, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty result file: %w", ErrMissingColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%q: %w", col, ErrMissingColumn)
		}
	}

	table := &models.ResultTable{}
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row, err)
		}

		p := rowParser{record: record, index: index, row: row}
		article := models.Article{
			Cluster:       p.text("cluster"),
			Topic:         p.text("topic"),
			Title:         p.text("title"),
			Summary:       p.text("summary"),
			Author:        p.text("author"),
			PublishedDate: p.text("published_date"),
			X:             p.number("x"),
			Y:             p.number("y"),
			Similarity:    p.number("similarity"),
			KMeansCluster: p.text("kmeans_cluster"),
		}
		if p.err != nil {
			return nil, p.err
		}
		table.Articles = append(table.Articles, article)
	}

	return table, nil
}

type rowParser struct {
	record []string
	index  map[string]int
	row    int
	err    error
}

func (p *rowParser) text(col string) string {
	return p.record[p.index[col]]
}

func (p *rowParser) number(col string) float64 {
	if p.err != nil {
		return 0
	}
	raw := strings.TrimSpace(p.record[p.index[col]])
	v, err := strconv.ParseFloat(raw, 64)
	if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
		err = errNotFinite
	}
	if err != nil {
		p.err = fmt.Errorf("row %d column %q: %w", p.row, col, err)
		return 0
	}
	return v
}
