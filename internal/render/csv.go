package render

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Download metadata for the exported table.
const (
	DownloadFileName    = "FairLabsData.csv"
	DownloadContentType = "text/csv; charset=utf-8"
)

// EncodeCSV writes the header and every row of t as UTF-8 CSV.
func EncodeCSV(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, fmt.Errorf("write rows: %w", err)
	}
	return buf.Bytes(), nil
}
