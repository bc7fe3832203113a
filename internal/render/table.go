package render

import "github.com/fairlabs/stms-dashboard/internal/models"

// TableColumns are the data table columns; the result file's summary column is shown as body.
var TableColumns = []string{"cluster", "topic", "title", "body", "author", "published_date"}

// Table is the full, unsampled data view.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// DataTable projects every row of the result table onto TableColumns.
func DataTable(table *models.ResultTable) *Table {
	columns := make([]string, len(TableColumns))
	copy(columns, TableColumns)

	out := &Table{Columns: columns, Rows: make([][]string, 0, table.Len())}
	if table == nil {
		return out
	}
	for _, a := range table.Articles {
		out.Rows = append(out.Rows, []string{
			a.Cluster,
			a.Topic,
			a.Title,
			a.Summary,
			a.Author,
			a.PublishedDate,
		})
	}
	return out
}
