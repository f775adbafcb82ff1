package kusto

// ColumnSchema describes one column: its name, the declared Kusto scalar
// type, and the class the analysis layer keys on. Description is populated
// by catalog lookups only; query results leave it empty.
type ColumnSchema struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Class       ColumnClass `json:"class"`
	Description string      `json:"description,omitempty"`
}

// TableSchema is the catalog view of one table.
type TableSchema struct {
	Table   string         `json:"table"`
	Columns []ColumnSchema `json:"columns"`
}

// QueryResult is the decoded primary result of one query or control command.
// TotalRowCount always reflects the full result set; Rows may be shortened
// by the truncation policy, in which case Truncated is set.
type QueryResult struct {
	Columns       []ColumnSchema `json:"columns"`
	Rows          [][]Value      `json:"rows"`
	TotalRowCount int            `json:"total_row_count"`
	Truncated     bool           `json:"truncated"`
}

// ColumnIndex returns the position of the named column, or -1 when absent.
func (r *QueryResult) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ColumnStrings flattens one string column into a slice, preserving row
// order. Cells that are not strings are skipped.
func (r *QueryResult) ColumnStrings(name string) []string {
	idx := r.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		if idx < len(row) && row[idx].Kind == KindString {
			out = append(out, row[idx].String)
		}
	}
	return out
}
