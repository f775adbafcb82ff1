// Package analysis computes statistical reports over in-memory query
// results: per-column descriptive metrics, cross-column correlation, and
// chart suggestions for plotting.
package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/kusto-mcp/kusto-engine/pkg/apperrors"
	"github.com/kusto-mcp/kusto-engine/pkg/kusto"
)

// Kind selects how much of the report to compute.
type Kind string

const (
	// KindSummary computes per-column descriptive metrics.
	KindSummary Kind = "summary"
	// KindStats adds a Pearson correlation matrix over numeric columns.
	KindStats Kind = "stats"
	// KindPlotReady classifies columns and suggests chart pairings.
	KindPlotReady Kind = "plot_ready"
)

// ParseKind maps user input to a Kind. Empty input means summary.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindSummary:
		return KindSummary, nil
	case KindStats:
		return KindStats, nil
	case KindPlotReady:
		return KindPlotReady, nil
	default:
		return "", fmt.Errorf("%w: unknown analysis type %q, expected summary, stats, or plot_ready", apperrors.ErrValidation, s)
	}
}

// Report is the outcome of analyzing one query result. Columns always
// holds an entry per result column, keyed by column name.
type Report struct {
	Kind        Kind                      `json:"analysis_type"`
	RowCount    int                       `json:"row_count"`
	Columns     map[string]*ColumnMetrics `json:"columns"`
	Correlation *CorrelationMatrix        `json:"correlation,omitempty"`
	ChartHints  []ChartHint               `json:"chart_hints,omitempty"`
}

// ColumnMetrics holds the metric set of one column. Which fields are
// populated depends on the column class: numeric columns carry the
// aggregate block, categorical and boolean columns carry value
// frequencies, temporal columns carry the time range.
//
// For numeric columns Count counts only the values that enter the
// aggregates; cells that are neither null nor numeric are excluded and
// reported in NonNumeric, so Count + Nulls + NonNumeric equals the row
// count.
type ColumnMetrics struct {
	Class      kusto.ColumnClass `json:"class"`
	Count      int               `json:"count"`
	Nulls      int               `json:"nulls"`
	NonNumeric int               `json:"non_numeric,omitempty"`
	Distinct   int               `json:"distinct,omitempty"`
	Min        *float64          `json:"min,omitempty"`
	Max        *float64          `json:"max,omitempty"`
	Mean       *float64          `json:"mean,omitempty"`
	StdDev     *float64          `json:"std_dev,omitempty"`
	TopValues  []ValueCount      `json:"top_values,omitempty"`
	MinTime    *time.Time        `json:"min_time,omitempty"`
	MaxTime    *time.Time        `json:"max_time,omitempty"`
	Span       string            `json:"span,omitempty"`
}

// ValueCount is one entry of a value-frequency ranking.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// CorrelationMatrix is a symmetric Pearson matrix over the numeric
// columns, in result column order. Values[i][j] pairs Columns[i] with
// Columns[j].
type CorrelationMatrix struct {
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"`
}

// ChartHint pairs columns with a chart type that suits their classes.
type ChartHint struct {
	Columns   []string `json:"columns"`
	ChartType string   `json:"chart_type"`
}
