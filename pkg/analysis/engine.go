package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/kusto-mcp/kusto-engine/pkg/apperrors"
	"github.com/kusto-mcp/kusto-engine/pkg/kusto"
)

const (
	topValueCount = 5
	maxChartHints = 8
)

// Engine computes reports over query results. All work is synchronous and
// in-memory; the engine holds no state between calls.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates an analysis engine.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger.Named("analysis")}
}

// Analyze computes the report of the requested kind. Results without rows
// yield ErrEmptyResult.
func (e *Engine) Analyze(result *kusto.QueryResult, kind Kind) (*Report, error) {
	if result == nil || len(result.Rows) == 0 {
		return nil, fmt.Errorf("%w: nothing to analyze", apperrors.ErrEmptyResult)
	}

	report := &Report{
		Kind:     kind,
		RowCount: len(result.Rows),
		Columns:  make(map[string]*ColumnMetrics, len(result.Columns)),
	}

	for i, col := range result.Columns {
		values := columnValues(result, i)
		if kind == KindPlotReady {
			report.Columns[col.Name] = classifyColumn(col.Class, values)
		} else {
			report.Columns[col.Name] = describeColumn(col.Class, values)
		}
	}

	switch kind {
	case KindStats:
		report.Correlation = correlationMatrix(result)
	case KindPlotReady:
		report.ChartHints = chartHints(result.Columns)
	}

	e.logger.Debug("analysis complete",
		zap.String("kind", string(kind)),
		zap.Int("rows", report.RowCount),
		zap.Int("columns", len(report.Columns)))
	return report, nil
}

func columnValues(result *kusto.QueryResult, idx int) []kusto.Value {
	values := make([]kusto.Value, 0, len(result.Rows))
	for _, row := range result.Rows {
		if idx < len(row) {
			values = append(values, row[idx])
		} else {
			values = append(values, kusto.NullValue())
		}
	}
	return values
}

func classifyColumn(class kusto.ColumnClass, values []kusto.Value) *ColumnMetrics {
	m := &ColumnMetrics{Class: class}
	for _, v := range values {
		if v.IsNull() {
			m.Nulls++
		} else {
			m.Count++
		}
	}
	return m
}

func describeColumn(class kusto.ColumnClass, values []kusto.Value) *ColumnMetrics {
	switch class {
	case kusto.ClassNumeric:
		return describeNumeric(values)
	case kusto.ClassCategorical, kusto.ClassBoolean:
		return describeCategorical(class, values)
	case kusto.ClassTemporal:
		return describeTemporal(values)
	default:
		return classifyColumn(class, values)
	}
}

func describeNumeric(values []kusto.Value) *ColumnMetrics {
	m := &ColumnMetrics{Class: kusto.ClassNumeric}
	xs := make([]float64, 0, len(values))
	distinct := make(map[float64]struct{})
	for _, v := range values {
		if v.IsNull() {
			m.Nulls++
			continue
		}
		x, ok := v.AsFloat()
		if !ok {
			m.NonNumeric++
			continue
		}
		xs = append(xs, x)
		distinct[x] = struct{}{}
	}
	m.Count = len(xs)
	m.Distinct = len(distinct)
	if len(xs) == 0 {
		return m
	}

	minV, maxV := xs[0], xs[0]
	for _, x := range xs[1:] {
		minV = math.Min(minV, x)
		maxV = math.Max(maxV, x)
	}
	mean := stat.Mean(xs, nil)
	m.Min, m.Max, m.Mean = &minV, &maxV, &mean

	// Sample standard deviation needs at least two observations.
	if len(xs) >= 2 {
		sd := stat.StdDev(xs, nil)
		m.StdDev = &sd
	}
	return m
}

func describeCategorical(class kusto.ColumnClass, values []kusto.Value) *ColumnMetrics {
	m := &ColumnMetrics{Class: class}
	freq := make(map[string]int)
	for _, v := range values {
		if v.IsNull() {
			m.Nulls++
			continue
		}
		m.Count++
		freq[v.Display()]++
	}
	m.Distinct = len(freq)
	m.TopValues = topValues(freq)
	return m
}

// topValues ranks by frequency, breaking ties on the value itself so the
// ranking is deterministic.
func topValues(freq map[string]int) []ValueCount {
	if len(freq) == 0 {
		return nil
	}
	ranked := make([]ValueCount, 0, len(freq))
	for v, n := range freq {
		ranked = append(ranked, ValueCount{Value: v, Count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Value < ranked[j].Value
	})
	if len(ranked) > topValueCount {
		ranked = ranked[:topValueCount]
	}
	return ranked
}

func describeTemporal(values []kusto.Value) *ColumnMetrics {
	m := &ColumnMetrics{Class: kusto.ClassTemporal}
	var minT, maxT time.Time
	for _, v := range values {
		if v.IsNull() {
			m.Nulls++
			continue
		}
		m.Count++
		if v.Kind != kusto.KindTime {
			continue
		}
		if minT.IsZero() || v.Time.Before(minT) {
			minT = v.Time
		}
		if maxT.IsZero() || v.Time.After(maxT) {
			maxT = v.Time
		}
	}
	if !minT.IsZero() {
		m.MinTime, m.MaxTime = &minT, &maxT
		m.Span = maxT.Sub(minT).String()
	}
	return m
}

// correlationMatrix builds the Pearson matrix over numeric columns. Fewer
// than two numeric columns yields an empty matrix.
func correlationMatrix(result *kusto.QueryResult) *CorrelationMatrix {
	var names []string
	var cols [][]kusto.Value
	for i, col := range result.Columns {
		if col.Class == kusto.ClassNumeric {
			names = append(names, col.Name)
			cols = append(cols, columnValues(result, i))
		}
	}
	if len(names) < 2 {
		return &CorrelationMatrix{Columns: []string{}, Values: [][]float64{}}
	}

	values := make([][]float64, len(cols))
	for i := range values {
		values[i] = make([]float64, len(cols))
	}
	for i := range cols {
		values[i][i] = diagonal(cols[i])
		for j := i + 1; j < len(cols); j++ {
			r := pairwiseCorrelation(cols[i], cols[j])
			values[i][j] = r
			values[j][i] = r
		}
	}
	return &CorrelationMatrix{Columns: names, Values: values}
}

// diagonal is 1 for a column with spread and 0 for a constant or
// near-empty column, matching what the pairwise formula degenerates to.
func diagonal(col []kusto.Value) float64 {
	xs := make([]float64, 0, len(col))
	for _, v := range col {
		if x, ok := v.AsFloat(); ok {
			xs = append(xs, x)
		}
	}
	if len(xs) < 2 || stat.Variance(xs, nil) == 0 {
		return 0
	}
	return 1
}

// pairwiseCorrelation computes Pearson r over pairwise-complete rows: a
// row contributes only when both cells hold numbers. Degenerate pairs
// report 0.
func pairwiseCorrelation(a, b []kusto.Value) float64 {
	xs := make([]float64, 0, len(a))
	ys := make([]float64, 0, len(a))
	for i := range a {
		x, okx := a[i].AsFloat()
		y, oky := b[i].AsFloat()
		if okx && oky {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	if len(xs) < 2 {
		return 0
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// chartHints pairs a categorical or temporal axis with each numeric
// measure, then numeric pairs for scatter plots, capped at maxChartHints.
func chartHints(columns []kusto.ColumnSchema) []ChartHint {
	var numeric []string
	for _, col := range columns {
		if col.Class == kusto.ClassNumeric {
			numeric = append(numeric, col.Name)
		}
	}

	var hints []ChartHint
	add := func(h ChartHint) bool {
		if len(hints) >= maxChartHints {
			return false
		}
		hints = append(hints, h)
		return true
	}

	for _, col := range columns {
		var chartType string
		switch col.Class {
		case kusto.ClassCategorical:
			chartType = "bar"
		case kusto.ClassTemporal:
			chartType = "line"
		default:
			continue
		}
		for _, n := range numeric {
			if !add(ChartHint{Columns: []string{col.Name, n}, ChartType: chartType}) {
				return hints
			}
		}
	}

	for i := 0; i < len(numeric); i++ {
		for j := i + 1; j < len(numeric); j++ {
			if !add(ChartHint{Columns: []string{numeric[i], numeric[j]}, ChartType: "scatter"}) {
				return hints
			}
		}
	}
	return hints
}
