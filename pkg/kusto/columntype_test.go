package kusto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyColumnType(t *testing.T) {
	tests := []struct {
		declared string
		expected ColumnClass
	}{
		{"long", ClassNumeric},
		{"int", ClassNumeric},
		{"real", ClassNumeric},
		{"decimal", ClassNumeric},
		{"timespan", ClassNumeric},
		{"Int64", ClassNumeric},
		{"System.Double", ClassNumeric},
		{"System.TimeSpan", ClassNumeric},
		{"datetime", ClassTemporal},
		{"date", ClassTemporal},
		{"System.DateTime", ClassTemporal},
		{"string", ClassCategorical},
		{"guid", ClassCategorical},
		{"System.String", ClassCategorical},
		{"System.Guid", ClassCategorical},
		{"bool", ClassBoolean},
		{"boolean", ClassBoolean},
		{"System.SByte", ClassBoolean},
		{"dynamic", ClassOther},
		{"System.Object", ClassOther},
		{"", ClassOther},
		{"vector", ClassOther},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ClassifyColumnType(tt.declared), "declared type %q", tt.declared)
	}
}

func TestClassifyColumnType_CaseAndWhitespace(t *testing.T) {
	assert.Equal(t, ClassNumeric, ClassifyColumnType("  LONG "))
	assert.Equal(t, ClassTemporal, ClassifyColumnType("DateTime"))
	assert.Equal(t, ClassBoolean, ClassifyColumnType("SBYTE"))
}
