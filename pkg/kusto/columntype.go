package kusto

import "strings"

// ColumnClass is the analysis-facing classification of a column's declared
// scalar type. Every declared type maps to exactly one class.
type ColumnClass string

const (
	ClassNumeric     ColumnClass = "numeric"
	ClassTemporal    ColumnClass = "temporal"
	ClassCategorical ColumnClass = "categorical"
	ClassBoolean     ColumnClass = "boolean"
	ClassOther       ColumnClass = "other"
)

// ClassifyColumnType maps a declared Kusto scalar type to its ColumnClass.
// Both CSL names (long, datetime) and CLR names as returned by the v1 REST
// API (Int64, System.DateTime) are accepted; unknown types classify as
// ClassOther, never an error.
//
// Timespans classify as numeric: a duration is a quantity, and aggregates
// over it (mean, min, max) are meaningful. The v1 API reports booleans with
// the CLR name SByte.
func ClassifyColumnType(declared string) ColumnClass {
	switch normalizeTypeName(declared) {
	case "int", "long", "real", "decimal", "double", "single", "float",
		"int8", "int16", "int32", "int64", "uint8", "uint16", "uint32", "uint64",
		"byte", "timespan":
		return ClassNumeric
	case "datetime", "date":
		return ClassTemporal
	case "string", "guid", "uniqueid":
		return ClassCategorical
	case "bool", "boolean", "sbyte":
		return ClassBoolean
	default:
		return ClassOther
	}
}

// normalizeTypeName lowercases a declared type and strips the System. prefix
// the v1 API uses for CLR names.
func normalizeTypeName(declared string) string {
	name := strings.ToLower(strings.TrimSpace(declared))
	return strings.TrimPrefix(name, "system.")
}
