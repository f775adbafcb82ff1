package kusto

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValueKind discriminates the representation held by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindNumber
	KindString
	KindTime
	KindBool
	KindOther
)

// Value is a single cell of a query result. Exactly one representation is
// meaningful, selected by Kind. KindOther carries dynamic values verbatim.
//
// Coercion preserves shape on failure: a cell that does not parse as its
// column's declared type keeps its raw representation instead of becoming
// null, so the analysis layer can count ill-typed cells separately.
type Value struct {
	Kind   ValueKind
	Number float64
	String string
	Time   time.Time
	Bool   bool
	Raw    any
}

func NullValue() Value            { return Value{Kind: KindNull} }
func NumberValue(f float64) Value { return Value{Kind: KindNumber, Number: f} }
func StringValue(s string) Value  { return Value{Kind: KindString, String: s} }
func TimeValue(t time.Time) Value { return Value{Kind: KindTime, Time: t} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func OtherValue(raw any) Value    { return Value{Kind: KindOther, Raw: raw} }

// IsNull reports whether the cell held no value.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// AsFloat returns the numeric representation when the cell holds one.
func (v Value) AsFloat() (float64, bool) {
	if v.Kind == KindNumber {
		return v.Number, true
	}
	return 0, false
}

// Display renders the cell as a stable string key, used for distinct and
// top-value counting. Null renders as the empty string.
func (v Value) Display() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case KindString:
		return v.String
	case KindTime:
		return v.Time.Format(time.RFC3339Nano)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindOther:
		data, err := json.Marshal(v.Raw)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return ""
	}
}

// MarshalJSON renders the natural JSON form of the cell. NaN and infinities
// have no JSON representation and render as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		if math.IsNaN(v.Number) || math.IsInf(v.Number, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.Number)
	case KindString:
		return json.Marshal(v.String)
	case KindTime:
		return json.Marshal(v.Time)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindOther:
		return json.Marshal(v.Raw)
	default:
		return []byte("null"), nil
	}
}

// coerceValue converts a JSON-decoded cell into a Value according to the
// column's declared type. The v1 API serializes decimals and timespans as
// strings and booleans sometimes as 0/1 integers.
func coerceValue(raw any, declaredType string) Value {
	if raw == nil {
		return NullValue()
	}

	typ := normalizeTypeName(declaredType)

	switch ClassifyColumnType(typ) {
	case ClassNumeric:
		switch cell := raw.(type) {
		case float64:
			return NumberValue(cell)
		case string:
			if typ == "timespan" {
				if seconds, ok := parseKustoTimespan(cell); ok {
					return NumberValue(seconds)
				}
				return StringValue(cell)
			}
			if f, err := strconv.ParseFloat(cell, 64); err == nil {
				return NumberValue(f)
			}
			return StringValue(cell)
		}
	case ClassTemporal:
		if cell, ok := raw.(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, cell); err == nil {
				return TimeValue(t)
			}
			return StringValue(cell)
		}
	case ClassBoolean:
		switch cell := raw.(type) {
		case bool:
			return BoolValue(cell)
		case float64:
			return BoolValue(cell != 0)
		case string:
			if b, err := strconv.ParseBool(cell); err == nil {
				return BoolValue(b)
			}
			return StringValue(cell)
		}
	}

	return coerceAny(raw)
}

// coerceAny converts a cell by its JSON shape alone.
func coerceAny(raw any) Value {
	switch cell := raw.(type) {
	case nil:
		return NullValue()
	case float64:
		return NumberValue(cell)
	case string:
		return StringValue(cell)
	case bool:
		return BoolValue(cell)
	default:
		return OtherValue(raw)
	}
}

// parseKustoTimespan parses the Kusto timespan wire format
// [-][d.]hh:mm:ss[.fffffff] into seconds.
func parseKustoTimespan(s string) (float64, bool) {
	rest := s
	neg := strings.HasPrefix(rest, "-")
	if neg {
		rest = rest[1:]
	}

	var days float64
	if dot := strings.Index(rest, "."); dot >= 0 {
		if colon := strings.Index(rest, ":"); colon > dot {
			d, err := strconv.Atoi(rest[:dot])
			if err != nil {
				return 0, false
			}
			days = float64(d)
			rest = rest[dot+1:]
		}
	}

	parts := strings.Split(rest, ":")
	if len(parts) != 3 {
		return 0, false
	}
	hours, err1 := strconv.Atoi(parts[0])
	minutes, err2 := strconv.Atoi(parts[1])
	seconds, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}

	total := days*86400 + float64(hours)*3600 + float64(minutes)*60 + seconds
	if neg {
		total = -total
	}
	return total, true
}
