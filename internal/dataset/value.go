package dataset

import (
	"strconv"
	"time"
)

// Kind identifies the concrete type stored in a cell. Every cell carries
// exactly one Kind so rule predicates have a single deterministic semantics
// per type; there is no implicit coercion between kinds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindDate
)

// String returns the lowercase kind name used in logs and DDL inference.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

// DateLayout is the canonical string form of date cells.
const DateLayout = "2006-01-02"

// Value is a single cell. The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	t    time.Time
}

// Null returns the null cell.
func Null() Value { return Value{} }

// String returns a string cell.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int returns an integer cell.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a float cell.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Date returns a date cell. The time-of-day portion is dropped.
func Date(t time.Time) Value {
	return Value{kind: KindDate, t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// Kind reports the cell's kind.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the cell is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Text returns the canonical string form of the cell. Null renders as the
// empty string; dates render as DateLayout. This is the form used by pattern
// rules and by the coerce-to-string policy of the case/trim transforms.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindDate:
		return v.t.Format(DateLayout)
	default:
		return ""
	}
}

// AsFloat returns the numeric value of an integer or float cell. Every other
// kind (including dates and numeric-looking strings) reports false: range
// rules treat those as failing the predicate, not as an error.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// AsTime returns the date cell's time value.
func (v Value) AsTime() (time.Time, bool) {
	if v.kind != KindDate {
		return time.Time{}, false
	}
	return v.t, true
}

// Equal reports full equality: same kind and same value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == o.s
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindDate:
		return v.t.Equal(o.t)
	}
	return false
}

// appendCanonical writes a kind-prefixed canonical encoding of the cell,
// used for row fingerprints. The kind prefix keeps Int(1) and String("1")
// distinct.
func (v Value) appendCanonical(b []byte) []byte {
	b = append(b, byte(v.kind))
	b = append(b, v.Text()...)
	return b
}

// Infer maps a raw extracted field onto a typed cell: empty input is null,
// then integer, then float, otherwise string. Dates stay strings until a
// parse-as-date transform names their column.
func Infer(raw string) Value {
	if raw == "" {
		return Null()
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Float(f)
	}
	return String(raw)
}
