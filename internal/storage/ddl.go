package storage

import (
	"fmt"
	"regexp"

	"dwetl/internal/dataset"
)

// identPattern is the allow-list for table and column identifiers used in
// schema-definition statements. Identifiers are never interpolated into SQL
// without passing this check; value-level inputs always go through parameter
// binding instead.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent reports whether name is a safe SQL identifier.
func ValidIdent(name string) bool {
	return identPattern.MatchString(name)
}

// CheckIdents validates the table name and every column name, returning a
// *WriteError for the first offender.
func CheckIdents(table string, columns []string) error {
	if !ValidIdent(table) {
		return &WriteError{Table: table, Err: fmt.Errorf("unsafe table identifier %q", table)}
	}
	for _, c := range columns {
		if !ValidIdent(c) {
			return &WriteError{Table: table, Err: fmt.Errorf("unsafe column identifier %q", c)}
		}
	}
	return nil
}

// ColumnAffinity is the backend-neutral column type derived from the cells
// actually present in a column.
type ColumnAffinity uint8

const (
	AffinityText ColumnAffinity = iota
	AffinityInteger
	AffinityReal
	AffinityDate
)

// InferAffinity scans a column's non-null cells and picks the narrowest
// affinity that holds them all. All-integer columns get integer affinity,
// numeric columns with any float get real, all-date columns get date, and
// anything else (or an empty column) falls back to text.
// Categorical marks do not change the affinity; labels are stored as text.
func InferAffinity(ds *dataset.Dataset, column string) ColumnAffinity {
	var (
		seen    bool
		allInt  = true
		numeric = true
		allDate = true
	)
	for row := 0; row < ds.RowCount(); row++ {
		cell, err := ds.Get(row, column)
		if err != nil || cell.IsNull() {
			continue
		}
		seen = true
		switch cell.Kind() {
		case dataset.KindInt:
			allDate = false
		case dataset.KindFloat:
			allInt = false
			allDate = false
		case dataset.KindDate:
			allInt = false
			numeric = false
		default:
			return AffinityText
		}
	}
	switch {
	case !seen:
		return AffinityText
	case numeric && allInt:
		return AffinityInteger
	case numeric:
		return AffinityReal
	case allDate:
		return AffinityDate
	default:
		return AffinityText
	}
}

// BindValue converts a cell to a driver-bindable value. Dates are stored in
// their canonical text form; nulls become SQL NULL.
func BindValue(v dataset.Value) any {
	switch v.Kind() {
	case dataset.KindNull:
		return nil
	case dataset.KindInt:
		f, _ := v.AsFloat()
		return int64(f)
	case dataset.KindFloat:
		f, _ := v.AsFloat()
		return f
	default:
		return v.Text()
	}
}

// IndexName builds the conventional index name for (table, column). Both
// parts must already be validated.
func IndexName(table, column string) string {
	return fmt.Sprintf("idx_%s_%s", table, column)
}
