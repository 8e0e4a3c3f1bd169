// Package dataset implements the in-memory tabular dataset that flows through
// the pipeline: ordered named columns over insertion-ordered rows, with one
// explicit value kind per cell.
//
// A Dataset is owned exclusively by a single pipeline run. None of its methods
// are safe for concurrent use; the pipeline is sequential by design and hosts
// driving multiple runs must give each run its own Dataset.
package dataset

import (
	"fmt"
	"sort"

	"github.com/zeebo/xxh3"
)

// ColumnNotFoundError reports access to a column the dataset does not have.
// The rule engines catch it and downgrade to a warning; it never crosses the
// pipeline boundary.
type ColumnNotFoundError struct {
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found", e.Column)
}

// Dataset is a rows-by-named-columns table. Column order is insertion-stable;
// row order is insertion-stable except where Filter removes rows.
type Dataset struct {
	cols        []string
	index       map[string]int
	rows        [][]Value
	categorical map[string]struct{}
}

// New creates an empty dataset with the given column set.
func New(columns []string) (*Dataset, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("dataset: at least one column required")
	}
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if c == "" {
			return nil, fmt.Errorf("dataset: empty column name at position %d", i)
		}
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("dataset: duplicate column %q", c)
		}
		index[c] = i
	}
	return &Dataset{
		cols:  append([]string(nil), columns...),
		index: index,
	}, nil
}

// Columns returns the column names in insertion order.
func (d *Dataset) Columns() []string {
	return append([]string(nil), d.cols...)
}

// HasColumn reports whether the dataset has the named column.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// RowCount returns the number of rows.
func (d *Dataset) RowCount() int { return len(d.rows) }

// AppendRow adds a row. The value slice length must match the column set.
func (d *Dataset) AppendRow(values []Value) error {
	if len(values) != len(d.cols) {
		return fmt.Errorf("dataset: row has %d values, want %d", len(values), len(d.cols))
	}
	d.rows = append(d.rows, append([]Value(nil), values...))
	return nil
}

// Get returns the cell at (row, column).
func (d *Dataset) Get(row int, column string) (Value, error) {
	i, ok := d.index[column]
	if !ok {
		return Value{}, &ColumnNotFoundError{Column: column}
	}
	if row < 0 || row >= len(d.rows) {
		return Value{}, fmt.Errorf("dataset: row %d out of range [0,%d)", row, len(d.rows))
	}
	return d.rows[row][i], nil
}

// Set replaces the cell at (row, column).
func (d *Dataset) Set(row int, column string, v Value) error {
	i, ok := d.index[column]
	if !ok {
		return &ColumnNotFoundError{Column: column}
	}
	if row < 0 || row >= len(d.rows) {
		return fmt.Errorf("dataset: row %d out of range [0,%d)", row, len(d.rows))
	}
	d.rows[row][i] = v
	return nil
}

// Filter returns a new dataset containing the rows for which keep returns
// true, in their original order. Rows are copied; the receiver is unchanged.
// Categorical marks carry over.
func (d *Dataset) Filter(keep func(row int) bool) *Dataset {
	out := &Dataset{
		cols:  append([]string(nil), d.cols...),
		index: d.index,
	}
	if len(d.categorical) > 0 {
		out.categorical = make(map[string]struct{}, len(d.categorical))
		for c := range d.categorical {
			out.categorical[c] = struct{}{}
		}
	}
	for r := range d.rows {
		if keep(r) {
			out.rows = append(out.rows, append([]Value(nil), d.rows[r]...))
		}
	}
	return out
}

// AddColumn appends a new column, filling each row from produce. Adding an
// existing column is an error.
func (d *Dataset) AddColumn(name string, produce func(row int) Value) error {
	if name == "" {
		return fmt.Errorf("dataset: empty column name")
	}
	if _, dup := d.index[name]; dup {
		return fmt.Errorf("dataset: column %q already exists", name)
	}
	// index map may be shared with a Filter parent; copy before extending.
	index := make(map[string]int, len(d.index)+1)
	for k, v := range d.index {
		index[k] = v
	}
	index[name] = len(d.cols)
	d.index = index
	d.cols = append(d.cols, name)
	for r := range d.rows {
		d.rows[r] = append(d.rows[r], produce(r))
	}
	return nil
}

// Fingerprint returns an xxh3 hash of the row's canonical encoding. Two rows
// with equal cells in every column hash identically; callers that need exact
// equality on collision should confirm with RowEqual.
func (d *Dataset) Fingerprint(row int) uint64 {
	b := make([]byte, 0, 64)
	for _, v := range d.rows[row] {
		b = v.appendCanonical(b)
		b = append(b, 0x1f)
	}
	return xxh3.Hash(b)
}

// RowEqual reports full-row equality between two rows.
func (d *Dataset) RowEqual(a, b int) bool {
	ra, rb := d.rows[a], d.rows[b]
	for i := range ra {
		if !ra[i].Equal(rb[i]) {
			return false
		}
	}
	return true
}

// MarkCategorical flags a column as a bounded label set. The flag is a
// serialization hint for downstream storage; cell values are unchanged.
func (d *Dataset) MarkCategorical(column string) error {
	if _, ok := d.index[column]; !ok {
		return &ColumnNotFoundError{Column: column}
	}
	if d.categorical == nil {
		d.categorical = make(map[string]struct{})
	}
	d.categorical[column] = struct{}{}
	return nil
}

// IsCategorical reports whether the column was marked categorical.
func (d *Dataset) IsCategorical(column string) bool {
	_, ok := d.categorical[column]
	return ok
}

// Labels returns the sorted distinct non-null string forms observed in a
// categorical column. For a column never marked categorical it returns nil.
func (d *Dataset) Labels(column string) []string {
	if !d.IsCategorical(column) {
		return nil
	}
	i := d.index[column]
	seen := make(map[string]struct{})
	for _, row := range d.rows {
		if row[i].IsNull() {
			continue
		}
		seen[row[i].Text()] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
