// Package clean implements the cleaning stage that runs before validation:
// exact-duplicate removal (keep-first) and a per-column null census. Nulls are
// reported only; dropping rows for nulls is the validation engine's job.
package clean

import (
	"go.uber.org/zap"

	"dwetl/internal/dataset"
)

// Result is the cleaning audit.
type Result struct {
	// DuplicatesRemoved counts rows dropped as exact duplicates of an
	// earlier row.
	DuplicatesRemoved int

	// NullCounts holds per-column null-cell counts for columns with at least
	// one null. Counting happens after deduplication.
	NullCounts map[string]int
}

// Clean deduplicates the dataset and reports null counts. A nil logger is
// replaced with a no-op.
func Clean(ds *dataset.Dataset, logger *zap.Logger) (*dataset.Dataset, Result) {
	if logger == nil {
		logger = zap.NewNop()
	}

	out, removed := Deduplicate(ds)
	if removed > 0 {
		logger.Info("duplicate rows removed", zap.Int("removed", removed))
	}

	nulls := NullCounts(out)
	if len(nulls) > 0 {
		fields := make([]zap.Field, 0, len(nulls))
		for col, n := range nulls {
			fields = append(fields, zap.Int(col, n))
		}
		logger.Info("null cells detected", fields...)
	}

	return out, Result{DuplicatesRemoved: removed, NullCounts: nulls}
}

// Deduplicate returns a dataset without rows that fully equal an earlier row,
// keeping the first occurrence and preserving order. Candidate duplicates are
// found via xxh3 row fingerprints and confirmed cell-by-cell, so a hash
// collision cannot drop a distinct row.
func Deduplicate(ds *dataset.Dataset) (*dataset.Dataset, int) {
	n := ds.RowCount()
	firstByHash := make(map[uint64][]int, n)
	keep := make([]bool, n)
	removed := 0

	for row := 0; row < n; row++ {
		h := ds.Fingerprint(row)
		dup := false
		for _, earlier := range firstByHash[h] {
			if ds.RowEqual(earlier, row) {
				dup = true
				break
			}
		}
		if dup {
			removed++
			continue
		}
		keep[row] = true
		firstByHash[h] = append(firstByHash[h], row)
	}

	if removed == 0 {
		return ds, 0
	}
	return ds.Filter(func(row int) bool { return keep[row] }), removed
}

// NullCounts returns per-column null-cell counts, omitting all-present columns.
func NullCounts(ds *dataset.Dataset) map[string]int {
	counts := make(map[string]int)
	for _, col := range ds.Columns() {
		for row := 0; row < ds.RowCount(); row++ {
			cell, _ := ds.Get(row, col)
			if cell.IsNull() {
				counts[col]++
			}
		}
	}
	return counts
}
