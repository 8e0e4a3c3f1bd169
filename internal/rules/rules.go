// Package rules implements the rule-driven validate and transform engines at
// the center of the pipeline.
//
// Both engines take an ordered list of column-scoped rules and apply each rule
// to completion before the next begins; rule order equals declaration order.
// A rule naming a column the dataset does not have is downgraded to a single
// warning and skipped; it never fails a run. An unrecognized rule kind is a
// ConfigurationError reported when the rule is applied.
package rules

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"dwetl/internal/dataset"
)

// Validation rule kinds.
const (
	KindNotNull = "not_null"
	KindRange   = "range"
	KindPattern = "pattern"
)

// ConfigurationError reports a rule or transform descriptor whose kind is not
// recognized, or whose parameters cannot be compiled. It aborts the run.
type ConfigurationError struct {
	Column string
	Kind   string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rule %s on column %q: %v", e.Kind, e.Column, e.Err)
	}
	return fmt.Sprintf("unknown rule kind %q on column %q", e.Kind, e.Column)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Rule is one validation rule bound to a column.
type Rule struct {
	Column string
	Kind   string

	// Range bounds, inclusive. Used by KindRange.
	Min, Max float64

	// Pattern is the user regular expression. It is matched anchored at the
	// start of the cell's string form (pandas str.match semantics), not as a
	// full match.
	Pattern string
}

// RuleResult is the per-rule removal audit.
type RuleResult struct {
	Column  string
	Kind    string
	Removed int
	Skipped bool // column absent
}

// Validator applies an ordered rule set by intersection: a row survives only
// if it passes every rule whose column exists.
type Validator struct {
	rules  []Rule
	logger *zap.Logger
}

// NewValidator builds a Validator. A nil logger is replaced with a no-op.
func NewValidator(rs []Rule, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{rules: rs, logger: logger}
}

// Apply runs every rule in declaration order over the dataset and returns the
// surviving rows plus the per-rule audit. An empty rule set returns the input
// unchanged. Rules see the dataset as already filtered by earlier rules.
func (v *Validator) Apply(ds *dataset.Dataset) (*dataset.Dataset, []RuleResult, error) {
	if len(v.rules) == 0 {
		return ds, nil, nil
	}

	out := ds
	results := make([]RuleResult, 0, len(v.rules))
	for _, r := range v.rules {
		res := RuleResult{Column: r.Column, Kind: r.Kind}
		if !out.HasColumn(r.Column) {
			v.logger.Warn("validation rule targets unknown column; skipping",
				zap.String("column", r.Column),
				zap.String("kind", r.Kind))
			res.Skipped = true
			results = append(results, res)
			continue
		}

		keep, err := v.keepMask(out, r)
		if err != nil {
			return nil, results, err
		}

		before := out.RowCount()
		out = out.Filter(func(row int) bool { return keep[row] })
		res.Removed = before - out.RowCount()
		results = append(results, res)
		if res.Removed > 0 {
			v.logger.Info("validation rule removed rows",
				zap.String("column", r.Column),
				zap.String("kind", r.Kind),
				zap.Int("removed", res.Removed))
		}
	}
	return out, results, nil
}

// keepMask evaluates a single rule over the current dataset and returns one
// keep/drop decision per row.
func (v *Validator) keepMask(ds *dataset.Dataset, r Rule) ([]bool, error) {
	n := ds.RowCount()
	keep := make([]bool, n)

	switch r.Kind {
	case KindNotNull:
		for row := 0; row < n; row++ {
			cell, _ := ds.Get(row, r.Column)
			keep[row] = !cell.IsNull()
		}

	case KindRange:
		for row := 0; row < n; row++ {
			cell, _ := ds.Get(row, r.Column)
			f, ok := cell.AsFloat()
			// Non-numeric cells fail the predicate; they are not an error.
			keep[row] = ok && f >= r.Min && f <= r.Max
		}

	case KindPattern:
		re, err := regexp.Compile("^(?:" + r.Pattern + ")")
		if err != nil {
			return nil, &ConfigurationError{Column: r.Column, Kind: r.Kind, Err: err}
		}
		for row := 0; row < n; row++ {
			cell, _ := ds.Get(row, r.Column)
			keep[row] = re.MatchString(cell.Text())
		}

	default:
		return nil, &ConfigurationError{Column: r.Column, Kind: r.Kind}
	}
	return keep, nil
}

// TotalRemoved sums removals across an audit.
func TotalRemoved(results []RuleResult) int {
	total := 0
	for _, r := range results {
		total += r.Removed
	}
	return total
}
