package rules

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"dwetl/internal/dataset"
)

// Transform kinds.
const (
	KindUppercase = "uppercase"
	KindLowercase = "lowercase"
	KindTrim      = "strip"
	KindDate      = "date"
	KindCategory  = "category"
	KindCalculate = "calculate"
)

// Transform is one column rewrite.
type Transform struct {
	Column string
	Kind   string

	// Layout overrides the engine's date layout for a KindDate transform.
	Layout string

	// Formula is the arithmetic expression for a KindCalculate transform.
	Formula string
}

// Transformer rewrites columns in place, one transform at a time, in
// declaration order. Transformation never drops rows.
type Transformer struct {
	transforms []Transform
	dateLayout string
	logger     *zap.Logger
}

// NewTransformer builds a Transformer. dateLayout is the default layout for
// date transforms that do not declare their own; empty means ISO 2006-01-02.
func NewTransformer(ts []Transform, dateLayout string, logger *zap.Logger) *Transformer {
	if dateLayout == "" {
		dateLayout = dataset.DateLayout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transformer{transforms: ts, dateLayout: dateLayout, logger: logger}
}

// Apply runs every transform in order, mutating ds. An empty transform set is
// a no-op. Unknown transform kinds abort with a ConfigurationError; absent
// target columns warn and skip.
func (t *Transformer) Apply(ds *dataset.Dataset) error {
	for _, tr := range t.transforms {
		if !ds.HasColumn(tr.Column) {
			t.logger.Warn("transform targets unknown column; skipping",
				zap.String("column", tr.Column),
				zap.String("kind", tr.Kind))
			continue
		}
		if err := t.applyOne(ds, tr); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transformer) applyOne(ds *dataset.Dataset, tr Transform) error {
	n := ds.RowCount()

	switch tr.Kind {
	case KindUppercase, KindLowercase:
		fold := strings.ToUpper
		if tr.Kind == KindLowercase {
			fold = strings.ToLower
		}
		// Non-string cells are coerced to their canonical string form first;
		// nulls stay null.
		for row := 0; row < n; row++ {
			cell, _ := ds.Get(row, tr.Column)
			if cell.IsNull() {
				continue
			}
			_ = ds.Set(row, tr.Column, dataset.String(fold(cell.Text())))
		}

	case KindTrim:
		for row := 0; row < n; row++ {
			cell, _ := ds.Get(row, tr.Column)
			if cell.IsNull() {
				continue
			}
			_ = ds.Set(row, tr.Column, dataset.String(strings.TrimSpace(cell.Text())))
		}

	case KindDate:
		layout := tr.Layout
		if layout == "" {
			layout = t.dateLayout
		}
		for row := 0; row < n; row++ {
			cell, _ := ds.Get(row, tr.Column)
			if cell.IsNull() || cell.Kind() == dataset.KindDate {
				continue
			}
			parsed, err := time.Parse(layout, cell.Text())
			if err != nil {
				// Unparseable input becomes null, never a per-row error.
				_ = ds.Set(row, tr.Column, dataset.Null())
				continue
			}
			_ = ds.Set(row, tr.Column, dataset.Date(parsed))
		}

	case KindCategory:
		if err := ds.MarkCategorical(tr.Column); err != nil {
			return err
		}
		t.logger.Info("column marked categorical",
			zap.String("column", tr.Column),
			zap.Int("labels", len(ds.Labels(tr.Column))))

	case KindCalculate:
		f, err := ParseFormula(tr.Formula)
		if err != nil {
			return &ConfigurationError{Column: tr.Column, Kind: tr.Kind, Err: err}
		}
		for _, ref := range f.Columns() {
			if !ds.HasColumn(ref) {
				t.logger.Warn("formula references unknown column; skipping transform",
					zap.String("column", tr.Column),
					zap.String("reference", ref))
				return nil
			}
		}
		for row := 0; row < n; row++ {
			v, ok := f.Eval(func(col string) (float64, bool) {
				cell, err := ds.Get(row, col)
				if err != nil {
					return 0, false
				}
				return cell.AsFloat()
			})
			if !ok {
				_ = ds.Set(row, tr.Column, dataset.Null())
				continue
			}
			_ = ds.Set(row, tr.Column, dataset.Float(v))
		}

	default:
		return &ConfigurationError{Column: tr.Column, Kind: tr.Kind}
	}
	return nil
}
