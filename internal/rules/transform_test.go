package rules

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"dwetl/internal/dataset"
)

func applyTransforms(tb testing.TB, ds *dataset.Dataset, ts []Transform) {
	tb.Helper()
	if err := NewTransformer(ts, "", nil).Apply(ds); err != nil {
		tb.Fatalf("Apply: %v", err)
	}
}

func TestUppercaseIdempotentAndCoercing(t *testing.T) {
	ds := buildDS(t, []string{"name"}, [][]dataset.Value{
		{dataset.String("ada")},
		{dataset.Int(7)}, // coerced to "7"
		{dataset.Null()}, // untouched
	})
	ts := []Transform{{Column: "name", Kind: KindUppercase}}

	applyTransforms(t, ds, ts)
	once := []string{}
	for row := 0; row < ds.RowCount(); row++ {
		cell, _ := ds.Get(row, "name")
		once = append(once, cell.Text())
	}

	applyTransforms(t, ds, ts)
	for row := 0; row < ds.RowCount(); row++ {
		cell, _ := ds.Get(row, "name")
		if cell.Text() != once[row] {
			t.Fatalf("row %d not idempotent: %q vs %q", row, cell.Text(), once[row])
		}
	}

	if once[0] != "ADA" || once[1] != "7" {
		t.Fatalf("folded values=%v", once)
	}
	null, _ := ds.Get(2, "name")
	if !null.IsNull() {
		t.Fatalf("null cell rewritten to %v", null)
	}
	if ds.RowCount() != 3 {
		t.Fatalf("transformation dropped rows: %d", ds.RowCount())
	}
}

func TestLowercaseAndTrim(t *testing.T) {
	ds := buildDS(t, []string{"email", "city"}, [][]dataset.Value{
		{dataset.String("Ada.L@Mail.COM"), dataset.String("  Lyon  ")},
	})
	applyTransforms(t, ds, []Transform{
		{Column: "email", Kind: KindLowercase},
		{Column: "city", Kind: KindTrim},
	})
	email, _ := ds.Get(0, "email")
	city, _ := ds.Get(0, "city")
	if email.Text() != "ada.l@mail.com" {
		t.Fatalf("email=%q", email.Text())
	}
	if city.Text() != "Lyon" {
		t.Fatalf("city=%q", city.Text())
	}
}

func TestDateTransformCoercesFailuresToNull(t *testing.T) {
	ds := buildDS(t, []string{"signup"}, [][]dataset.Value{
		{dataset.String("2024-03-01")},
		{dataset.String("not a date")},
		{dataset.Null()},
	})
	applyTransforms(t, ds, []Transform{{Column: "signup", Kind: KindDate}})

	good, _ := ds.Get(0, "signup")
	tm, ok := good.AsTime()
	if !ok || !tm.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("parsed date=%v ok=%v", tm, ok)
	}
	bad, _ := ds.Get(1, "signup")
	if !bad.IsNull() {
		t.Fatalf("unparseable date should be null, got %v", bad)
	}
	if ds.RowCount() != 3 {
		t.Fatalf("date transform dropped rows: %d", ds.RowCount())
	}
}

func TestDateTransformCustomLayout(t *testing.T) {
	ds := buildDS(t, []string{"d"}, [][]dataset.Value{{dataset.String("09.11.2025")}})
	applyTransforms(t, ds, []Transform{{Column: "d", Kind: KindDate, Layout: "02.01.2006"}})
	cell, _ := ds.Get(0, "d")
	if cell.Text() != "2025-11-09" {
		t.Fatalf("parsed=%q; want 2025-11-09", cell.Text())
	}
}

func TestCategoryMarksColumnOnly(t *testing.T) {
	ds := buildDS(t, []string{"status"}, [][]dataset.Value{
		{dataset.String("Active")},
		{dataset.String("Premium")},
		{dataset.String("Active")},
	})
	applyTransforms(t, ds, []Transform{{Column: "status", Kind: KindCategory}})
	if !ds.IsCategorical("status") {
		t.Fatal("status not marked categorical")
	}
	cell, _ := ds.Get(0, "status")
	if cell.Text() != "Active" {
		t.Fatalf("category transform changed value to %q", cell.Text())
	}
	if labels := ds.Labels("status"); len(labels) != 2 {
		t.Fatalf("labels=%v; want 2 distinct", labels)
	}
}

func TestCalculateFormula(t *testing.T) {
	ds := buildDS(t, []string{"price", "qty", "amount"}, [][]dataset.Value{
		{dataset.Int(10), dataset.Int(3), dataset.Null()},
		{dataset.Float(2.5), dataset.Int(4), dataset.Null()},
		{dataset.String("n/a"), dataset.Int(4), dataset.Null()},
	})
	applyTransforms(t, ds, []Transform{{Column: "amount", Kind: KindCalculate, Formula: "price * qty"}})

	first, _ := ds.Get(0, "amount")
	if f, _ := first.AsFloat(); f != 30 {
		t.Fatalf("amount[0]=%v; want 30", first)
	}
	second, _ := ds.Get(1, "amount")
	if f, _ := second.AsFloat(); f != 10 {
		t.Fatalf("amount[1]=%v; want 10", second)
	}
	third, _ := ds.Get(2, "amount")
	if !third.IsNull() {
		t.Fatalf("non-numeric operand should yield null, got %v", third)
	}
}

func TestTransformAbsentColumnWarnsAndSkips(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ds := buildDS(t, []string{"a"}, [][]dataset.Value{{dataset.String("x")}})
	if err := NewTransformer([]Transform{{Column: "nope", Kind: KindUppercase}}, "", zap.New(core)).Apply(ds); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	cell, _ := ds.Get(0, "a")
	if cell.Text() != "x" {
		t.Fatalf("dataset changed: %q", cell.Text())
	}
	if logs.Len() != 1 {
		t.Fatalf("warnings=%d; want 1", logs.Len())
	}
}

func TestUnknownTransformKind(t *testing.T) {
	ds := buildDS(t, []string{"a"}, [][]dataset.Value{{dataset.String("x")}})
	err := NewTransformer([]Transform{{Column: "a", Kind: "explode"}}, "", nil).Apply(ds)
	var cfg *ConfigurationError
	if !errors.As(err, &cfg) {
		t.Fatalf("err=%v; want ConfigurationError", err)
	}
}
