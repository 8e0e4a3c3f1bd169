package rules

import (
	"reflect"
	"testing"
)

func evalWith(tb testing.TB, src string, env map[string]float64) (float64, bool) {
	tb.Helper()
	f, err := ParseFormula(src)
	if err != nil {
		tb.Fatalf("ParseFormula(%q): %v", src, err)
	}
	return f.Eval(func(col string) (float64, bool) {
		v, ok := env[col]
		return v, ok
	})
}

func TestFormulaArithmetic(t *testing.T) {
	env := map[string]float64{"price": 10, "qty": 3, "discount": 0.5}
	cases := []struct {
		src  string
		want float64
	}{
		{"price * qty", 30},
		{"price + qty * 2", 16},           // precedence
		{"(price + qty) * 2", 26},         // parens
		{"price - qty - 1", 6},            // left assoc
		{"price / 4", 2.5},
		{"-qty + price", 7},               // unary minus
		{"price * (1 - discount)", 5},
		{"2", 2},                          // pure literal
	}
	for _, c := range cases {
		got, ok := evalWith(t, c.src, env)
		if !ok || got != c.want {
			t.Fatalf("%q = %v (ok=%v); want %v", c.src, got, ok, c.want)
		}
	}
}

func TestFormulaDivisionByZeroAndMissing(t *testing.T) {
	if _, ok := evalWith(t, "price / qty", map[string]float64{"price": 1, "qty": 0}); ok {
		t.Fatal("division by zero reported ok")
	}
	if _, ok := evalWith(t, "price * qty", map[string]float64{"price": 1}); ok {
		t.Fatal("missing column reported ok")
	}
}

func TestFormulaColumns(t *testing.T) {
	f, err := ParseFormula("b * (a + b) - 2")
	if err != nil {
		t.Fatalf("ParseFormula: %v", err)
	}
	if got := f.Columns(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("Columns=%v; want [a b]", got)
	}
}

func TestFormulaRejectsEverythingOutsideGrammar(t *testing.T) {
	bad := []string{
		"",
		"price *",
		"(price",
		"price ** qty",
		`__import__("os")`, // quotes are illegal characters
		"len(price)",       // no call syntax
		"price; qty",
		"a == b",
		"price.qty",
		"1 2",
	}
	for _, src := range bad {
		if _, err := ParseFormula(src); err == nil {
			t.Fatalf("ParseFormula(%q) accepted; want error", src)
		}
	}
}
