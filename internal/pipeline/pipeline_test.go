package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"dwetl/internal/extract"
	"dwetl/internal/rules"
	"dwetl/internal/storage"
	_ "dwetl/internal/storage/sqlite"
)

func writeCSV(tb testing.TB, body string) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "source.csv")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		tb.Fatalf("write csv: %v", err)
	}
	return path
}

func openDB(tb testing.TB, path string) *sql.DB {
	tb.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		tb.Fatalf("open db: %v", err)
	}
	tb.Cleanup(func() { db.Close() })
	return db
}

func TestRunEndToEnd(t *testing.T) {
	src := writeCSV(t,
		"email,age,city,quantity,unit_price,amount\n"+
			"ada@example.com,36,lyon,2,10.5,0\n"+
			"ada@example.com,36,lyon,2,10.5,0\n"+ // duplicate
			"bob@example.com,203,nice,1,3,0\n"+ // age out of range
			"not-an-email,40,paris,3,2,0\n"+ // bad email
			"eve@example.com,29, nantes ,4,5,0\n")
	dbPath := filepath.Join(t.TempDir(), "out.db")

	p := &Pipeline{Logger: zaptest.NewLogger(t)}
	report, err := p.Run(context.Background(), RunRequest{
		Job:      "clients",
		Source:   src,
		Encoding: "utf-8",
		Rules: []rules.Rule{
			{Column: "email", Kind: rules.KindPattern, Pattern: `[^@]+@[^@]+\.[a-z]+`},
			{Column: "age", Kind: rules.KindRange, Min: 0, Max: 120},
		},
		Transforms: []rules.Transform{
			{Column: "city", Kind: rules.KindTrim},
			{Column: "city", Kind: rules.KindUppercase},
			{Column: "amount", Kind: rules.KindCalculate, Formula: "quantity * unit_price"},
		},
		Store:       storage.Config{Kind: "sqlite", DSN: dbPath},
		Table:       "clients",
		Policy:      storage.PolicyReplace,
		IndexColumn: "email",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.State != StateClosed {
		t.Fatalf("state=%v; want closed", report.State)
	}
	if report.RunID == "" {
		t.Fatal("empty run id")
	}
	want := Stats{Extracted: 5, Transformed: 2, Loaded: 2, Errors: 0}
	if report.Stats != want {
		t.Fatalf("stats=%+v; want %+v", report.Stats, want)
	}
	if report.Cleaning.DuplicatesRemoved != 1 {
		t.Fatalf("duplicates=%d; want 1", report.Cleaning.DuplicatesRemoved)
	}
	// One row removed per failing rule.
	if len(report.RuleResults) != 2 || report.RuleResults[0].Removed != 1 || report.RuleResults[1].Removed != 1 {
		t.Fatalf("rule results=%+v", report.RuleResults)
	}

	db := openDB(t, dbPath)
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM clients").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("loaded rows=%d; want 2", n)
	}

	// The calculate transform rewrote the formula target, and case and trim
	// both applied to city.
	var city string
	var amount float64
	err = db.QueryRow("SELECT city, amount FROM clients WHERE email = 'eve@example.com'").Scan(&city, &amount)
	if err != nil {
		t.Fatalf("select eve: %v", err)
	}
	if city != "NANTES" || amount != 20 {
		t.Fatalf("city=%q amount=%v; want NANTES, 20", city, amount)
	}

	// The post-load index exists.
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_clients_email'").Scan(&n); err != nil {
		t.Fatalf("check index: %v", err)
	}
	if n != 1 {
		t.Fatalf("index count=%d; want 1", n)
	}
}

func TestRunWithoutOptionalStages(t *testing.T) {
	src := writeCSV(t, "a,b\n1,x\n2,y\n")
	dbPath := filepath.Join(t.TempDir(), "out.db")

	p := &Pipeline{}
	report, err := p.Run(context.Background(), RunRequest{
		Job:    "plain",
		Source: src,
		Store:  storage.Config{Kind: "sqlite", DSN: dbPath},
		Table:  "t",
		Policy: storage.PolicyReplace,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Stats.Transformed != 0 {
		t.Fatalf("transformed=%d; want 0 when no transforms declared", report.Stats.Transformed)
	}
	if report.Stats.Loaded != 2 || len(report.RuleResults) != 0 {
		t.Fatalf("report=%+v", report)
	}
}

func TestRunSourceNotFound(t *testing.T) {
	p := &Pipeline{}
	report, err := p.Run(context.Background(), RunRequest{
		Job:    "missing",
		Source: filepath.Join(t.TempDir(), "absent.csv"),
		Store:  storage.Config{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "out.db")},
		Table:  "t",
		Policy: storage.PolicyReplace,
	})
	var nf *extract.SourceNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err=%v; want SourceNotFoundError", err)
	}
	// The store is released and the run still ends closed.
	if report.State != StateClosed {
		t.Fatalf("state=%v; want closed", report.State)
	}
	if report.Stats.Errors != 1 {
		t.Fatalf("errors=%d; want 1", report.Stats.Errors)
	}
}

func TestRunUnknownBackend(t *testing.T) {
	p := &Pipeline{}
	report, err := p.Run(context.Background(), RunRequest{
		Job:   "nostore",
		Store: storage.Config{Kind: "bogus", DSN: "x"},
	})
	if err == nil {
		t.Fatal("want error for unknown backend")
	}
	if report.State != StateIdle {
		t.Fatalf("state=%v; want idle (never connected)", report.State)
	}
	if report.Stats.Errors != 1 {
		t.Fatalf("errors=%d; want 1", report.Stats.Errors)
	}
}

func TestRunBadRuleIsConfigurationError(t *testing.T) {
	src := writeCSV(t, "a\n1\n")
	p := &Pipeline{}
	report, err := p.Run(context.Background(), RunRequest{
		Job:    "badrule",
		Source: src,
		Rules:  []rules.Rule{{Column: "a", Kind: "median"}},
		Store:  storage.Config{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "out.db")},
		Table:  "t",
		Policy: storage.PolicyReplace,
	})
	var ce *rules.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("err=%v; want ConfigurationError", err)
	}
	if report.State != StateClosed {
		t.Fatalf("state=%v; want closed", report.State)
	}
	if report.Stats.Errors != 1 {
		t.Fatalf("errors=%d; want 1", report.Stats.Errors)
	}
}

func TestRunWriteFailureClosesStore(t *testing.T) {
	src := writeCSV(t, "a\n1\n")
	dbPath := filepath.Join(t.TempDir(), "out.db")

	p := &Pipeline{}
	// First run creates the table, second uses the fail policy.
	if _, err := p.Run(context.Background(), RunRequest{
		Job:    "first",
		Source: src,
		Store:  storage.Config{Kind: "sqlite", DSN: dbPath},
		Table:  "t",
		Policy: storage.PolicyReplace,
	}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	report, err := p.Run(context.Background(), RunRequest{
		Job:    "second",
		Source: src,
		Store:  storage.Config{Kind: "sqlite", DSN: dbPath},
		Table:  "t",
		Policy: storage.PolicyFail,
	})
	var we *storage.WriteError
	if !errors.As(err, &we) {
		t.Fatalf("err=%v; want WriteError", err)
	}
	if report.State != StateClosed {
		t.Fatalf("state=%v; want closed", report.State)
	}
	if report.Stats.Loaded != 0 || report.Stats.Errors != 1 {
		t.Fatalf("stats=%+v", report.Stats)
	}
}
