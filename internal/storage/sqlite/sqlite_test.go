package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"dwetl/internal/dataset"
	"dwetl/internal/storage"
)

func openTestRepo(tb testing.TB) *Repository {
	tb.Helper()
	repo, err := Open(context.Background(), ":memory:")
	if err != nil {
		tb.Fatalf("Open: %v", err)
	}
	tb.Cleanup(repo.Close)
	return repo
}

func buildDS(tb testing.TB, cols []string, rows [][]dataset.Value) *dataset.Dataset {
	tb.Helper()
	ds, err := dataset.New(cols)
	if err != nil {
		tb.Fatalf("dataset.New: %v", err)
	}
	for _, r := range rows {
		if err := ds.AppendRow(r); err != nil {
			tb.Fatalf("AppendRow: %v", err)
		}
	}
	return ds
}

func countRows(tb testing.TB, db *sql.DB, table string) int {
	tb.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		tb.Fatalf("count %s: %v", table, err)
	}
	return n
}

func clientsDS(tb testing.TB) *dataset.Dataset {
	tb.Helper()
	return buildDS(tb, []string{"id", "name", "total"}, [][]dataset.Value{
		{dataset.Int(1), dataset.String("Ada"), dataset.Float(10.5)},
		{dataset.Int(2), dataset.String("Bob"), dataset.Null()},
	})
}

func TestWriteTableTypesAndNulls(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	n, err := repo.WriteTable(ctx, clientsDS(t), "clients", storage.PolicyReplace)
	if err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	if n != 2 {
		t.Fatalf("written=%d; want 2", n)
	}

	var (
		id    int64
		name  string
		total sql.NullFloat64
	)
	err = repo.db.QueryRow("SELECT id, name, total FROM clients WHERE id = 2").Scan(&id, &name, &total)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if name != "Bob" || total.Valid {
		t.Fatalf("got name=%q total=%v; want Bob, NULL", name, total)
	}

	// Declared column types follow the cells.
	var colType string
	err = repo.db.QueryRow(
		"SELECT type FROM pragma_table_info('clients') WHERE name = 'total'").Scan(&colType)
	if err != nil {
		t.Fatalf("table_info: %v", err)
	}
	if colType != "REAL" {
		t.Fatalf("total type=%s; want REAL", colType)
	}
}

func TestWriteTablePolicies(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if _, err := repo.WriteTable(ctx, clientsDS(t), "clients", storage.PolicyReplace); err != nil {
		t.Fatalf("first load: %v", err)
	}

	// Append accumulates.
	if _, err := repo.WriteTable(ctx, clientsDS(t), "clients", storage.PolicyAppend); err != nil {
		t.Fatalf("append: %v", err)
	}
	if n := countRows(t, repo.db, "clients"); n != 4 {
		t.Fatalf("after append rows=%d; want 4", n)
	}

	// Replace leaves exactly the loaded rows.
	if _, err := repo.WriteTable(ctx, clientsDS(t), "clients", storage.PolicyReplace); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if n := countRows(t, repo.db, "clients"); n != 2 {
		t.Fatalf("after replace rows=%d; want 2", n)
	}

	// Fail refuses to touch an existing table.
	_, err := repo.WriteTable(ctx, clientsDS(t), "clients", storage.PolicyFail)
	var we *storage.WriteError
	if !errors.As(err, &we) {
		t.Fatalf("fail policy err=%v; want WriteError", err)
	}
	if n := countRows(t, repo.db, "clients"); n != 2 {
		t.Fatalf("fail policy modified table: rows=%d", n)
	}

	// Fail succeeds on a fresh table.
	if _, err := repo.WriteTable(ctx, clientsDS(t), "clients_v2", storage.PolicyFail); err != nil {
		t.Fatalf("fail on fresh table: %v", err)
	}
}

func TestWriteTableRejectsUnsafeIdentifiers(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	bad := []string{"clients; DROP TABLE x", "1clients", "cli-ents", ""}
	for _, table := range bad {
		_, err := repo.WriteTable(ctx, clientsDS(t), table, storage.PolicyReplace)
		var we *storage.WriteError
		if !errors.As(err, &we) {
			t.Fatalf("table %q: err=%v; want WriteError", table, err)
		}
	}
}

func TestEnsureIndex(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if _, err := repo.WriteTable(ctx, clientsDS(t), "clients", storage.PolicyReplace); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	if err := repo.EnsureIndex(ctx, "clients", "id"); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	// Idempotent.
	if err := repo.EnsureIndex(ctx, "clients", "id"); err != nil {
		t.Fatalf("EnsureIndex twice: %v", err)
	}

	var n int
	err := repo.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_clients_id'").Scan(&n)
	if err != nil {
		t.Fatalf("check index: %v", err)
	}
	if n != 1 {
		t.Fatalf("index count=%d; want 1", n)
	}
}

func TestFactoryRegistration(t *testing.T) {
	repo, err := storage.Open(context.Background(), storage.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer repo.Close()

	ds := buildDS(t, []string{"a"}, [][]dataset.Value{{dataset.Int(1)}})
	if _, err := repo.WriteTable(context.Background(), ds, "t", storage.PolicyFail); err != nil {
		t.Fatalf("WriteTable through factory: %v", err)
	}
}
