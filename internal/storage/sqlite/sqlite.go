// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql. Loads run as batched INSERTs inside a single transaction;
// SQLite has no bulk-load API like Postgres COPY, but a transaction keeps
// performance acceptable for moderate volumes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo

	"dwetl/internal/dataset"
	"dwetl/internal/storage"
)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db *sql.DB
}

// Open connects to the SQLite database at dsn, which is a file path,
// ":memory:", or a full "file:..." URI.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// Fail fast on an invalid DSN.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close releases the underlying connection.
func (r *Repository) Close() { r.db.Close() }

// WriteTable creates the destination per policy and inserts every row of ds
// in order, returning the count written. All failures come back as
// *storage.WriteError.
func (r *Repository) WriteTable(ctx context.Context, ds *dataset.Dataset, table string, policy storage.ConflictPolicy) (int64, error) {
	cols := ds.Columns()
	if err := storage.CheckIdents(table, cols); err != nil {
		return 0, err
	}
	if !policy.Valid() {
		return 0, &storage.WriteError{Table: table, Err: fmt.Errorf("unknown conflict policy %q", policy)}
	}

	if policy == storage.PolicyFail {
		exists, err := r.tableExists(ctx, table)
		if err != nil {
			return 0, &storage.WriteError{Table: table, Err: err}
		}
		if exists {
			return 0, &storage.WriteError{Table: table, Err: fmt.Errorf("table already exists")}
		}
	}
	if policy == storage.PolicyReplace {
		if _, err := r.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return 0, &storage.WriteError{Table: table, Err: fmt.Errorf("drop: %w", err)}
		}
	}
	if _, err := r.db.ExecContext(ctx, createStmt(ds, table)); err != nil {
		return 0, &storage.WriteError{Table: table, Err: fmt.Errorf("create: %w", err)}
	}

	placeholders := strings.Repeat("?, ", len(cols))
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.TrimSuffix(placeholders, ", "))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &storage.WriteError{Table: table, Err: fmt.Errorf("begin tx: %w", err)}
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, &storage.WriteError{Table: table, Err: fmt.Errorf("prepare insert: %w", err)}
	}
	defer stmt.Close()

	var written int64
	args := make([]any, len(cols))
	for row := 0; row < ds.RowCount(); row++ {
		for i, c := range cols {
			cell, err := ds.Get(row, c)
			if err != nil {
				_ = tx.Rollback()
				return 0, &storage.WriteError{Table: table, Err: err}
			}
			args[i] = storage.BindValue(cell)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()
			return 0, &storage.WriteError{Table: table, Err: fmt.Errorf("insert row %d: %w", row, err)}
		}
		written++
	}
	if err := tx.Commit(); err != nil {
		return 0, &storage.WriteError{Table: table, Err: fmt.Errorf("commit: %w", err)}
	}
	return written, nil
}

// EnsureIndex creates a single-column index if it does not exist. Errors are
// returned for the caller to log; index failures never fail a load.
func (r *Repository) EnsureIndex(ctx context.Context, table, column string) error {
	if err := storage.CheckIdents(table, []string{column}); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		storage.IndexName(table, column), table, column))
	if err != nil {
		return fmt.Errorf("sqlite: create index on %s(%s): %w", table, column, err)
	}
	return nil
}

func (r *Repository) tableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table: %w", err)
	}
	return n > 0, nil
}

// createStmt builds CREATE TABLE IF NOT EXISTS DDL with column types derived
// from the cells present in each column. Identifiers are validated upstream.
func createStmt(ds *dataset.Dataset, table string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (", table)
	for i, c := range ds.Columns() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c)
		b.WriteByte(' ')
		b.WriteString(sqlType(storage.InferAffinity(ds, c)))
	}
	b.WriteByte(')')
	return b.String()
}

func sqlType(a storage.ColumnAffinity) string {
	switch a {
	case storage.AffinityInteger:
		return "INTEGER"
	case storage.AffinityReal:
		return "REAL"
	default:
		// Dates are stored in their canonical text form.
		return "TEXT"
	}
}
