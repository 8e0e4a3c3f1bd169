// Package postgres implements a Postgres-backed storage.Repository using pgx
// v5. Loads go through the COPY protocol, which is the fast path for bulk
// inserts on Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dwetl/internal/dataset"
	"dwetl/internal/storage"
)

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
}

// Open connects a pgx pool with the given DSN.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// Close releases the pool.
func (r *Repository) Close() { r.pool.Close() }

// WriteTable creates the destination per policy and COPYs every row of ds in
// order, returning the count written. All failures come back as
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
		var reg *string
		err := r.pool.QueryRow(ctx, "SELECT to_regclass($1)::text", table).Scan(&reg)
		if err != nil {
			return 0, &storage.WriteError{Table: table, Err: fmt.Errorf("check table: %w", err)}
		}
		if reg != nil {
			return 0, &storage.WriteError{Table: table, Err: fmt.Errorf("table already exists")}
		}
	}
	if policy == storage.PolicyReplace {
		if _, err := r.pool.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return 0, &storage.WriteError{Table: table, Err: fmt.Errorf("drop: %w", err)}
		}
	}
	if _, err := r.pool.Exec(ctx, createStmt(ds, table)); err != nil {
		return 0, &storage.WriteError{Table: table, Err: fmt.Errorf("create: %w", err)}
	}

	rows := make([][]any, 0, ds.RowCount())
	for row := 0; row < ds.RowCount(); row++ {
		vals := make([]any, len(cols))
		for i, c := range cols {
			cell, err := ds.Get(row, c)
			if err != nil {
				return 0, &storage.WriteError{Table: table, Err: err}
			}
			vals[i] = storage.BindValue(cell)
		}
		rows = append(rows, vals)
	}

	written, err := r.pool.CopyFrom(ctx, pgx.Identifier{table}, cols, pgx.CopyFromRows(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return written, &storage.WriteError{Table: table,
				Err: fmt.Errorf("copy: %s (%s)", pgErr.Detail, pgErr.SQLState())}
		}
		return written, &storage.WriteError{Table: table, Err: fmt.Errorf("copy: %w", err)}
	}
	return written, nil
}

// EnsureIndex creates a single-column index if it does not exist. Errors are
// returned for the caller to log; index failures never fail a load.
func (r *Repository) EnsureIndex(ctx context.Context, table, column string) error {
	if err := storage.CheckIdents(table, []string{column}); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		storage.IndexName(table, column), table, column))
	if err != nil {
		return fmt.Errorf("postgres: create index on %s(%s): %w", table, column, err)
	}
	return nil
}

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
		return "BIGINT"
	case storage.AffinityReal:
		return "DOUBLE PRECISION"
	case storage.AffinityDate:
		return "DATE"
	default:
		return "TEXT"
	}
}
