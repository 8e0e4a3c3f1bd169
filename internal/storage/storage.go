// Package storage contains storage-agnostic contracts for the load stage.
//
// Concrete backends live in subpackages (sqlite, postgres) and register
// themselves with the factory in this package via their init functions; the
// blank-import package storage/all pulls in every built backend. The pipeline
// depends only on Repository.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dwetl/internal/dataset"
)

// ConflictPolicy selects behavior when the destination table already exists.
type ConflictPolicy string

const (
	// PolicyReplace drops and recreates the table; after the load the table
	// holds exactly the loaded rows.
	PolicyReplace ConflictPolicy = "replace"
	// PolicyAppend keeps existing rows and adds the loaded ones.
	PolicyAppend ConflictPolicy = "append"
	// PolicyFail aborts the load when the table exists.
	PolicyFail ConflictPolicy = "fail"
)

// Valid reports whether p is a recognized policy.
func (p ConflictPolicy) Valid() bool {
	switch p {
	case PolicyReplace, PolicyAppend, PolicyFail:
		return true
	}
	return false
}

// WriteError reports a failed table write. Load failures are stage-fatal.
type WriteError struct {
	Table string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write table %q: %v", e.Table, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Config selects and configures a backend.
type Config struct {
	// Kind selects the backend implementation: "sqlite" or "postgres".
	Kind string `json:"kind"`

	// DSN is the backend connection string; for SQLite a file path or
	// ":memory:", for Postgres a pgx pool DSN.
	DSN string `json:"dsn"`
}

// Repository is the load collaborator the pipeline writes through.
//
// WriteTable creates or replaces the destination per policy and inserts the
// dataset, returning rows written; failures are *WriteError. EnsureIndex is
// best-effort: callers log its error as a warning and never fail the run on
// it. Close releases the underlying connection and is safe to call once per
// acquisition.
type Repository interface {
	WriteTable(ctx context.Context, ds *dataset.Dataset, table string, policy ConflictPolicy) (int64, error)
	EnsureIndex(ctx context.Context, table, column string) error
	Close()
}

// OpenFunc constructs a backend repository.
type OpenFunc func(ctx context.Context, cfg Config) (Repository, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]OpenFunc{}
)

// Register installs a backend constructor under kind. Backends call it from
// init; registering the same kind twice panics.
func Register(kind string, open OpenFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[kind]; dup {
		panic(fmt.Sprintf("storage: backend %q registered twice", kind))
	}
	registry[kind] = open
}

// Open constructs the backend selected by cfg.Kind.
func Open(ctx context.Context, cfg Config) (Repository, error) {
	registryMu.RLock()
	open, ok := registry[cfg.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown backend %q (registered: %v)", cfg.Kind, Kinds())
	}
	return open(ctx, cfg)
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
