// Package config defines the JSON-serializable pipeline configuration and a
// static linter over it.
//
// A pipeline file declares the source, the ordered validation rules, the
// ordered transforms, and the storage destination:
//
//	{
//	  "job":    "clients",
//	  "source": { "kind": "file", "file": { "path": "data/clients.csv" }, "encoding": "utf-8" },
//	  "rules": [
//	    { "column": "email", "kind": "pattern", "pattern": "[^@]+@[^@]+\\.[a-z]+" },
//	    { "column": "age",   "kind": "range", "min": 0, "max": 120 }
//	  ],
//	  "transforms": [
//	    { "column": "city",   "kind": "uppercase" },
//	    { "column": "amount", "kind": "calculate", "formula": "quantity * unit_price" }
//	  ],
//	  "storage": { "kind": "sqlite", "dsn": "etl.db", "table": "clients", "on_conflict": "replace" }
//	}
//
// Decoding is plain encoding/json; the model stays additive and
// backwards-compatible.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"dwetl/internal/rules"
	"dwetl/internal/storage"
)

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job names the run for logging and metrics labeling.
	Job string `json:"job"`

	// Source describes where input data comes from.
	Source Source `json:"source"`

	// DateLayout is the default Go layout for date transforms that do not
	// declare their own. Empty means ISO "2006-01-02".
	DateLayout string `json:"date_layout"`

	// Rules lists the validation rules, applied in declaration order.
	Rules []RuleSpec `json:"rules"`

	// Transforms lists the column rewrites, applied in declaration order
	// after validation.
	Transforms []TransformSpec `json:"transforms"`

	// Storage describes where the cleaned dataset is written.
	Storage StorageSpec `json:"storage"`
}

// Source identifies the data source. Additional kinds can be added over time.
type Source struct {
	// Kind selects the source implementation. Current value: "file".
	Kind string `json:"kind"`

	// File carries options for the "file" source kind.
	File SourceFile `json:"file"`

	// Encoding names the character encoding of the source ("utf-8",
	// "latin-1", "windows-1252"). Empty means utf-8.
	Encoding string `json:"encoding"`
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	// Path is the local filesystem path to the input file.
	Path string `json:"path"`
}

// RuleSpec is the JSON form of one validation rule.
type RuleSpec struct {
	Column string `json:"column"`
	Kind   string `json:"kind"`

	// Min and Max bound a "range" rule, inclusive. A missing bound is open.
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`

	// Pattern is the regular expression for a "pattern" rule, matched
	// anchored at the start of the cell's string form.
	Pattern string `json:"pattern,omitempty"`
}

// TransformSpec is the JSON form of one column transform.
type TransformSpec struct {
	Column string `json:"column"`
	Kind   string `json:"kind"`

	// Layout overrides the pipeline date layout for a "date" transform.
	Layout string `json:"layout,omitempty"`

	// Formula is the arithmetic expression for a "calculate" transform.
	Formula string `json:"formula,omitempty"`
}

// StorageSpec selects and configures the destination backend.
type StorageSpec struct {
	// Kind selects the backend: "sqlite" or "postgres".
	Kind string `json:"kind"`

	// DSN is the backend connection string.
	DSN string `json:"dsn"`

	// Table is the destination table name.
	Table string `json:"table"`

	// OnConflict selects behavior when the table exists: "replace" (default),
	// "append", or "fail".
	OnConflict string `json:"on_conflict"`

	// IndexColumn optionally names a column to index after the load. Index
	// creation is best-effort and never fails a run.
	IndexColumn string `json:"index_column,omitempty"`
}

// Load reads and decodes a pipeline file.
func Load(path string) (*Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline config: %w", err)
	}
	var p Pipeline
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decode pipeline config %s: %w", path, err)
	}
	return &p, nil
}

// Policy resolves the configured conflict policy, defaulting to replace.
func (s StorageSpec) Policy() storage.ConflictPolicy {
	if s.OnConflict == "" {
		return storage.PolicyReplace
	}
	return storage.ConflictPolicy(s.OnConflict)
}

// ToRules converts the declared rule specs to engine rules, preserving order.
// Open range bounds become infinities so the inclusive check stays uniform.
func (p *Pipeline) ToRules() []rules.Rule {
	out := make([]rules.Rule, 0, len(p.Rules))
	for _, r := range p.Rules {
		rule := rules.Rule{
			Column:  r.Column,
			Kind:    r.Kind,
			Min:     math.Inf(-1),
			Max:     math.Inf(1),
			Pattern: r.Pattern,
		}
		if r.Min != nil {
			rule.Min = *r.Min
		}
		if r.Max != nil {
			rule.Max = *r.Max
		}
		out = append(out, rule)
	}
	return out
}

// ToTransforms converts the declared transform specs to engine transforms,
// preserving order.
func (p *Pipeline) ToTransforms() []rules.Transform {
	out := make([]rules.Transform, 0, len(p.Transforms))
	for _, t := range p.Transforms {
		out = append(out, rules.Transform{
			Column:  t.Column,
			Kind:    t.Kind,
			Layout:  t.Layout,
			Formula: t.Formula,
		})
	}
	return out
}
