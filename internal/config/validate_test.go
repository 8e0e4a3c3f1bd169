package config

import (
	"strings"
	"testing"
)

func floatPtr(f float64) *float64 { return &f }

// validPipeline returns a pipeline that lints clean; tests mutate one field
// at a time.
func validPipeline() Pipeline {
	return Pipeline{
		Job: "clients",
		Source: Source{
			Kind: "file",
			File: SourceFile{Path: "data/clients.csv"},
		},
		Rules: []RuleSpec{
			{Column: "email", Kind: "pattern", Pattern: `[^@]+@[^@]+`},
			{Column: "age", Kind: "range", Min: floatPtr(0), Max: floatPtr(120)},
		},
		Transforms: []TransformSpec{
			{Column: "city", Kind: "uppercase"},
			{Column: "amount", Kind: "calculate", Formula: "quantity * unit_price"},
		},
		Storage: StorageSpec{Kind: "sqlite", DSN: "etl.db", Table: "clients"},
	}
}

// findIssue returns the first issue whose path contains the fragment.
func findIssue(issues []Issue, pathFragment string) (Issue, bool) {
	for _, i := range issues {
		if strings.Contains(i.Path, pathFragment) {
			return i, true
		}
	}
	return Issue{}, false
}

func TestValidPipelineHasNoIssues(t *testing.T) {
	issues := ValidatePipeline(validPipeline())
	if len(issues) != 0 {
		t.Fatalf("issues=%v; want none", issues)
	}
}

func TestValidatePipelineErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Pipeline)
		path   string
	}{
		{
			name:   "empty job",
			mutate: func(p *Pipeline) { p.Job = "" },
			path:   "job",
		},
		{
			name:   "empty source kind",
			mutate: func(p *Pipeline) { p.Source.Kind = "" },
			path:   "source.kind",
		},
		{
			name:   "file source without path",
			mutate: func(p *Pipeline) { p.Source.File.Path = "" },
			path:   "source.file.path",
		},
		{
			name:   "rule without column",
			mutate: func(p *Pipeline) { p.Rules[0].Column = "" },
			path:   "rules[0].column",
		},
		{
			name:   "inverted range bounds",
			mutate: func(p *Pipeline) { p.Rules[1].Min = floatPtr(10); p.Rules[1].Max = floatPtr(1) },
			path:   "rules[1]",
		},
		{
			name:   "empty pattern",
			mutate: func(p *Pipeline) { p.Rules[0].Pattern = "" },
			path:   "rules[0].pattern",
		},
		{
			name:   "pattern does not compile",
			mutate: func(p *Pipeline) { p.Rules[0].Pattern = "[unclosed" },
			path:   "rules[0].pattern",
		},
		{
			name:   "calculate without formula",
			mutate: func(p *Pipeline) { p.Transforms[1].Formula = "" },
			path:   "transforms[1].formula",
		},
		{
			name:   "formula does not parse",
			mutate: func(p *Pipeline) { p.Transforms[1].Formula = "price ** 2" },
			path:   "transforms[1].formula",
		},
		{
			name:   "empty DSN",
			mutate: func(p *Pipeline) { p.Storage.DSN = "" },
			path:   "storage.dsn",
		},
		{
			name:   "empty table",
			mutate: func(p *Pipeline) { p.Storage.Table = "" },
			path:   "storage.table",
		},
		{
			name:   "bogus conflict policy",
			mutate: func(p *Pipeline) { p.Storage.OnConflict = "merge" },
			path:   "storage.on_conflict",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPipeline()
			tt.mutate(&p)
			issues := ValidatePipeline(p)
			iss, ok := findIssue(issues, tt.path)
			if !ok {
				t.Fatalf("no issue at %q; got %v", tt.path, issues)
			}
			if iss.Severity != SeverityError {
				t.Fatalf("issue at %q has severity %q; want error", tt.path, iss.Severity)
			}
			if !HasErrors(issues) {
				t.Fatal("HasErrors=false; want true")
			}
		})
	}
}

func TestValidatePipelineWarnings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Pipeline)
		path   string
	}{
		{
			name:   "unknown source kind",
			mutate: func(p *Pipeline) { p.Source.Kind = "s3" },
			path:   "source.kind",
		},
		{
			name:   "unknown rule kind",
			mutate: func(p *Pipeline) { p.Rules[0] = RuleSpec{Column: "email", Kind: "unique"} },
			path:   "rules[0].kind",
		},
		{
			name:   "unknown transform kind",
			mutate: func(p *Pipeline) { p.Transforms[0] = TransformSpec{Column: "city", Kind: "titlecase"} },
			path:   "transforms[0].kind",
		},
		{
			name:   "unknown storage kind",
			mutate: func(p *Pipeline) { p.Storage.Kind = "oracle" },
			path:   "storage.kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPipeline()
			tt.mutate(&p)
			issues := ValidatePipeline(p)
			iss, ok := findIssue(issues, tt.path)
			if !ok {
				t.Fatalf("no issue at %q; got %v", tt.path, issues)
			}
			if iss.Severity != SeverityWarning {
				t.Fatalf("issue at %q has severity %q; want warning", tt.path, iss.Severity)
			}
			if HasErrors(issues) {
				t.Fatalf("warnings only, but HasErrors=true: %v", issues)
			}
		})
	}
}
