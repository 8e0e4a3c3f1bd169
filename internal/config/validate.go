// Static linting of Pipeline values. The linter checks everything that can be
// decided without data: required fields, regexp and formula compilability,
// policy names. Callers decide whether warnings block execution.
package config

import (
	"fmt"
	"regexp"
	"strings"

	"dwetl/internal/rules"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that should be surfaced to users but
	// does not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single lint finding.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "rules[1].pattern"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error where convenient.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is error-severity.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline statically lints a Pipeline without mutating it. Unknown
// rule and transform kinds are warnings here; the engines reject them at
// apply time.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it names the run for logs and metrics",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateRules(p.Rules)...)
	issues = append(issues, validateTransforms(p.Transforms)...)
	issues = append(issues, validateStorage(p.Storage)...)

	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  "source.kind must not be empty",
		})
		return issues
	}

	// Unknown kinds are warnings for forward compatibility.
	if s.Kind != "file" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q; ensure a matching implementation exists", s.Kind),
		})
	}

	if s.Kind == "file" && strings.TrimSpace(s.File.Path) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.file.path",
			Message:  "file source requires a non-empty path",
		})
	}

	return issues
}

func validateRules(rs []RuleSpec) []Issue {
	var issues []Issue

	knownKinds := map[string]struct{}{
		rules.KindNotNull: {},
		rules.KindRange:   {},
		rules.KindPattern: {},
	}

	for i, r := range rs {
		if strings.TrimSpace(r.Column) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("rules[%d].column", i),
				Message:  "rule column must not be empty",
			})
		}
		if strings.TrimSpace(r.Kind) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("rules[%d].kind", i),
				Message:  "rule kind must not be empty",
			})
			continue
		}
		if _, ok := knownKinds[r.Kind]; !ok {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     fmt.Sprintf("rules[%d].kind", i),
				Message:  fmt.Sprintf("unknown rule kind %q; the validator will reject it at run time", r.Kind),
			})
			continue
		}

		switch r.Kind {
		case rules.KindRange:
			if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     fmt.Sprintf("rules[%d]", i),
					Message:  fmt.Sprintf("range min %v exceeds max %v; the rule would drop every row", *r.Min, *r.Max),
				})
			}
		case rules.KindPattern:
			if r.Pattern == "" {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     fmt.Sprintf("rules[%d].pattern", i),
					Message:  "pattern rule requires a non-empty pattern",
				})
			} else if _, err := regexp.Compile(r.Pattern); err != nil {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     fmt.Sprintf("rules[%d].pattern", i),
					Message:  fmt.Sprintf("pattern does not compile: %v", err),
				})
			}
		}
	}

	return issues
}

func validateTransforms(ts []TransformSpec) []Issue {
	var issues []Issue

	knownKinds := map[string]struct{}{
		rules.KindUppercase: {},
		rules.KindLowercase: {},
		rules.KindTrim:      {},
		rules.KindDate:      {},
		rules.KindCategory:  {},
		rules.KindCalculate: {},
	}

	for i, t := range ts {
		if strings.TrimSpace(t.Column) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("transforms[%d].column", i),
				Message:  "transform column must not be empty",
			})
		}
		if strings.TrimSpace(t.Kind) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("transforms[%d].kind", i),
				Message:  "transform kind must not be empty",
			})
			continue
		}
		if _, ok := knownKinds[t.Kind]; !ok {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     fmt.Sprintf("transforms[%d].kind", i),
				Message:  fmt.Sprintf("unknown transform kind %q; the engine will reject it at run time", t.Kind),
			})
			continue
		}

		if t.Kind == rules.KindCalculate {
			if t.Formula == "" {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     fmt.Sprintf("transforms[%d].formula", i),
					Message:  "calculate transform requires a formula",
				})
			} else if _, err := rules.ParseFormula(t.Formula); err != nil {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     fmt.Sprintf("transforms[%d].formula", i),
					Message:  fmt.Sprintf("formula does not parse: %v", err),
				})
			}
		}
	}

	return issues
}

func validateStorage(s StorageSpec) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
		return issues
	}

	known := map[string]struct{}{
		"sqlite":   {},
		"postgres": {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}

	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.dsn",
			Message:  "storage.dsn must not be empty",
		})
	}
	if strings.TrimSpace(s.Table) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.table",
			Message:  "storage.table must not be empty",
		})
	}
	if !s.Policy().Valid() {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.on_conflict",
			Message:  fmt.Sprintf("unknown conflict policy %q; use replace, append, or fail", s.OnConflict),
		})
	}

	return issues
}
