// Package pipeline implements the run orchestrator. A run walks a fixed,
// linear sequence of stages over one source file: connect the store, extract,
// clean, validate, transform, load, close. Validation and transformation only
// run when the request declares rules or transforms; every other stage always
// runs. The core is single-threaded: each stage finishes before the next
// starts and the dataset is handed from stage to stage by value.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dwetl/internal/clean"
	"dwetl/internal/dataset"
	"dwetl/internal/extract"
	"dwetl/internal/metrics"
	"dwetl/internal/rules"
	"dwetl/internal/storage"
)

// State is the orchestrator's position in the run sequence.
type State int

const (
	StateIdle State = iota
	StateConnected
	StateExtracted
	StateCleaned
	StateValidated
	StateTransformed
	StateLoaded
	StateClosed
)

var stateNames = map[State]string{
	StateIdle:        "idle",
	StateConnected:   "connected",
	StateExtracted:   "extracted",
	StateCleaned:     "cleaned",
	StateValidated:   "validated",
	StateTransformed: "transformed",
	StateLoaded:      "loaded",
	StateClosed:      "closed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Stats are the row counters of one run.
type Stats struct {
	// Extracted is the row count after extraction.
	Extracted int64
	// Transformed is the row count leaving the transform stage; it stays zero
	// when no transforms are declared.
	Transformed int64
	// Loaded is the row count written to storage.
	Loaded int64
	// Errors counts run-fatal failures; a run stops at the first one.
	Errors int64
}

// TableReader extracts a source file into a dataset.
type TableReader interface {
	ReadTable(path, encoding string) (*dataset.Dataset, error)
}

// RunRequest describes one pipeline run.
type RunRequest struct {
	// Job names the run for logs and metrics.
	Job string

	// Source is the input file path; Encoding its character encoding.
	Source   string
	Encoding string

	// Rules are the validation rules, in order. Empty skips validation.
	Rules []rules.Rule

	// Transforms are the column rewrites, in order. Empty skips the stage.
	Transforms []rules.Transform

	// DateLayout is the default layout for date transforms.
	DateLayout string

	// Store selects the destination backend; Table and Policy the write.
	Store  storage.Config
	Table  string
	Policy storage.ConflictPolicy

	// IndexColumn optionally names a column to index after the load.
	// Index creation is best-effort and never fails the run.
	IndexColumn string
}

// RunReport is the outcome of one run, produced on success and on failure.
type RunReport struct {
	RunID       string
	State       State
	Stats       Stats
	Cleaning    clean.Result
	RuleResults []rules.RuleResult
	Duration    time.Duration
}

// Pipeline orchestrates runs. The zero value is usable; Logger defaults to a
// no-op, Reader to a CSV extract.Reader, and Open to the storage factory.
type Pipeline struct {
	Logger *zap.Logger
	Reader TableReader
	Open   func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
}

// Run executes one request to completion. The report is valid on both paths;
// on failure it carries the state reached and the error counter. Exactly one
// summary line is logged per run.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (report RunReport, err error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reader := p.Reader
	if reader == nil {
		reader = &extract.Reader{Logger: logger}
	}
	open := p.Open
	if open == nil {
		open = storage.Open
	}

	report.RunID = uuid.NewString()
	report.State = StateIdle
	logger = logger.With(
		zap.String("run_id", report.RunID),
		zap.String("job", req.Job))

	started := time.Now()
	defer func() {
		report.Duration = time.Since(started)
		fields := []zap.Field{
			zap.Stringer("state", report.State),
			zap.Int64("extracted", report.Stats.Extracted),
			zap.Int64("transformed", report.Stats.Transformed),
			zap.Int64("loaded", report.Stats.Loaded),
			zap.Int64("errors", report.Stats.Errors),
			zap.Int("duplicates_removed", report.Cleaning.DuplicatesRemoved),
			zap.Int("validation_removed", rules.TotalRemoved(report.RuleResults)),
			zap.Duration("duration", report.Duration),
		}
		if err != nil {
			logger.Error("pipeline run failed", append(fields, zap.Error(err))...)
			return
		}
		logger.Info("pipeline run complete", fields...)
	}()

	fail := func(stage string, stageErr error, stageStart time.Time) (RunReport, error) {
		report.Stats.Errors++
		metrics.RecordStage(req.Job, stage, stageErr, time.Since(stageStart))
		metrics.RecordErrors(req.Job, 1)
		return report, stageErr
	}

	// Connect. The store is scoped to the run and released on every path.
	stageStart := time.Now()
	repo, openErr := open(ctx, req.Store)
	if openErr != nil {
		return fail("connect", openErr, stageStart)
	}
	defer func() {
		repo.Close()
		report.State = StateClosed
	}()
	report.State = StateConnected
	metrics.RecordStage(req.Job, "connect", nil, time.Since(stageStart))

	// Extract.
	stageStart = time.Now()
	ds, readErr := reader.ReadTable(req.Source, req.Encoding)
	if readErr != nil {
		return fail("extract", readErr, stageStart)
	}
	report.State = StateExtracted
	report.Stats.Extracted = int64(ds.RowCount())
	metrics.RecordStage(req.Job, "extract", nil, time.Since(stageStart))
	metrics.RecordRows(req.Job, "extracted", report.Stats.Extracted)
	logger.Info("extracted source",
		zap.String("source", req.Source),
		zap.Int64("rows", report.Stats.Extracted))

	// Clean. Always runs; never drops more than exact duplicates.
	stageStart = time.Now()
	ds, report.Cleaning = clean.Clean(ds, logger)
	report.State = StateCleaned
	metrics.RecordStage(req.Job, "clean", nil, time.Since(stageStart))
	metrics.RecordRows(req.Job, "duplicates_removed", int64(report.Cleaning.DuplicatesRemoved))

	// Validate, when rules are declared.
	if len(req.Rules) > 0 {
		stageStart = time.Now()
		validated, results, valErr := rules.NewValidator(req.Rules, logger).Apply(ds)
		report.RuleResults = results
		if valErr != nil {
			return fail("validate", valErr, stageStart)
		}
		ds = validated
		report.State = StateValidated
		metrics.RecordStage(req.Job, "validate", nil, time.Since(stageStart))
		metrics.RecordRows(req.Job, "validation_removed", int64(rules.TotalRemoved(results)))
	}

	// Transform, when transforms are declared.
	if len(req.Transforms) > 0 {
		stageStart = time.Now()
		trErr := rules.NewTransformer(req.Transforms, req.DateLayout, logger).Apply(ds)
		if trErr != nil {
			return fail("transform", trErr, stageStart)
		}
		report.State = StateTransformed
		report.Stats.Transformed = int64(ds.RowCount())
		metrics.RecordStage(req.Job, "transform", nil, time.Since(stageStart))
	}

	// Load.
	stageStart = time.Now()
	written, loadErr := repo.WriteTable(ctx, ds, req.Table, req.Policy)
	if loadErr != nil {
		return fail("load", loadErr, stageStart)
	}
	report.State = StateLoaded
	report.Stats.Loaded = written
	metrics.RecordStage(req.Job, "load", nil, time.Since(stageStart))
	metrics.RecordRows(req.Job, "loaded", written)

	// Post-load index, best-effort.
	if req.IndexColumn != "" {
		if idxErr := repo.EnsureIndex(ctx, req.Table, req.IndexColumn); idxErr != nil {
			logger.Warn("index creation failed; continuing",
				zap.String("table", req.Table),
				zap.String("column", req.IndexColumn),
				zap.Error(idxErr))
		}
	}

	return report, nil
}
