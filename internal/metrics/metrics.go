// Package metrics is a small backend-agnostic layer for recording pipeline
// counters and stage timings.
//
// The package keeps a global pluggable Backend that defaults to a no-op, so
// the pipeline can call into it unconditionally. Concrete systems (Prometheus
// Pushgateway, Datadog) live in subpackages and are selected at startup; the
// core never imports them. This mirrors the registration pattern used by the
// storage factory.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface a metrics system has to satisfy.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveDuration records a stage duration observation.
	ObserveDuration(name string, value float64, labels Labels)
	// Flush pushes buffered metrics if the backend needs it (Pushgateway).
	Flush() error
}

// nopBackend keeps metrics optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveDuration(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                              { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the current one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStage measures one pipeline stage: a success/failure counter plus the
// stage duration. Stage names follow the pipeline states ("extract", "clean",
// "validate", "transform", "load").
func RecordStage(job, stage string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"job":    job,
		"stage":  stage,
		"status": status,
	}
	backend.IncCounter("pipeline_stage_total", 1, lbls)
	backend.ObserveDuration("pipeline_stage_duration_seconds", d.Seconds(), lbls)
}

// RecordRows increments a row-level counter for the given job and kind.
//
// Kinds mirror the run summary fields:
//   - "extracted"
//   - "duplicates_removed"
//   - "validation_removed"
//   - "transformed"
//   - "loaded"
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("pipeline_rows_total", float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordErrors bumps the run error counter.
func RecordErrors(job string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("pipeline_errors_total", float64(delta), Labels{
		"job": job,
	})
}
