// Command etl runs one pipeline described by a JSON config file: extract a
// CSV source, clean it, apply the declared validation rules and transforms,
// and load the result into the configured database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"dwetl/internal/config"
	"dwetl/internal/metrics"
	"dwetl/internal/metrics/datadog"
	"dwetl/internal/metrics/prompush"
	"dwetl/internal/pipeline"
	"dwetl/internal/storage"

	// Register all storage backends with the factory; the config selects one.
	_ "dwetl/internal/storage/all"
)

func main() {
	var (
		cfgPath        string
		metricsBackend string
		pushgatewayURL string
		statsdAddr     string
		validate       bool
	)
	flag.StringVar(&cfgPath, "config", "configs/pipelines/clients.json", "pipeline config JSON path")
	flag.StringVar(&metricsBackend, "metrics-backend", "none", "metrics backend: pushgateway, datadog, none")
	flag.StringVar(&pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&statsdAddr, "statsd-addr", "", "DogStatsD address (overrides env DD_AGENT_ADDR)")
	flag.BoolVar(&validate, "validate", false, "lint the configuration and exit")
	verbose := flag.Bool("v", false, "enable debug logs")
	flag.Parse()

	// Optional .env for DSNs and metrics endpoints; absence is fine.
	_ = godotenv.Load()

	logger := buildLogger(*verbose)
	defer logger.Sync()

	p, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	issues := config.ValidatePipeline(*p)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fatalf("configuration is invalid: %s", cfgPath)
	}
	if validate {
		fmt.Printf("configuration is valid: %s\n", cfgPath)
		return
	}

	setupMetrics(logger, metricsBackend, pushgatewayURL, statsdAddr, p.Job)
	defer func() {
		if err := metrics.Flush(); err != nil {
			logger.Warn("metrics flush failed", zap.Error(err))
		}
	}()

	pl := &pipeline.Pipeline{Logger: logger}
	start := time.Now()
	report, err := pl.Run(context.Background(), pipeline.RunRequest{
		Job:         p.Job,
		Source:      p.Source.File.Path,
		Encoding:    p.Source.Encoding,
		Rules:       p.ToRules(),
		Transforms:  p.ToTransforms(),
		DateLayout:  p.DateLayout,
		Store:       storage.Config{Kind: p.Storage.Kind, DSN: p.Storage.DSN},
		Table:       p.Storage.Table,
		Policy:      p.Storage.Policy(),
		IndexColumn: p.Storage.IndexColumn,
	})
	if err != nil {
		fatalf("run %s: %v", report.RunID, err)
	}

	fmt.Printf("run %s done in %s: extracted=%d transformed=%d loaded=%d\n",
		report.RunID, time.Since(start).Truncate(time.Millisecond),
		report.Stats.Extracted, report.Stats.Transformed, report.Stats.Loaded)
}

func buildLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		fatalf("build logger: %v", err)
	}
	return logger
}

// setupMetrics installs the selected backend: flag value, then environment,
// then a built-in default. Failures never abort the run; the no-op backend
// stays in place.
func setupMetrics(logger *zap.Logger, backend, pushgatewayURL, statsdAddr, job string) {
	switch backend {
	case "pushgateway":
		url := pushgatewayURL
		if url == "" {
			url = os.Getenv("PUSHGATEWAY_URL")
		}
		if url == "" {
			url = "http://localhost:9091"
		}
		b, err := prompush.NewBackend(job, url)
		if err != nil {
			logger.Warn("metrics backend unavailable; metrics disabled", zap.Error(err))
			return
		}
		metrics.SetBackend(b)
		logger.Info("metrics enabled", zap.String("backend", "pushgateway"), zap.String("url", url))

	case "datadog":
		addr := statsdAddr
		if addr == "" {
			addr = os.Getenv("DD_AGENT_ADDR")
		}
		if addr == "" {
			addr = "127.0.0.1:8125"
		}
		b, err := datadog.NewBackend(datadog.Config{Addr: addr, Namespace: "dwetl."})
		if err != nil {
			logger.Warn("metrics backend unavailable; metrics disabled", zap.Error(err))
			return
		}
		metrics.SetBackend(b)
		logger.Info("metrics enabled", zap.String("backend", "datadog"), zap.String("addr", addr))

	case "", "none":
		// no-op backend stays

	default:
		logger.Warn("unknown metrics backend; metrics disabled", zap.String("backend", backend))
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
