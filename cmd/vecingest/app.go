package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecingest/internal/config"
	"github.com/kailas-cloud/vecingest/internal/domain"
	logpkg "github.com/kailas-cloud/vecingest/internal/logger"
	"github.com/kailas-cloud/vecingest/internal/metrics"
	chiTransport "github.com/kailas-cloud/vecingest/internal/transport/chi"
	"github.com/kailas-cloud/vecingest/internal/version"
)

const shutdownTimeout = 5 * time.Second

// cliApp holds the process-wide state shared by every command.
type cliApp struct {
	stdout   io.Writer
	cfg      config.Config
	logger   *zap.Logger
	runID    string
	registry *prometheus.Registry
	server   *chiTransport.Server
	health   *liveHealth
}

func newCLI(stdout io.Writer) *cliApp {
	return &cliApp{
		stdout: stdout,
		logger: zap.NewNop(),
		health: &liveHealth{},
	}
}

func (a *cliApp) app() *cli.App {
	batchSizeFlag := &cli.IntFlag{
		Name:  "batch-size",
		Usage: "Items per batch (default from config)",
	}
	forceFlag := &cli.BoolFlag{
		Name:    "force",
		Aliases: []string{"f"},
		Usage:   "Drop and recreate the collection if it exists",
	}
	skipExistingFlag := &cli.BoolFlag{
		Name:  "skip-existing",
		Usage: "Skip vectors already present in the collection (not supported by the store; logged only)",
	}

	return &cli.App{
		Name:    "vecingest",
		Usage:   "Vectorize images and bulk-load the vectors into a vector store",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				EnvVars: []string{"VECINGEST_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve /metrics and /healthz on this address during the run",
			},
		},
		Before:         a.before,
		After:          a.after,
		OnUsageError:   onUsageError,
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			{
				Name:         "vectorize",
				Usage:        "Embed every image in a directory into <dir>/vector/<name>.json",
				ArgsUsage:    "<source_dir> [batch_size]",
				Action:       a.vectorizeCommand,
				OnUsageError: onUsageError,
				Flags:        []cli.Flag{batchSizeFlag},
			},
			{
				Name:         "load",
				Usage:        "Load vector artifacts into a collection",
				ArgsUsage:    "<artifact_dir> <database> <collection>",
				Action:       a.loadCommand,
				OnUsageError: onUsageError,
				Flags:        []cli.Flag{batchSizeFlag, forceFlag, skipExistingFlag},
			},
			{
				Name:         "run",
				Usage:        "Vectorize a directory and load the result",
				ArgsUsage:    "<source_dir> <database> <collection>",
				Action:       a.runCommand,
				OnUsageError: onUsageError,
				Flags: []cli.Flag{
					batchSizeFlag, forceFlag, skipExistingFlag,
					&cli.BoolFlag{Name: "skip-vectorization", Usage: "Load existing artifacts only"},
					&cli.BoolFlag{Name: "skip-database", Usage: "Vectorize only"},
				},
			},
			{
				Name:   "check",
				Usage:  "Check the embedding service and the vector store",
				Action: a.checkCommand,
			},
		},
	}
}

func onUsageError(_ *cli.Context, err error, _ bool) error {
	return newUsageError("%v", err)
}

// before loads configuration, builds the run logger and starts the metrics server.
func (a *cliApp) before(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Addr = c.String("metrics-addr")
	}
	a.cfg = cfg

	logger, err := logpkg.NewLogger(cfg.Env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w: %w", domain.ErrConfiguration, err)
	}
	a.runID = uuid.NewString()
	c.Context, a.logger = logpkg.WithRun(c.Context, logger, a.runID)

	summary := cfg.Summary()
	fields := []zap.Field{
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("build_date", version.Date),
	}
	for _, k := range config.SummaryKeys(summary) {
		fields = append(fields, zap.String(k, summary[k]))
	}
	a.logger.Info("Starting vecingest", fields...)

	a.registry = prometheus.NewRegistry()
	if err := metrics.Register(a.registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.Metrics.Addr != "" {
		a.server = chiTransport.NewServer(cfg.Metrics.Addr,
			chiTransport.NewRouter(a.registry, a.health, a.logger), a.logger)
		if err := a.server.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}
	return nil
}

func (a *cliApp) after(*cli.Context) error {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
	return nil
}
