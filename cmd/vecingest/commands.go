package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecingest/internal/domain"
	healthuc "github.com/kailas-cloud/vecingest/internal/usecase/health"
	"github.com/kailas-cloud/vecingest/internal/usecase/load"
	"github.com/kailas-cloud/vecingest/internal/usecase/pipeline"
	"github.com/kailas-cloud/vecingest/internal/usecase/vectorize"
)

func (a *cliApp) vectorizeCommand(c *cli.Context) error {
	src := c.Args().Get(0)
	if src == "" {
		return newUsageError("vectorize: <source_dir> is required")
	}
	if c.Args().Len() > 2 {
		return newUsageError("vectorize: too many arguments")
	}

	batchSize, err := a.vectorizeBatchSize(c, c.Args().Get(1))
	if err != nil {
		return err
	}

	v, release, err := a.newVectorizer(c.Context, batchSize)
	if err != nil {
		return err
	}
	defer release()

	res, err := v.Run(c.Context, src)
	a.printVectorize(&res)
	if err != nil {
		return fmt.Errorf("vectorize: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("vectorize: %d of %d images failed: %w",
			res.Stats.Failed, res.Stats.Total, errStageFailures)
	}
	return nil
}

func (a *cliApp) loadCommand(c *cli.Context) error {
	if c.Args().Len() != 3 {
		return newUsageError("load: expected <artifact_dir> <database> <collection>, got %d arguments", c.Args().Len())
	}

	l, release, err := a.newLoader(c.Context)
	if err != nil {
		return err
	}
	defer release()

	res, err := l.Run(c.Context, load.Request{
		ArtifactDir:  c.Args().Get(0),
		Database:     c.Args().Get(1),
		Collection:   c.Args().Get(2),
		BatchSize:    a.loadBatchSize(c),
		Force:        c.Bool("force"),
		SkipExisting: c.Bool("skip-existing"),
	})
	a.printLoad(&res)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("load: %d of %d vectors failed: %w",
			res.Stats.Failed, res.Stats.Total, errStageFailures)
	}
	return nil
}

func (a *cliApp) runCommand(c *cli.Context) error {
	skipDB := c.Bool("skip-database")
	switch {
	case c.Args().Len() == 0:
		return newUsageError("run: <source_dir> is required")
	case !skipDB && c.Args().Len() != 3:
		return newUsageError("run: expected <source_dir> <database> <collection>, got %d arguments", c.Args().Len())
	case c.Args().Len() > 3:
		return newUsageError("run: too many arguments")
	}

	svc := pipeline.New(pipeline.Dependencies{
		NewVectorizer: func(ctx context.Context) (pipeline.Vectorizer, func(), error) {
			return a.newVectorizer(ctx, a.cfg.Vectorize.BatchSize)
		},
		NewLoader: func(ctx context.Context) (pipeline.Loader, func(), error) {
			return a.newLoader(ctx)
		},
	}, a.logger)

	report, err := svc.Run(c.Context, pipeline.Options{
		SourceDir:         c.Args().Get(0),
		Database:          c.Args().Get(1),
		Collection:        c.Args().Get(2),
		Force:             c.Bool("force"),
		BatchSize:         a.loadBatchSize(c),
		SkipExisting:      c.Bool("skip-existing"),
		SkipVectorization: c.Bool("skip-vectorization"),
		SkipDatabase:      skipDB,
	})
	a.printVectorize(report.Vectorize)
	a.printLoad(report.Load)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	totals := report.Totals()
	_, _ = fmt.Fprintf(a.stdout, "total: items=%d succeeded=%d failed=%d elapsed=%s\n",
		totals.Total, totals.Succeeded, totals.Failed, totals.Elapsed.Round(time.Millisecond))
	if !report.OK() {
		if report.Load == nil && !c.Bool("skip-database") {
			_, _ = fmt.Fprintln(a.stdout, "load skipped: vectorization reported failures")
		}
		return fmt.Errorf("run: %w", errStageFailures)
	}
	return nil
}

func (a *cliApp) checkCommand(c *cli.Context) error {
	var (
		pinger  healthuc.StorePinger
		checker healthuc.EmbeddingChecker
		errs    = map[string]string{}
	)

	_, health, releaseEmb, err := a.buildEmbedder(c.Context)
	if err != nil {
		errs[healthuc.ComponentEmbedding] = err.Error()
	} else {
		defer releaseEmb()
		checker = health
	}

	store, err := a.openStore(c.Context)
	if err != nil {
		errs[healthuc.ComponentVectorStore] = err.Error()
	} else {
		defer store.Close()
		pinger = store
	}

	report := healthuc.New(pinger, checker).Check(c.Context)
	for k, v := range errs {
		report.Checks[k] = healthuc.CheckError
		report.Errors[k] = v
	}
	if len(errs) > 0 {
		report.Status = healthuc.Degraded
		if len(errs) == len(report.Checks) {
			report.Status = healthuc.Unhealthy
		}
	}

	names := make([]string, 0, len(report.Checks))
	for k := range report.Checks {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		line := fmt.Sprintf("%-13s %s", name, report.Checks[name])
		if msg := report.Errors[name]; msg != "" {
			line += "  " + msg
		}
		_, _ = fmt.Fprintln(a.stdout, line)
	}
	_, _ = fmt.Fprintf(a.stdout, "status: %s (%s)\n", report.Status, report.Elapsed.Round(time.Millisecond))

	a.logger.Info("Health check finished",
		zap.String("status", string(report.Status)),
		zap.Any("checks", report.Checks),
	)
	if report.Status != healthuc.Healthy {
		return fmt.Errorf("check: %s: %w", report.Status, errStageFailures)
	}
	return nil
}

// vectorizeBatchSize resolves the vectorization batch size from the positional argument,
// the --batch-size flag or the config, in that order.
func (a *cliApp) vectorizeBatchSize(c *cli.Context, arg string) (int, error) {
	n := a.cfg.Vectorize.BatchSize
	if c.IsSet("batch-size") {
		n = c.Int("batch-size")
	}
	if arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return 0, newUsageError("batch_size must be an integer, got %q", arg)
		}
		n = v
	}
	limit := min(a.cfg.Vectorize.MaxBatchSize, vectorize.MaxBatchSize)
	if n < 1 || n > limit {
		return 0, fmt.Errorf("batch size %d out of range [1, %d]: %w", n, limit, domain.ErrConfiguration)
	}
	return n, nil
}

func (a *cliApp) loadBatchSize(c *cli.Context) int {
	if c.IsSet("batch-size") {
		return c.Int("batch-size")
	}
	return a.cfg.Load.BatchSize
}
