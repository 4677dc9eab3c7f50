// Package pipeline chains vectorization and loading into one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecingest/internal/domain"
	"github.com/kailas-cloud/vecingest/internal/usecase/discovery"
	"github.com/kailas-cloud/vecingest/internal/usecase/load"
	"github.com/kailas-cloud/vecingest/internal/usecase/vectorize"
)

// Options describes one pipeline run.
type Options struct {
	SourceDir         string
	Database          string
	Collection        string
	Force             bool
	BatchSize         int // load batch size, 0 = load.DefaultBatchSize
	SkipExisting      bool
	SkipVectorization bool
	SkipDatabase      bool
}

// Report combines the results of the stages that ran. A nil stage was skipped.
type Report struct {
	Vectorize *vectorize.Result
	Load      *load.Result
	Elapsed   time.Duration
}

// OK reports whether no invoked stage counted failures.
func (r Report) OK() bool {
	if r.Vectorize != nil && !r.Vectorize.OK() {
		return false
	}
	if r.Load != nil && !r.Load.OK() {
		return false
	}
	return true
}

// Totals sums the statistics of the stages that ran.
func (r Report) Totals() domain.RunStatistics {
	var t domain.RunStatistics
	if r.Vectorize != nil {
		t.Add(r.Vectorize.Stats)
	}
	if r.Load != nil {
		t.Add(r.Load.Stats)
	}
	t.Elapsed = r.Elapsed
	return t
}

// Service runs the full pipeline.
type Service struct {
	deps   Dependencies
	logger *zap.Logger
}

// New creates a pipeline service.
func New(deps Dependencies, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{deps: deps, logger: logger}
}

// Run checks prerequisites, then vectorizes and loads unless either stage is skipped.
// A vectorization stage that counted failures ends the run before loading; the report
// then carries only the vectorization result and OK is false.
func (s *Service) Run(ctx context.Context, opts Options) (Report, error) {
	start := time.Now()
	var report Report

	if opts.BatchSize == 0 {
		opts.BatchSize = load.DefaultBatchSize
	}
	artifactDir := domain.ArtifactDir(opts.SourceDir)
	if err := s.checkPrerequisites(opts, artifactDir); err != nil {
		return report, err
	}

	if !opts.SkipVectorization {
		res, err := s.vectorize(ctx, opts.SourceDir)
		report.Vectorize = &res
		if err != nil {
			report.Elapsed = time.Since(start)
			return report, fmt.Errorf("vectorization stage: %w", err)
		}
		if !res.OK() {
			report.Elapsed = time.Since(start)
			s.logger.Error("Vectorization finished with failures, load stage not started",
				zap.Int("failed", res.Stats.Failed),
				zap.Int("total", res.Stats.Total),
			)
			return report, nil
		}
	} else {
		s.logger.Info("Vectorization skipped")
	}

	if !opts.SkipDatabase {
		res, err := s.load(ctx, load.Request{
			ArtifactDir:  artifactDir,
			Database:     opts.Database,
			Collection:   opts.Collection,
			BatchSize:    opts.BatchSize,
			Force:        opts.Force,
			SkipExisting: opts.SkipExisting,
		})
		report.Load = &res
		if err != nil {
			report.Elapsed = time.Since(start)
			return report, fmt.Errorf("load stage: %w", err)
		}
	} else {
		s.logger.Info("Loading skipped")
	}

	report.Elapsed = time.Since(start)
	s.logger.Info("Pipeline finished",
		zap.Bool("ok", report.OK()),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

func (s *Service) checkPrerequisites(opts Options, artifactDir string) error {
	if opts.SourceDir == "" {
		return fmt.Errorf("source directory is required: %w", domain.ErrConfiguration)
	}
	info, err := os.Stat(opts.SourceDir)
	if err != nil {
		return fmt.Errorf("source directory %s: %w: %w", opts.SourceDir, domain.ErrFilesystem, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory: %w", opts.SourceDir, domain.ErrFilesystem)
	}

	if !opts.SkipDatabase {
		if err := errors.Join(
			domain.ValidateName("database", opts.Database),
			domain.ValidateName("collection", opts.Collection),
		); err != nil {
			return err
		}
	}

	if opts.SkipVectorization {
		paths, err := discovery.ListArtifacts(artifactDir)
		if err != nil && !errors.Is(err, domain.ErrFilesystem) {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("vectorization skipped but %s holds no artifacts: %w",
				artifactDir, domain.ErrConfiguration)
		}
	}
	return nil
}

func (s *Service) vectorize(ctx context.Context, sourceDir string) (vectorize.Result, error) {
	v, release, err := s.deps.NewVectorizer(ctx)
	if err != nil {
		return vectorize.Result{}, fmt.Errorf("build vectorizer: %w", err)
	}
	if release != nil {
		defer release()
	}

	s.logger.Info("Vectorization stage started", zap.String("source_dir", sourceDir))
	return v.Run(ctx, sourceDir)
}

func (s *Service) load(ctx context.Context, req load.Request) (load.Result, error) {
	l, release, err := s.deps.NewLoader(ctx)
	if err != nil {
		return load.Result{}, fmt.Errorf("build loader: %w", err)
	}
	if release != nil {
		defer release()
	}

	s.logger.Info("Load stage started",
		zap.String("artifact_dir", req.ArtifactDir),
		zap.String("database", req.Database),
		zap.String("collection", req.Collection),
	)
	return l.Run(ctx, req)
}
