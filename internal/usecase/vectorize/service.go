// Package vectorize converts source images into vector artifacts in paced concurrent batches.
package vectorize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecingest/internal/domain"
	dombatch "github.com/kailas-cloud/vecingest/internal/domain/batch"
	"github.com/kailas-cloud/vecingest/internal/metrics"
	"github.com/kailas-cloud/vecingest/internal/pace"
	"github.com/kailas-cloud/vecingest/internal/usecase/discovery"
)

const (
	// DefaultBatchSize is the number of images embedded concurrently.
	DefaultBatchSize = 10
	// MaxBatchSize is the largest accepted batch size.
	MaxBatchSize = 300
	// DefaultDelay is the pause between consecutive batches.
	DefaultDelay = 300 * time.Millisecond
)

// Result summarizes a vectorization run.
type Result struct {
	Stats             domain.RunStatistics
	Batches           int
	ArtifactDir       string
	RequestsPerSecond float64
}

// OK reports whether every attempted image produced an artifact.
func (r Result) OK() bool { return r.Stats.OK() }

// AvgPerImage is the mean wall time per attempted image.
func (r Result) AvgPerImage() time.Duration {
	attempted := r.Stats.Succeeded + r.Stats.Failed
	if attempted == 0 {
		return 0
	}
	return r.Stats.Elapsed / time.Duration(attempted)
}

// Service runs the vectorization stage.
type Service struct {
	embed     Embedder
	health    HealthChecker
	writer    ArtifactWriter
	batchSize int
	delay     time.Duration
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithBatchSize sets the number of images per batch. Run rejects values outside [1, MaxBatchSize].
func WithBatchSize(n int) Option {
	return func(s *Service) { s.batchSize = n }
}

// WithDelay sets the pause between batches.
func WithDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.delay = d
		}
	}
}

// New creates a vectorization service. health may be nil to skip the preflight check.
func New(embed Embedder, health HealthChecker, writer ArtifactWriter, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		embed:     embed,
		health:    health,
		writer:    writer,
		batchSize: DefaultBatchSize,
		delay:     DefaultDelay,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BatchSize returns the configured batch size.
func (s *Service) BatchSize() int { return s.batchSize }

// Run vectorizes every image in sourceDir that has no artifact yet.
// Item failures are counted in the result; only fatal conditions return an error.
func (s *Service) Run(ctx context.Context, sourceDir string) (Result, error) {
	if s.batchSize < 1 || s.batchSize > MaxBatchSize {
		return Result{}, fmt.Errorf("batch size %d out of range [1, %d]: %w",
			s.batchSize, MaxBatchSize, domain.ErrConfiguration)
	}

	start := time.Now()
	res := Result{ArtifactDir: domain.ArtifactDir(sourceDir)}

	if s.health != nil {
		if err := s.health.HealthCheck(ctx); err != nil {
			return res, fmt.Errorf("embedding service preflight: %w: %w", domain.ErrExternalService, err)
		}
	}

	assets, err := discovery.Discover(sourceDir)
	if err != nil {
		return res, fmt.Errorf("discover images: %w", err)
	}

	part, err := discovery.Partition(assets, res.ArtifactDir)
	if err != nil {
		return res, fmt.Errorf("partition images: %w", err)
	}
	if part.Created {
		s.logger.Info("Created artifact directory", zap.String("dir", res.ArtifactDir))
	}
	if len(assets) == 0 {
		s.logger.Info("No images found", zap.String("source_dir", sourceDir))
		res.Stats.Elapsed = time.Since(start)
		return res, nil
	}

	res.Stats.Total = len(assets)
	res.Stats.Skipped = len(part.Skipped)
	res.Stats.Failed = len(part.Conflicts)
	metrics.ObserveSkipped(metrics.StageVectorize, len(part.Skipped))
	for _, a := range part.Conflicts {
		s.logFailure(a, fmt.Errorf("artifact %s is already claimed by another image: %w",
			a.ArtifactName(), domain.ErrValidation))
	}

	batches := domain.Chunk(part.Unprocessed, s.batchSize)
	s.logger.Info("Starting vectorization",
		zap.String("source_dir", sourceDir),
		zap.Int("total", len(assets)),
		zap.Int("skipped", len(part.Skipped)),
		zap.Int("pending", len(part.Unprocessed)),
		zap.Int("conflicts", len(part.Conflicts)),
		zap.Int("batches", len(batches)),
		zap.Int("batch_size", s.batchSize),
	)

	pool, err := ants.NewPool(s.batchSize, ants.WithPanicHandler(func(p any) {
		s.logger.Error("Vectorization task panicked", zap.Any("panic", p))
	}))
	if err != nil {
		return res, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			res.Stats.Elapsed = time.Since(start)
			return res, fmt.Errorf("vectorization interrupted before batch %d: %w", i+1, err)
		}

		batchStart := time.Now()
		results := s.runBatch(ctx, pool, batch, res.ArtifactDir)
		batchDur := time.Since(batchStart)

		ok, failed := dombatch.Tally(results)
		res.Stats.Succeeded += ok
		res.Stats.Failed += failed
		res.Batches++
		metrics.ObserveBatch(metrics.StageVectorize, ok, failed, batchDur)

		s.logger.Info("Batch done",
			zap.Int("batch", i+1),
			zap.Int("batches", len(batches)),
			zap.Int("ok", ok),
			zap.Int("failed", failed),
			zap.Duration("duration", batchDur),
			zap.Duration("avg_per_image", batchDur/time.Duration(len(batch))),
		)

		if i < len(batches)-1 {
			if err := pace.Sleep(ctx, s.delay); err != nil {
				res.Stats.Elapsed = time.Since(start)
				return res, fmt.Errorf("vectorization interrupted after batch %d: %w", i+1, err)
			}
		}
	}

	res.Stats.Elapsed = time.Since(start)
	if secs := res.Stats.Elapsed.Seconds(); secs > 0 {
		res.RequestsPerSecond = float64(res.Stats.Succeeded+res.Stats.Failed) / secs
	}

	s.logger.Info("Vectorization finished",
		zap.Int("total", res.Stats.Total),
		zap.Int("skipped", res.Stats.Skipped),
		zap.Int("succeeded", res.Stats.Succeeded),
		zap.Int("failed", res.Stats.Failed),
		zap.Duration("elapsed", res.Stats.Elapsed),
		zap.Duration("avg_per_image", res.AvgPerImage()),
		zap.Float64("requests_per_second", res.RequestsPerSecond),
	)
	return res, nil
}

// runBatch embeds every asset concurrently and waits for all of them.
// Each task owns its result slot.
func (s *Service) runBatch(
	ctx context.Context, pool *ants.Pool, batch []domain.SourceAsset, outDir string,
) []dombatch.Result {
	results := make([]dombatch.Result, len(batch))
	var wg sync.WaitGroup

	for i, asset := range batch {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			results[i] = s.processOne(ctx, asset, outDir)
		})
		if err != nil {
			wg.Done()
			results[i] = dombatch.NewError(asset.FileName, fmt.Errorf("submit task: %w", err))
		}
	}

	wg.Wait()

	// A panicking task never fills its slot.
	for i := range results {
		if !results[i].Settled() {
			err := errors.New("vectorization task panicked")
			s.logFailure(batch[i], err)
			results[i] = dombatch.NewError(batch[i].FileName, err)
		}
	}
	return results
}

func (s *Service) processOne(ctx context.Context, asset domain.SourceAsset, outDir string) dombatch.Result {
	data, err := os.ReadFile(asset.Path)
	if err != nil {
		err = fmt.Errorf("read image: %w: %w", domain.ErrFilesystem, err)
		s.logFailure(asset, err)
		return dombatch.NewError(asset.FileName, err)
	}

	emb, err := s.embed.Embed(ctx, domain.Image{Name: asset.FileName, MIMEType: asset.MIMEType, Data: data})
	if err != nil {
		s.logFailure(asset, err)
		return dombatch.NewError(asset.FileName, err)
	}
	if len(emb.Embedding) == 0 {
		err = fmt.Errorf("empty embedding: %w", domain.ErrValidation)
		s.logFailure(asset, err)
		return dombatch.NewError(asset.FileName, err)
	}

	rec := domain.VectorRecord{Vector: emb.Embedding, Name: asset.FileName}
	path, err := s.writer.Write(outDir, asset.Stem, rec)
	if err != nil {
		s.logFailure(asset, err)
		return dombatch.NewError(asset.FileName, err)
	}

	s.logger.Debug("Image vectorized",
		zap.String("image", asset.FileName),
		zap.String("artifact", path),
		zap.Int("dimensions", len(emb.Embedding)),
	)
	return dombatch.NewOK(asset.FileName)
}

func (s *Service) logFailure(asset domain.SourceAsset, err error) {
	s.logger.Warn("Image vectorization failed",
		zap.String("image", asset.FileName),
		zap.String("error_kind", domain.Kind(err)),
		zap.Error(err),
	)
}
