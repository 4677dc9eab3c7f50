// Package load bulk-inserts vector artifacts into a freshly provisioned collection.
package load

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecingest/internal/domain"
	"github.com/kailas-cloud/vecingest/internal/metrics"
	"github.com/kailas-cloud/vecingest/internal/pace"
	"github.com/kailas-cloud/vecingest/internal/usecase/discovery"
)

const (
	// DefaultBatchSize is the number of vectors per insert call.
	DefaultBatchSize = 100
	// DefaultDelay is the pause between consecutive insert calls.
	DefaultDelay = 200 * time.Millisecond
	// firstID is the ID assigned to the first inserted vector of a run.
	firstID int64 = 1
)

// Request describes one load run.
type Request struct {
	ArtifactDir  string
	Database     string
	Collection   string
	BatchSize    int
	Force        bool
	SkipExisting bool
}

// Result summarizes a load run.
type Result struct {
	Stats      domain.RunStatistics
	Batches    int
	LastID     int64
	Dimension  int
	Descriptor domain.CollectionDescriptor
}

// OK reports whether every artifact was inserted.
func (r Result) OK() bool { return r.Stats.OK() }

// Service runs the load stage.
type Service struct {
	store  VectorStore
	reader ArtifactReader
	delay  time.Duration
	index  domain.IndexParams
	logger *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithDelay sets the pause between insert calls.
func WithDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.delay = d
		}
	}
}

// WithIndexParams sets the HNSW parameters of created collections.
func WithIndexParams(p domain.IndexParams) Option {
	return func(s *Service) {
		if p.M > 0 {
			s.index.M = p.M
		}
		if p.EFConstruction > 0 {
			s.index.EFConstruction = p.EFConstruction
		}
	}
}

// New creates a load service.
func New(store VectorStore, reader ArtifactReader, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:  store,
		reader: reader,
		delay:  DefaultDelay,
		index:  domain.DefaultIndexParams(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run provisions the destination collection and inserts every artifact in req.ArtifactDir.
func (s *Service) Run(ctx context.Context, req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}

	start := time.Now()
	var res Result

	dbs, err := s.store.ListDatabases(ctx)
	if err != nil {
		return res, fmt.Errorf("vector store preflight: %w: %w", domain.ErrExternalService, err)
	}

	paths, err := discovery.ListArtifacts(req.ArtifactDir)
	if err != nil {
		return res, fmt.Errorf("list artifacts: %w", err)
	}
	if len(paths) == 0 {
		s.logger.Info("No artifacts to load", zap.String("artifact_dir", req.ArtifactDir))
		res.Stats.Elapsed = time.Since(start)
		return res, nil
	}

	first, err := s.reader.Read(paths[0])
	if err != nil {
		return res, fmt.Errorf("detect dimension from %s: %w: %w", paths[0], domain.ErrValidation, err)
	}
	res.Dimension = first.Dimension()

	res.Descriptor = domain.CollectionDescriptor{
		Database:   req.Database,
		Collection: req.Collection,
		Metric:     domain.DistanceCosine,
		Index:      s.index,
		Dimension:  res.Dimension,
	}
	if err := s.provision(ctx, dbs, res.Descriptor, req.Force); err != nil {
		return res, err
	}

	if req.SkipExisting {
		s.logger.Info("Skip-existing requested; destination lookups are not supported, every artifact is inserted")
	}

	res.Stats.Total = len(paths)
	batches := domain.Chunk(paths, req.BatchSize)
	nextID := firstID

	s.logger.Info("Starting load",
		zap.String("database", req.Database),
		zap.String("collection", req.Collection),
		zap.Int("artifacts", len(paths)),
		zap.Int("batches", len(batches)),
		zap.Int("dimension", res.Dimension),
	)

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			res.Stats.Elapsed = time.Since(start)
			return res, fmt.Errorf("load interrupted before batch %d: %w", i+1, err)
		}

		batchStart := time.Now()
		ok, failed, skipped, inserted := s.loadBatch(ctx, req, batch, nextID)
		batchDur := time.Since(batchStart)

		if inserted {
			res.Batches++
		}
		nextID += int64(ok)
		res.Stats.Succeeded += ok
		res.Stats.Failed += failed
		res.Stats.Skipped += skipped
		metrics.ObserveBatch(metrics.StageLoad, ok, failed, batchDur)
		metrics.ObserveSkipped(metrics.StageLoad, skipped)

		s.logger.Info("Batch done",
			zap.Int("batch", i+1),
			zap.Int("batches", len(batches)),
			zap.Int("inserted", ok),
			zap.Int("failed", failed),
			zap.Duration("duration", batchDur),
		)

		if i < len(batches)-1 {
			if err := pace.Sleep(ctx, s.delay); err != nil {
				res.Stats.Elapsed = time.Since(start)
				return res, fmt.Errorf("load interrupted after batch %d: %w", i+1, err)
			}
		}
	}

	res.LastID = nextID - 1
	res.Stats.Elapsed = time.Since(start)

	fields := []zap.Field{
		zap.Int("total", res.Stats.Total),
		zap.Int("succeeded", res.Stats.Succeeded),
		zap.Int("failed", res.Stats.Failed),
		zap.Int64("last_id", res.LastID),
		zap.Duration("elapsed", res.Stats.Elapsed),
	}
	if n, err := s.store.CountVectors(ctx, req.Database, req.Collection); err == nil {
		fields = append(fields, zap.Int("collection_size", n))
	} else {
		s.logger.Debug("Failed to count collection vectors", zap.Error(err))
	}
	s.logger.Info("Load finished", fields...)

	return res, nil
}

// loadBatch reads the artifacts of one batch and inserts them with consecutive IDs from nextID.
// A rejected insert counts every decoded vector of the batch as failed.
func (s *Service) loadBatch(
	ctx context.Context, req Request, paths []string, nextID int64,
) (ok, failed, skipped int, inserted bool) {
	vectors := make([]domain.VectorInsert, 0, len(paths))
	for _, path := range paths {
		rec, err := s.reader.Read(path)
		if err != nil {
			failed++
			s.logger.Warn("Skipping unreadable artifact",
				zap.String("artifact", path),
				zap.String("error_kind", domain.Kind(err)),
				zap.Error(err),
			)
			continue
		}
		if req.SkipExisting && s.exists(ctx, req, rec) {
			skipped++
			continue
		}
		id := nextID + int64(len(vectors))
		vectors = append(vectors, domain.VectorInsert{
			ID:       id,
			Vector:   rec.Vector,
			Metadata: map[string]string{"img_name": rec.Name},
		})
	}

	if len(vectors) == 0 {
		return 0, failed, skipped, false
	}

	ack, err := s.store.InsertVectors(ctx, req.Database, req.Collection, vectors)
	if err != nil {
		s.logger.Error("Insert rejected",
			zap.Int64("first_id", nextID),
			zap.Int("vectors", len(vectors)),
			zap.String("error_kind", domain.Kind(err)),
			zap.Error(err),
		)
		return 0, failed + len(vectors), skipped, true
	}
	return ack.Inserted, failed + len(vectors) - ack.Inserted, skipped, true
}

// exists reports whether rec is already stored in the destination.
// The store exposes no lookup by image name, so every record is treated as absent.
func (*Service) exists(context.Context, Request, domain.VectorRecord) bool {
	return false
}

// provision makes sure desc exists as an empty collection.
// dbs is the database listing taken by the preflight check.
func (s *Service) provision(ctx context.Context, dbs []string, desc domain.CollectionDescriptor, force bool) error {
	if !slices.Contains(dbs, desc.Database) {
		if err := s.store.CreateDatabase(ctx, desc.Database); err != nil {
			return fmt.Errorf("create database %s: %w", desc.Database, err)
		}
		s.logger.Info("Created database", zap.String("database", desc.Database))
	}

	colls, err := s.store.ListCollections(ctx, desc.Database)
	if err != nil {
		return fmt.Errorf("list collections: %w: %w", domain.ErrExternalService, err)
	}
	exists := slices.ContainsFunc(colls, func(c domain.CollectionInfo) bool { return c.Name == desc.Collection })

	if exists {
		if !force {
			return fmt.Errorf("collection %s/%s already exists (use force to replace it): %w",
				desc.Database, desc.Collection, domain.ErrConflict)
		}
		if err := s.store.DropCollection(ctx, desc.Database, desc.Collection); err != nil {
			return fmt.Errorf("drop collection %s: %w", desc.Collection, err)
		}
		s.logger.Info("Dropped existing collection",
			zap.String("database", desc.Database),
			zap.String("collection", desc.Collection),
		)
	}

	if err := s.store.CreateCollection(ctx, desc); err != nil {
		return fmt.Errorf("create collection %s: %w", desc.Collection, err)
	}
	s.logger.Info("Created collection",
		zap.String("database", desc.Database),
		zap.String("collection", desc.Collection),
		zap.Int("dimension", desc.Dimension),
		zap.String("metric", string(desc.Metric)),
		zap.Int("hnsw_m", desc.Index.M),
		zap.Int("hnsw_ef_construction", desc.Index.EFConstruction),
	)
	return nil
}

func validate(req Request) error {
	if err := domain.ValidateName("database", req.Database); err != nil {
		return err
	}
	if err := domain.ValidateName("collection", req.Collection); err != nil {
		return err
	}
	if req.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d: %w", req.BatchSize, domain.ErrConfiguration)
	}
	if req.ArtifactDir == "" {
		return fmt.Errorf("artifact directory is required: %w", domain.ErrConfiguration)
	}
	return nil
}
