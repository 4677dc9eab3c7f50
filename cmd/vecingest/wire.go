package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecingest/internal/artifact"
	"github.com/kailas-cloud/vecingest/internal/config"
	dbValkey "github.com/kailas-cloud/vecingest/internal/db/valkey"
	"github.com/kailas-cloud/vecingest/internal/domain"
	"github.com/kailas-cloud/vecingest/internal/metrics"
	"github.com/kailas-cloud/vecingest/internal/repository/embcache"
	"github.com/kailas-cloud/vecingest/internal/repository/vectorstore"
	"github.com/kailas-cloud/vecingest/internal/transport/ark"
	openaiEmb "github.com/kailas-cloud/vecingest/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/vecingest/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/vecingest/internal/usecase/health"
	"github.com/kailas-cloud/vecingest/internal/usecase/load"
	"github.com/kailas-cloud/vecingest/internal/usecase/vectorize"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// newVectorizer builds the vectorization service and its embedding chain.
func (a *cliApp) newVectorizer(ctx context.Context, batchSize int) (*vectorize.Service, func(), error) {
	emb, health, release, err := a.buildEmbedder(ctx)
	if err != nil {
		return nil, nil, err
	}
	a.health.setEmbedding(health)

	svc := vectorize.New(emb, health, artifact.NewStore(), a.logger,
		vectorize.WithBatchSize(batchSize),
		vectorize.WithDelay(ms(a.cfg.Vectorize.DelayMs)),
	)
	return svc, func() {
		a.health.setEmbedding(nil)
		release()
	}, nil
}

// newLoader connects to the vector store and builds the load service.
func (a *cliApp) newLoader(ctx context.Context) (*load.Service, func(), error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	a.health.setStore(store)

	repo := vectorstore.New(store, a.cfg.Database.KeyPrefix)
	svc := load.New(repo, artifact.NewStore(), a.logger,
		load.WithDelay(ms(a.cfg.Load.DelayMs)),
		load.WithIndexParams(domain.IndexParams{
			M:              a.cfg.Index.HNSWM,
			EFConstruction: a.cfg.Index.HNSWEFConstruct,
		}),
	)
	return svc, func() {
		a.health.setStore(nil)
		store.Close()
	}, nil
}

// buildEmbedder returns the decorated embedder, the raw provider for health checks
// and a release func for any connection opened on the way.
func (a *cliApp) buildEmbedder(ctx context.Context) (domain.Embedder, domain.HealthChecker, func(), error) {
	cfg := a.cfg.Embedding
	if err := a.cfg.ValidateEmbedding(); err != nil {
		return nil, nil, nil, err
	}

	var (
		base   domain.Embedder
		health domain.HealthChecker
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		e := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Provider:   cfg.Provider,
			Timeout:    ms(cfg.TimeoutMs),
			Logger:     a.logger,
		})
		base, health = e, e
	default:
		c, err := ark.NewClient(&ark.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    ms(cfg.TimeoutMs),
			MaxRetries: max(cfg.MaxRetries, 0),
			RetryDelay: ms(cfg.RetryDelayMs),
			Logger:     a.logger,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		base, health = c, c
	}

	release := func() {}
	emb := base
	if cfg.Cache {
		store, err := a.openStore(ctx)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("embedding cache: %w", err)
		}
		release = store.Close
		emb = embcache.New(base, store, cfg.Model, metrics.EmbeddingCacheTotal, a.logger,
			embcache.WithPrefix(a.cfg.Database.KeyPrefix+"emb_cache:"),
			embcache.WithTTL(time.Duration(cfg.CacheTTLSec)*time.Second))
	}

	a.logger.Info("Embedding provider configured",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Bool("cache", cfg.Cache),
	)
	return embeddinguc.NewInstrumentedEmbedder(emb, cfg.Provider, cfg.Model, cfg.Dimensions, a.logger),
		health, release, nil
}

// openStore connects to the vector store and waits until it answers.
func (a *cliApp) openStore(ctx context.Context) (*dbValkey.Store, error) {
	cfg := a.cfg.Database
	if err := a.cfg.ValidateDatabase(); err != nil {
		return nil, err
	}

	store, err := dbValkey.NewStore(dbValkey.Config{
		Addrs:       cfg.Addrs,
		Username:    cfg.Username,
		Password:    cfg.Password,
		UseTLS:      cfg.UseTLS,
		DialTimeout: ms(cfg.TimeoutMs),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to vector store: %w: %w", domain.ErrExternalService, err)
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("vector store not ready: %w: %w", domain.ErrExternalService, err)
	}
	a.logger.Info("Connected to vector store", zap.Strings("addrs", cfg.Addrs))
	return store, nil
}

func (a *cliApp) printVectorize(res *vectorize.Result) {
	if res == nil {
		return
	}
	s := res.Stats
	_, _ = fmt.Fprintf(a.stdout,
		"vectorize: total=%d skipped=%d succeeded=%d failed=%d batches=%d elapsed=%s avg=%s rps=%.2f\n",
		s.Total, s.Skipped, s.Succeeded, s.Failed, res.Batches,
		s.Elapsed.Round(time.Millisecond), res.AvgPerImage().Round(time.Millisecond), res.RequestsPerSecond)
	if res.ArtifactDir != "" {
		_, _ = fmt.Fprintf(a.stdout, "artifacts: %s\n", res.ArtifactDir)
	}
}

func (a *cliApp) printLoad(res *load.Result) {
	if res == nil {
		return
	}
	s := res.Stats
	_, _ = fmt.Fprintf(a.stdout,
		"load: total=%d succeeded=%d failed=%d batches=%d last_id=%d dimension=%d elapsed=%s\n",
		s.Total, s.Succeeded, s.Failed, res.Batches, res.LastID, res.Dimension,
		s.Elapsed.Round(time.Millisecond))
}

// liveHealth reports on whichever clients the running command has opened.
type liveHealth struct {
	mu  sync.Mutex
	db  healthuc.StorePinger
	emb healthuc.EmbeddingChecker
}

func (h *liveHealth) setStore(p healthuc.StorePinger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.db = p
}

func (h *liveHealth) setEmbedding(c healthuc.EmbeddingChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.emb = c
}

// Check implements chi.HealthReporter.
func (h *liveHealth) Check(ctx context.Context) healthuc.Report {
	h.mu.Lock()
	db, emb := h.db, h.emb
	h.mu.Unlock()
	return healthuc.New(db, emb).Check(ctx)
}
