package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecingest/internal/domain"
	"github.com/kailas-cloud/vecingest/internal/metrics"
)

// InstrumentedEmbedder wraps Embedder with response validation and logging.
// Transport metrics (requests, duration, tokens) are recorded in the transport layer.
// This layer owns dimension enforcement and validation-error metrics only.
type InstrumentedEmbedder struct {
	inner      domain.Embedder
	provider   string
	model      string
	dimensions int
	logger     *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with validation and observability.
// dimensions of 0 accepts any non-empty vector.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	dimensions int, logger *zap.Logger,
) *InstrumentedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedEmbedder{
		inner:      inner,
		provider:   provider,
		model:      model,
		dimensions: dimensions,
		logger:     logger,
	}
}

// Embed delegates to the inner embedder and validates the returned vector.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, img domain.Image,
) (domain.EmbeddingResult, error) {
	start := time.Now()

	result, err := p.inner.Embed(ctx, img)

	duration := time.Since(start)

	if err != nil {
		p.logger.Warn("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.String("image", img.Name),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed %s: %w", img.Name, err)
	}

	if err := p.validate(result.Embedding); err != nil {
		metrics.EmbeddingErrorsTotal.WithLabelValues(p.provider, p.model, "invalid_vector").Inc()
		p.logger.Warn("Embedding rejected",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.String("image", img.Name),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed %s: %w", img.Name, err)
	}

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.String("image", img.Name),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

func (p *InstrumentedEmbedder) validate(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty embedding: %w", domain.ErrValidation)
	}
	if p.dimensions > 0 && len(vec) != p.dimensions {
		return fmt.Errorf("got %d dimensions, want %d: %w",
			len(vec), p.dimensions, domain.ErrVectorDimMismatch)
	}
	return nil
}
