package vectorize

import (
	"context"

	"github.com/kailas-cloud/vecingest/internal/domain"
)

// Embedder turns one image into a vector.
type Embedder interface {
	Embed(ctx context.Context, img domain.Image) (domain.EmbeddingResult, error)
}

// HealthChecker verifies the embedding service before any work starts.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ArtifactWriter persists one vector artifact and returns its path.
type ArtifactWriter interface {
	Write(dir, stem string, rec domain.VectorRecord) (string, error)
}
