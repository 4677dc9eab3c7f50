package health

import "context"

// StorePinger is the vector store connection opened by the load stage.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker is the embedding provider opened by the vectorization stage.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
