package pipeline

import (
	"context"

	"github.com/kailas-cloud/vecingest/internal/usecase/load"
	"github.com/kailas-cloud/vecingest/internal/usecase/vectorize"
)

// Vectorizer runs the vectorization stage over a source directory.
type Vectorizer interface {
	Run(ctx context.Context, sourceDir string) (vectorize.Result, error)
}

// Loader runs the load stage.
type Loader interface {
	Run(ctx context.Context, req load.Request) (load.Result, error)
}

// Dependencies builds stage services on demand.
// Each factory returns a release func that frees the clients it created.
type Dependencies struct {
	NewVectorizer func(ctx context.Context) (Vectorizer, func(), error)
	NewLoader     func(ctx context.Context) (Loader, func(), error)
}
