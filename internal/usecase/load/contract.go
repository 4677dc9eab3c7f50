package load

import (
	"context"

	"github.com/kailas-cloud/vecingest/internal/domain"
)

// VectorStore is the destination vector database.
type VectorStore interface {
	ListDatabases(ctx context.Context) ([]string, error)
	CreateDatabase(ctx context.Context, name string) error
	ListCollections(ctx context.Context, database string) ([]domain.CollectionInfo, error)
	CreateCollection(ctx context.Context, desc domain.CollectionDescriptor) error
	DropCollection(ctx context.Context, database, collection string) error
	InsertVectors(ctx context.Context, database, collection string, vectors []domain.VectorInsert) (domain.InsertAck, error)
	CountVectors(ctx context.Context, database, collection string) (int, error)
}

// ArtifactReader loads one vector artifact.
type ArtifactReader interface {
	Read(path string) (domain.VectorRecord, error)
}
