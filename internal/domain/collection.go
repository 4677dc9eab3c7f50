package domain

import "fmt"

// DistanceMetric is the similarity metric of a collection.
type DistanceMetric string

const (
	// DistanceCosine is cosine distance.
	DistanceCosine DistanceMetric = "cosine"
)

// IndexParams are HNSW construction parameters.
type IndexParams struct {
	M              int
	EFConstruction int
}

// DefaultIndexParams returns the HNSW parameters collections are created with.
func DefaultIndexParams() IndexParams {
	return IndexParams{M: 16, EFConstruction: 200}
}

// CollectionDescriptor identifies a destination collection and how it is indexed.
type CollectionDescriptor struct {
	Database   string
	Collection string
	Metric     DistanceMetric
	Index      IndexParams
	Dimension  int
}

// Validate checks names and dimension.
func (d CollectionDescriptor) Validate() error {
	if err := ValidateName("database", d.Database); err != nil {
		return err
	}
	if err := ValidateName("collection", d.Collection); err != nil {
		return err
	}
	if d.Dimension <= 0 {
		return fmt.Errorf("collection %s/%s: dimension must be positive, got %d: %w",
			d.Database, d.Collection, d.Dimension, ErrValidation)
	}
	return nil
}

// CollectionInfo is a collection as listed by the vector store.
type CollectionInfo struct {
	Name      string
	Dimension int
}

// VectorInsert is one vector submitted to the store.
type VectorInsert struct {
	ID       int64
	Vector   []float32
	Metadata map[string]string
}

// InsertAck is the store's acknowledgement of a bulk insert.
type InsertAck struct {
	Inserted int
}

// ValidateName checks that a database or collection name is [A-Za-z0-9_-]+.
func ValidateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name is required: %w", kind, ErrConfiguration)
	}
	for _, r := range name {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isAlpha && !isDigit && r != '_' && r != '-' {
			return fmt.Errorf("%s name %q contains invalid characters: %w", kind, name, ErrConfiguration)
		}
	}
	return nil
}
