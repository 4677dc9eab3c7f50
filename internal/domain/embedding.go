package domain

import (
	"context"
	"encoding/base64"
)

// Embedder is the shared image vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, img Image) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Image is the payload sent to an embedding provider.
type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

// DataURI encodes the image as a base64 data URI.
func (i Image) DataURI() string {
	mime := i.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}
