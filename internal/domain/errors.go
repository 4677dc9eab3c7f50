package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error leaving a stage wraps exactly one of these so callers
// can classify it with errors.Is.
var (
	// ErrConfiguration signals missing or invalid settings or run options.
	ErrConfiguration = errors.New("configuration error")
	// ErrFilesystem signals an unreadable directory or an unwritable artifact.
	ErrFilesystem = errors.New("filesystem error")
	// ErrValidation signals a malformed artifact or provider response.
	ErrValidation = errors.New("validation error")
	// ErrExternalService signals that the embedding service or vector store is unavailable.
	ErrExternalService = errors.New("external service error")
	// ErrConflict signals that the destination collection already exists.
	ErrConflict = errors.New("conflict")
)

var (
	// ErrVectorDimMismatch signals a vector whose length differs from the collection dimension.
	ErrVectorDimMismatch = fmt.Errorf("vector dimension mismatch: %w", ErrValidation)
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = fmt.Errorf("embedding provider error: %w", ErrExternalService)
	// ErrNotFound signals a missing database or collection.
	ErrNotFound = errors.New("not found")
)

// Kind returns the error kind name used in logs and exit reporting.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrFilesystem):
		return "filesystem"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrExternalService):
		return "external_service"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
