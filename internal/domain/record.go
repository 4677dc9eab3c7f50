package domain

import (
	"fmt"
	"time"
)

// VectorRecord is the persisted output of one vectorized image.
type VectorRecord struct {
	Vector []float32 `json:"vector"`
	Name   string    `json:"img_name"`
}

// Validate checks that the record carries a non-empty vector and a source name.
func (r VectorRecord) Validate() error {
	if len(r.Vector) == 0 {
		return fmt.Errorf("record %q has empty vector: %w", r.Name, ErrValidation)
	}
	if r.Name == "" {
		return fmt.Errorf("record has empty img_name: %w", ErrValidation)
	}
	return nil
}

// Dimension is the vector length.
func (r VectorRecord) Dimension() int { return len(r.Vector) }

// RunStatistics accumulates outcomes of a stage.
type RunStatistics struct {
	Total     int
	Skipped   int
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

// OK reports whether the stage finished without item failures.
func (s RunStatistics) OK() bool { return s.Failed == 0 }

// Add merges o into s.
func (s *RunStatistics) Add(o RunStatistics) {
	s.Total += o.Total
	s.Skipped += o.Skipped
	s.Succeeded += o.Succeeded
	s.Failed += o.Failed
	s.Elapsed += o.Elapsed
}

// Chunk splits items into consecutive batches of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
