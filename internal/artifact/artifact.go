// Package artifact reads and writes per-image vector artifacts.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kailas-cloud/vecingest/internal/domain"
)

const filePerm = 0o644

// Store persists artifacts on the local filesystem.
type Store struct{}

// NewStore creates a filesystem artifact store.
func NewStore() *Store { return &Store{} }

// Write implements the vectorizer's artifact writer.
func (*Store) Write(dir, stem string, rec domain.VectorRecord) (string, error) {
	return Write(dir, stem, rec)
}

// Read implements the loader's artifact reader.
func (*Store) Read(path string) (domain.VectorRecord, error) {
	return Read(path)
}

// Encode renders a record as 2-space indented JSON.
func Encode(rec domain.VectorRecord) ([]byte, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode artifact %s: %w", rec.Name, err)
	}
	return data, nil
}

// Decode parses and validates an artifact.
func Decode(data []byte) (domain.VectorRecord, error) {
	var rec domain.VectorRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&rec); err != nil {
		return domain.VectorRecord{}, fmt.Errorf("decode artifact: %w: %w", domain.ErrValidation, err)
	}
	if err := rec.Validate(); err != nil {
		return domain.VectorRecord{}, err
	}
	return rec, nil
}

// Write stores rec as <dir>/<stem>.json. The file appears atomically.
func Write(dir, stem string, rec domain.VectorRecord) (string, error) {
	data, err := Encode(rec)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, stem+domain.ArtifactExt)
	tmp, err := os.CreateTemp(dir, "."+stem+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w: %w", domain.ErrFilesystem, err)
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write artifact %s: %w: %w", path, domain.ErrFilesystem, err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("chmod artifact %s: %w: %w", path, domain.ErrFilesystem, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename artifact %s: %w: %w", path, domain.ErrFilesystem, err)
	}
	return path, nil
}

// Read loads and validates the artifact at path.
func Read(path string) (domain.VectorRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.VectorRecord{}, fmt.Errorf("read artifact %s: %w: %w", path, domain.ErrFilesystem, err)
	}
	rec, err := Decode(data)
	if err != nil {
		return domain.VectorRecord{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return rec, nil
}
