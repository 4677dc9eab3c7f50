// Package discovery finds source images and splits them into pending and already vectorized work.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kailas-cloud/vecingest/internal/domain"
)

const dirPerm = 0o755

// Result is the split of discovered assets by artifact presence.
type Result struct {
	Unprocessed []domain.SourceAsset
	Skipped     []domain.SourceAsset
	// Conflicts holds assets whose artifact name is already taken by an earlier asset,
	// e.g. cat.png after cat.jpg.
	Conflicts []domain.SourceAsset
	// Created is true when the artifact directory did not exist before.
	Created bool
}

// Discover lists eligible images in dir (non-recursive), sorted by file name.
func Discover(dir string) ([]domain.SourceAsset, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w: %w", dir, domain.ErrFilesystem, err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w: %w", dir, domain.ErrFilesystem, err)
	}

	assets := make([]domain.SourceAsset, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		asset, ok := domain.NewSourceAsset(filepath.Join(abs, e.Name()))
		if !ok {
			continue
		}
		assets = append(assets, asset)
	}

	sort.Slice(assets, func(i, j int) bool { return assets[i].FileName < assets[j].FileName })
	return assets, nil
}

// Partition checks each asset for an existing artifact in outDir, creating outDir if needed.
// The first asset claiming an artifact name owns it; later ones land in Conflicts.
// Order is preserved in every part.
func Partition(assets []domain.SourceAsset, outDir string) (Result, error) {
	var p Result

	_, err := os.Stat(outDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(outDir, dirPerm); err != nil {
			return Result{}, fmt.Errorf("create %s: %w: %w", outDir, domain.ErrFilesystem, err)
		}
		p.Created = true
	case err != nil:
		return Result{}, fmt.Errorf("stat %s: %w: %w", outDir, domain.ErrFilesystem, err)
	}

	claimed := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		name := a.ArtifactName()
		if _, dup := claimed[name]; dup {
			p.Conflicts = append(p.Conflicts, a)
			continue
		}
		claimed[name] = struct{}{}

		if !p.Created && fileExists(filepath.Join(outDir, name)) {
			p.Skipped = append(p.Skipped, a)
		} else {
			p.Unprocessed = append(p.Unprocessed, a)
		}
	}
	return p, nil
}

// ListArtifacts returns the sorted artifact paths in dir.
func ListArtifacts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w: %w", dir, domain.ErrFilesystem, err)
	}

	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), domain.ArtifactExt) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
