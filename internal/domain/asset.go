package domain

import (
	"path/filepath"
	"strings"
)

// ArtifactDirName is the subdirectory of a source directory that holds vector artifacts.
const ArtifactDirName = "vector"

// ArtifactExt is the file extension of a vector artifact.
const ArtifactExt = ".json"

var imageMIMETypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// SourceAsset is an eligible image file discovered in the source directory.
type SourceAsset struct {
	Path     string
	FileName string
	Stem     string
	MIMEType string
}

// NewSourceAsset builds an asset from a file path. ok is false for unsupported extensions.
func NewSourceAsset(path string) (SourceAsset, bool) {
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	mime, ok := imageMIMETypes[strings.ToLower(ext)]
	if !ok {
		return SourceAsset{}, false
	}
	return SourceAsset{
		Path:     path,
		FileName: name,
		Stem:     strings.TrimSuffix(name, ext),
		MIMEType: mime,
	}, true
}

// ArtifactName is the artifact file name derived from the asset stem.
func (a SourceAsset) ArtifactName() string {
	return a.Stem + ArtifactExt
}

// ArtifactDir returns the artifact directory for a source directory.
func ArtifactDir(sourceDir string) string {
	return filepath.Join(sourceDir, ArtifactDirName)
}
