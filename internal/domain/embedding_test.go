package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestImage_DataURI(t *testing.T) {
	img := Image{Name: "a.png", MIMEType: "image/png", Data: []byte("hi")}
	got := img.DataURI()
	if got != "data:image/png;base64,aGk=" {
		t.Errorf("DataURI() = %q", got)
	}
}

func TestImage_DataURIDefaultsToJPEG(t *testing.T) {
	img := Image{Data: []byte{0xff}}
	if !strings.HasPrefix(img.DataURI(), "data:image/jpeg;base64,") {
		t.Errorf("DataURI() = %q", img.DataURI())
	}
}

func TestNewSourceAsset(t *testing.T) {
	tests := []struct {
		path     string
		ok       bool
		stem     string
		mimeType string
	}{
		{"/imgs/cat.jpg", true, "cat", "image/jpeg"},
		{"/imgs/Dog.JPEG", true, "Dog", "image/jpeg"},
		{"/imgs/bird.PNG", true, "bird", "image/png"},
		{"/imgs/fish.webp", true, "fish", "image/webp"},
		{"/imgs/notes.txt", false, "", ""},
		{"/imgs/noext", false, "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			a, ok := NewSourceAsset(tc.path)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if !ok {
				return
			}
			if a.Stem != tc.stem {
				t.Errorf("Stem = %q, want %q", a.Stem, tc.stem)
			}
			if a.MIMEType != tc.mimeType {
				t.Errorf("MIMEType = %q, want %q", a.MIMEType, tc.mimeType)
			}
			if a.ArtifactName() != tc.stem+".json" {
				t.Errorf("ArtifactName() = %q", a.ArtifactName())
			}
		})
	}
}

func TestArtifactDir(t *testing.T) {
	if got := ArtifactDir("/data/images"); got != "/data/images/vector" {
		t.Errorf("ArtifactDir() = %q", got)
	}
}

func TestChunk(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}
	chunks := Chunk(items, 3)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 3 || len(chunks[1]) != 3 || len(chunks[2]) != 1 {
		t.Errorf("unexpected chunk sizes: %v", chunks)
	}
	if chunks[2][0] != 7 {
		t.Errorf("last chunk = %v", chunks[2])
	}

	if Chunk(items, 0) != nil {
		t.Error("expected nil for size 0")
	}
	if Chunk([]int{}, 10) != nil {
		t.Error("expected nil for empty input")
	}
}

func TestVectorRecord_Validate(t *testing.T) {
	if err := (VectorRecord{Vector: []float32{1}, Name: "a.jpg"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (VectorRecord{Name: "a.jpg"}).Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if err := (VectorRecord{Vector: []float32{1}}).Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestRunStatistics_OK(t *testing.T) {
	s := RunStatistics{Total: 3, Succeeded: 3}
	if !s.OK() {
		t.Error("expected OK")
	}
	s.Add(RunStatistics{Total: 1, Failed: 1})
	if s.OK() {
		t.Error("expected not OK after a failure")
	}
	if s.Total != 4 {
		t.Errorf("Total = %d, want 4", s.Total)
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"gallery", "img_2024", "a-b-c"}
	for _, n := range valid {
		if err := ValidateName("collection", n); err != nil {
			t.Errorf("ValidateName(%q) = %v", n, err)
		}
	}
	invalid := []string{"", "has space", "colon:name", "slash/name"}
	for _, n := range invalid {
		if err := ValidateName("collection", n); !errors.Is(err, ErrConfiguration) {
			t.Errorf("ValidateName(%q) = %v, want ErrConfiguration", n, err)
		}
	}
}

func TestCollectionDescriptor_Validate(t *testing.T) {
	d := CollectionDescriptor{Database: "db", Collection: "c", Dimension: 0}
	if err := d.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	d.Dimension = 4
	if err := d.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("x: %w", ErrConfiguration), "configuration"},
		{ErrVectorDimMismatch, "validation"},
		{ErrEmbeddingProviderError, "external_service"},
		{fmt.Errorf("wrapped: %w", ErrConflict), "conflict"},
		{fmt.Errorf("mkdir: %w", ErrFilesystem), "filesystem"},
		{errors.New("boom"), "internal"},
	}
	for _, tc := range tests {
		if got := Kind(tc.err); got != tc.want {
			t.Errorf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
