package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/vecingest/internal/artifact"
	"github.com/kailas-cloud/vecingest/internal/domain"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"stage failures", fmt.Errorf("vectorize: %w", errStageFailures), exitFailure},
		{"usage", newUsageError("bad"), exitUsage},
		{"wrapped usage", fmt.Errorf("run: %w", newUsageError("bad")), exitUsage},
		{"configuration", fmt.Errorf("x: %w", domain.ErrConfiguration), exitUsage},
		{"external service", fmt.Errorf("x: %w", domain.ErrExternalService), exitFailure},
		{"filesystem", domain.ErrFilesystem, exitFailure},
		{"plain", errors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

// isolate keeps the run independent of the caller's environment.
func isolate(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ENV", "LOG_LEVEL", "EMBEDDING_PROVIDER", "ARK_API_KEY", "ARK_BASE_URL", "ARK_MODEL",
		"ARK_TIMEOUT", "ARK_MAX_RETRIES", "ARK_RETRY_DELAY",
		"VALKEY_ADDR", "VALKEY_PASSWORD", "VALKEY_USE_TLS", "VALKEY_TIMEOUT", "VECINGEST_CONFIG",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("LOG_LEVEL", "error")
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"vecingest"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_UsageErrors(t *testing.T) {
	isolate(t)
	src := t.TempDir()

	tests := []struct {
		name string
		args []string
	}{
		{"vectorize without source", []string{"vectorize"}},
		{"vectorize with extra args", []string{"vectorize", src, "5", "extra"}},
		{"non-numeric batch size", []string{"vectorize", src, "ten"}},
		{"load with two args", []string{"load", src, "photos"}},
		{"run without collection", []string{"run", src, "photos"}},
		{"unknown flag", []string{"load", "--bogus", src, "photos", "cats"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			assert.Equal(t, exitUsage, code)
			assert.NotEmpty(t, stderr)
		})
	}
}

func TestRun_BatchSizeOutOfRange(t *testing.T) {
	isolate(t)
	t.Setenv("ARK_API_KEY", "k")

	for _, size := range []string{"0", "301"} {
		code, _, stderr := runCLI(t, "vectorize", t.TempDir(), size)
		assert.Equal(t, exitUsage, code, size)
		assert.Contains(t, stderr, "out of range")
	}
}

func TestRun_SkipVectorizationWithoutArtifacts(t *testing.T) {
	isolate(t)

	code, _, stderr := runCLI(t, "run", "--skip-vectorization", t.TempDir(), "photos", "cats")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "no artifacts")
}

func TestRun_InvalidCollectionName(t *testing.T) {
	isolate(t)

	code, _, _ := runCLI(t, "run", t.TempDir(), "photos", "bad name")
	assert.Equal(t, exitUsage, code)
}

func TestRun_MissingAPIKey(t *testing.T) {
	isolate(t)

	code, _, stderr := runCLI(t, "vectorize", t.TempDir())
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "ARK_API_KEY")
}

func arkServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"code":"AuthenticationError","message":"invalid key"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   map[string]any{"object": "embedding", "embedding": []float32{0.1, 0.2, 0.3}},
			"usage":  map[string]any{"prompt_tokens": 3, "total_tokens": 3},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_VectorizeEndToEnd(t *testing.T) {
	isolate(t)
	srv := arkServer(t, http.StatusOK)
	t.Setenv("ARK_API_KEY", "test-key")
	t.Setenv("ARK_BASE_URL", srv.URL)
	t.Setenv("ARK_MAX_RETRIES", "0")

	src := t.TempDir()
	for _, name := range []string{"cat.jpg", "dog.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(src, name), []byte(name), 0o644))
	}

	code, stdout, stderr := runCLI(t, "vectorize", src, "2")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "succeeded=2")

	rec, err := artifact.Read(filepath.Join(domain.ArtifactDir(src), "cat.json"))
	require.NoError(t, err)
	assert.Equal(t, "cat.jpg", rec.Name)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, rec.Vector)

	code, stdout, _ = runCLI(t, "vectorize", src)
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "skipped=2")
}

func TestRun_VectorizePreflightFailure(t *testing.T) {
	isolate(t)
	srv := arkServer(t, http.StatusUnauthorized)
	t.Setenv("ARK_API_KEY", "wrong")
	t.Setenv("ARK_BASE_URL", srv.URL)
	t.Setenv("ARK_MAX_RETRIES", "0")

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.jpg"), []byte("a"), 0o644))

	code, _, stderr := runCLI(t, "vectorize", src)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "invalid key")

	_, err := os.Stat(filepath.Join(domain.ArtifactDir(src), "a.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_VectorizationFailuresSkipLoad(t *testing.T) {
	isolate(t)
	broken := base64.StdEncoding.EncodeToString([]byte("broken-bytes"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(string(body), broken) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"InvalidParameter","message":"cannot decode image"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   map[string]any{"object": "embedding", "embedding": []float32{0.1, 0.2, 0.3}},
			"usage":  map[string]any{"prompt_tokens": 3, "total_tokens": 3},
		})
	}))
	t.Cleanup(srv.Close)
	t.Setenv("ARK_API_KEY", "test-key")
	t.Setenv("ARK_BASE_URL", srv.URL)
	t.Setenv("ARK_MAX_RETRIES", "0")

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "cat.jpg"), []byte("cat.jpg"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "broken.jpg"), []byte("broken-bytes"), 0o644))

	// No VALKEY_ADDR: building the loader would fail with a configuration error (exit 2).
	code, stdout, stderr := runCLI(t, "run", "--force", src, "photos", "cats")
	require.Equal(t, exitFailure, code, stderr)
	assert.Contains(t, stdout, "succeeded=1 failed=1")
	assert.Contains(t, stdout, "load skipped")
	assert.NotContains(t, stdout, "load: total=")
	assert.FileExists(t, filepath.Join(domain.ArtifactDir(src), "cat.json"))
}
