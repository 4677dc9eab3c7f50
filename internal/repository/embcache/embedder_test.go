package embcache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecingest/internal/db"
	"github.com/kailas-cloud/vecingest/internal/domain"
)

func TestEmbed_CacheMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2, 0.3},
		PromptTokens: 10,
		TotalTokens:  10,
	}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	// GET → ErrKeyNotFound (cache miss)
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, db.ErrKeyNotFound
	}

	var stored []byte
	ms.setFn = func(_ context.Context, _ string, v []byte) error {
		stored = v
		return nil
	}

	result, err := ce.Embed(ctx, testImage("pixels"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", result.Embedding)
	}
	if result.TotalTokens != 10 {
		t.Fatalf("expected TotalTokens=10, got %d", result.TotalTokens)
	}
	if len(stored) != 12 {
		t.Fatalf("expected 12 cached bytes, got %d", len(stored))
	}
}

func TestEmbed_CacheHit(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding: []float32{0.1, 0.2, 0.3},
	}}
	ce, ms := newTestCachedEmbedder(t, inner)

	cached := vectorToCacheBytes([]float32{0.4, 0.5, 0.6})
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return cached, nil
	}

	result, err := ce.Embed(context.Background(), testImage("pixels"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.4 {
		t.Fatalf("expected cached vector, got: %v", result.Embedding)
	}
	if result.TotalTokens != 0 {
		t.Fatalf("expected TotalTokens=0 on cache hit, got %d", result.TotalTokens)
	}
	if inner.calls != 0 {
		t.Fatalf("inner embedder must not be called on hit, got %d calls", inner.calls)
	}
}

func TestEmbed_InnerError(t *testing.T) {
	providerErr := errors.New("provider down")
	inner := &mockEmbedder{err: providerErr}
	ce, ms := newTestCachedEmbedder(t, inner)

	var setCalled bool
	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		setCalled = true
		return nil
	}

	_, err := ce.Embed(context.Background(), testImage("pixels"))
	if !errors.Is(err, providerErr) {
		t.Fatalf("expected inner error, got %v", err)
	}
	if setCalled {
		t.Fatal("failed embedding must not be cached")
	}
}

func TestEmbed_CacheGetErrorFallsThrough(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ce, ms := newTestCachedEmbedder(t, inner)

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, errors.New("connection reset")
	}

	result, err := ce.Embed(context.Background(), testImage("pixels"))
	if err != nil {
		t.Fatalf("cache failure must not fail the embed: %v", err)
	}
	if inner.calls != 1 || len(result.Embedding) != 1 {
		t.Fatalf("expected inner call, got calls=%d result=%v", inner.calls, result.Embedding)
	}
}

func TestEmbed_CorruptCacheEntryFallsThrough(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ce, ms := newTestCachedEmbedder(t, inner)

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return []byte{1, 2, 3}, nil
	}

	if _, err := ce.Embed(context.Background(), testImage("pixels")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected fallback to inner, got %d calls", inner.calls)
	}
}

func TestEmbed_CacheSetErrorIgnored(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ce, ms := newTestCachedEmbedder(t, inner)

	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		return errors.New("read only replica")
	}

	if _, err := ce.Embed(context.Background(), testImage("pixels")); err != nil {
		t.Fatalf("cache put failure must not fail the embed: %v", err)
	}
}

func TestCacheKey(t *testing.T) {
	inner := &mockEmbedder{}
	ce, _ := newTestCachedEmbedder(t, inner)

	k1 := ce.cacheKey([]byte("pixels"))
	k2 := ce.cacheKey([]byte("pixels"))
	k3 := ce.cacheKey([]byte("other"))

	if k1 != k2 {
		t.Error("same bytes must produce the same key")
	}
	if k1 == k3 {
		t.Error("different bytes must produce different keys")
	}
	if !strings.HasPrefix(k1, DefaultPrefix) {
		t.Errorf("key %q missing default prefix", k1)
	}

	other := New(inner, &mockKVStore{}, "other-model", nil, zap.NewNop())
	if other.cacheKey([]byte("pixels")) == k1 {
		t.Error("different models must produce different keys")
	}
}

func TestWithPrefix(t *testing.T) {
	ce, _ := newTestCachedEmbedder(t, &mockEmbedder{}, WithPrefix("custom:"))
	if !strings.HasPrefix(ce.cacheKey([]byte("x")), "custom:") {
		t.Error("custom prefix not applied")
	}

	ce, _ = newTestCachedEmbedder(t, &mockEmbedder{}, WithPrefix(""))
	if !strings.HasPrefix(ce.cacheKey([]byte("x")), DefaultPrefix) {
		t.Error("empty prefix must keep the default")
	}
}

func TestWithTTL(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 2}}}
	ce, ms := newTestCachedEmbedder(t, inner, WithTTL(time.Hour))

	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		t.Error("plain SET used while a TTL is configured")
		return nil
	}
	var gotTTL time.Duration
	ms.setTTLFn = func(_ context.Context, key string, v []byte, ttl time.Duration) error {
		if !strings.HasPrefix(key, DefaultPrefix) || len(v) != 8 {
			t.Errorf("unexpected cache write %s (%d bytes)", key, len(v))
		}
		gotTTL = ttl
		return nil
	}

	if _, err := ce.Embed(context.Background(), testImage("pixels")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotTTL != time.Hour {
		t.Errorf("ttl = %v, want 1h", gotTTL)
	}
}

func TestWithTTL_ZeroKeepsEntries(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ce, ms := newTestCachedEmbedder(t, inner, WithTTL(0))

	var plainSet bool
	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		plainSet = true
		return nil
	}
	ms.setTTLFn = func(_ context.Context, _ string, _ []byte, _ time.Duration) error {
		t.Error("SET with TTL used without a TTL")
		return nil
	}

	if _, err := ce.Embed(context.Background(), testImage("pixels")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !plainSet {
		t.Error("expected a plain SET")
	}
}

func TestEmbed_CacheCounter(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"result"})
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ms := &mockKVStore{}
	ce := New(inner, ms, "m", counter, zap.NewNop())

	_, _ = ce.Embed(context.Background(), testImage("a"))
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return vectorToCacheBytes([]float32{1}), nil
	}
	_, _ = ce.Embed(context.Background(), testImage("a"))

	if got := testutil.ToFloat64(counter.WithLabelValues("miss")); got != 1 {
		t.Errorf("miss = %v, want 1", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("hit")); got != 1 {
		t.Errorf("hit = %v, want 1", got)
	}
}

func TestBytesToVector_Invalid(t *testing.T) {
	if _, err := bytesToVector([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for non-multiple-of-4 length")
	}
}

func TestVectorCacheBytes_RoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3}
	out, err := bytesToVector(vectorToCacheBytes(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("vec[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}
