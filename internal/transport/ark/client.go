// Package ark is a client for the Volcengine Ark multimodal embedding API.
package ark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecingest/internal/domain"
	"github.com/kailas-cloud/vecingest/internal/metrics"
)

const (
	embeddingsPath    = "/api/v3/embeddings/multimodal"
	healthCheckText   = "health check"
	maxResponseBytes  = 32 << 20
	defaultTimeout    = 30 * time.Second
	defaultRetryDelay = time.Second
	userAgent         = "vecingest-ark/1"
)

// Config holds the Ark client settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Provider   string // metrics label, defaults to "ark"
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client embeds images through the Ark multimodal endpoint.
type Client struct {
	http       *http.Client
	endpoint   string
	apiKey     string
	model      string
	maxRetries int
	retryDelay time.Duration
	provider   string
	logger     *zap.Logger
}

// NewClient creates an Ark client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ark api key is required: %w", domain.ErrConfiguration)
	}
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, fmt.Errorf("ark base url and model are required: %w", domain.ErrConfiguration)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "ark"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		http:       httpClient,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + embeddingsPath,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		retryDelay: retryDelay,
		provider:   provider,
		logger:     logger,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Embed implements domain.Embedder for one image.
func (c *Client) Embed(ctx context.Context, img domain.Image) (domain.EmbeddingResult, error) {
	req := embeddingRequest{
		Model: c.model,
		Input: []multimodalItem{{Type: inputTypeImage, ImageURL: &imageURL{URL: img.DataURI()}}},
	}
	return c.embed(ctx, req)
}

// HealthCheck sends a minimal text embedding request.
func (c *Client) HealthCheck(ctx context.Context) error {
	req := embeddingRequest{
		Model: c.model,
		Input: []multimodalItem{{Type: inputTypeText, Text: healthCheckText}},
	}
	if _, err := c.embed(ctx, req); err != nil {
		return fmt.Errorf("ark health check: %w", err)
	}
	return nil
}

func (c *Client) embed(ctx context.Context, req embeddingRequest) (domain.EmbeddingResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("encode embedding request: %w", err)
	}

	start := time.Now()
	result, err := retryWithBackoff(ctx, c.maxRetries, c.retryDelay,
		func(attempt int, wait time.Duration, err error) {
			c.logger.Warn("Retrying embedding request",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", c.maxRetries),
				zap.Duration("backoff", wait),
				zap.Error(err),
			)
		},
		func() (domain.EmbeddingResult, error) { return c.do(ctx, payload) },
	)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(c.provider, c.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(c.provider, c.model, errorType(err)).Inc()
		return domain.EmbeddingResult{}, err
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(c.provider, c.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(c.provider, c.model).Observe(duration.Seconds())
	if result.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(c.provider, c.model, "prompt").Add(float64(result.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(c.provider, c.model, "total").Add(float64(result.TotalTokens))
	}
	return result, nil
}

// do performs one HTTP attempt.
func (c *Client) do(ctx context.Context, payload []byte) (domain.EmbeddingResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.EmbeddingResult{}, &retryableError{
			err: fmt.Errorf("embedding request failed: %w: %w", domain.ErrEmbeddingProviderError, err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.EmbeddingResult{}, &retryableError{
			err: fmt.Errorf("read embedding response: %w: %w", domain.ErrEmbeddingProviderError, err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := fmt.Errorf("embedding API error %d: %s: %w",
			resp.StatusCode, errorDetail(body), domain.ErrEmbeddingProviderError)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return domain.EmbeddingResult{}, &retryableError{err: apiErr}
		}
		return domain.EmbeddingResult{}, apiErr
	}

	return decode(body)
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, domain.ErrValidation):
		return "invalid_response"
	default:
		return "api_error"
	}
}
