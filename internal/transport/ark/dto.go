package ark

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/vecingest/internal/domain"
)

// Input types accepted by the multimodal endpoint.
const (
	inputTypeText  = "text"
	inputTypeImage = "image_url"
)

type embeddingRequest struct {
	Model string           `json:"model"`
	Input []multimodalItem `json:"input"`
}

type multimodalItem struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type embeddingResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Data    *struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		PromptTokens        int `json:"prompt_tokens"`
		TotalTokens         int `json:"total_tokens"`
		PromptTokensDetails struct {
			ImageTokens int `json:"image_tokens"`
			TextTokens  int `json:"text_tokens"`
		} `json:"prompt_tokens_details"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// decode parses a 2xx response body. A missing or empty embedding is a validation error.
func decode(body []byte) (domain.EmbeddingResult, error) {
	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("decode embedding response: %w: %w", domain.ErrValidation, err)
	}
	if resp.Data == nil || len(resp.Data.Embedding) == 0 {
		return domain.EmbeddingResult{}, fmt.Errorf("embedding response has no vector: %w", domain.ErrValidation)
	}
	return domain.EmbeddingResult{
		Embedding:    resp.Data.Embedding,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// errorDetail extracts "message (type)" from an error body, falling back to the raw body.
func errorDetail(body []byte) string {
	var parsed errorResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		if parsed.Error.Type != "" {
			return parsed.Error.Message + " (" + parsed.Error.Type + ")"
		}
		return parsed.Error.Message
	}
	const maxRaw = 256
	if len(body) > maxRaw {
		return string(body[:maxRaw])
	}
	return string(body)
}
