package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/finsightlabs/callrag/internal/config"
)

// GeminiClient implements Client for Google's Generative Language
// embedding API
type GeminiClient struct {
	apiKey     string
	endpoint   string
	model      string
	dimensions int
	client     *http.Client
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiEmbedRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiBatchEmbedRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiBatchEmbedResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

// NewGeminiClient creates a new Gemini embedding client
func NewGeminiClient(cfg *config.EmbeddingConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api_key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-004"
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 768
	}

	return &GeminiClient{
		apiKey:     cfg.APIKey,
		endpoint:   strings.TrimRight(endpoint, "/"),
		model:      model,
		dimensions: dimensions,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Embed generates an embedding for a single text
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts
func (c *GeminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := geminiBatchEmbedRequest{Requests: make([]geminiEmbedRequest, len(texts))}
	for i, text := range texts {
		req.Requests[i] = geminiEmbedRequest{
			Model:   "models/" + c.model,
			Content: geminiContent{Parts: []geminiPart{{Text: text}}},
		}
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:batchEmbedContents?key=%s", c.endpoint, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Transient: true, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Transient: true, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			Provider:   "gemini",
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Transient:  statusTransient(resp.StatusCode),
		}
	}

	var apiResp geminiBatchEmbedResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(apiResp.Embeddings) != len(texts) {
		return nil, &ProviderError{
			Provider: "gemini",
			Message:  fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(apiResp.Embeddings)),
		}
	}

	embeddings := make([][]float32, len(texts))
	for i, e := range apiResp.Embeddings {
		embeddings[i] = e.Values
	}
	return embeddings, nil
}

// Dimensions returns the dimension of the embeddings
func (c *GeminiClient) Dimensions() int {
	return c.dimensions
}

// Model returns the embedding model identifier
func (c *GeminiClient) Model() string {
	return c.model
}
