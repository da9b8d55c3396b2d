package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/finsightlabs/callrag/internal/config"
)

// Service provides embedding generation functionality
type Service struct {
	cfg      *config.EmbeddingConfig
	client   Client
	limiter  *rate.Limiter
	inflight chan struct{}
	sleep    func(context.Context, time.Duration) error
}

// Client is the interface for embedding API clients
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
}

// NewService creates a new embedding service
func NewService(cfg *config.EmbeddingConfig) (*Service, error) {
	var client Client
	var err error

	switch cfg.Provider {
	case "gemini":
		client, err = NewGeminiClient(cfg)
	case "openai":
		client, err = NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	return newServiceWithClient(cfg, client), nil
}

func newServiceWithClient(cfg *config.EmbeddingConfig, client Client) *Service {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	maxInflight := cfg.MaxInflight
	if maxInflight <= 0 {
		maxInflight = 4
	}
	return &Service{
		cfg:      cfg,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		inflight: make(chan struct{}, maxInflight),
		sleep:    sleepCtx,
	}
}

// Embed generates an embedding for a single text
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}
	vecs, err := s.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, batching provider
// requests at the configured batch size. A failure in one batch does not
// invalidate vectors already produced; the successfully embedded prefix is
// returned alongside the error so callers can keep partial progress.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		embeddings, err := s.embedWithRetry(ctx, texts[i:end])
		if err != nil {
			return results, fmt.Errorf("failed to embed batch %d-%d: %w", i, end, err)
		}
		results = append(results, embeddings...)
	}

	return results, nil
}

// embedWithRetry performs one provider call under the rate and inflight
// limits, retrying transient failures with exponential backoff.
func (s *Service) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	maxRetries := s.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, backoffDelay(attempt)); err != nil {
				return nil, err
			}
		}

		vecs, err := s.callOnce(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("embedding retries exhausted: %w", lastErr)
}

func (s *Service) callOnce(ctx context.Context, texts []string) ([][]float32, error) {
	select {
	case s.inflight <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.inflight }()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	vecs, err := s.client.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, &ProviderError{
			Provider: s.cfg.Provider,
			Message:  fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(vecs)),
		}
	}
	return vecs, nil
}

// Dimensions returns the dimension of the embeddings
func (s *Service) Dimensions() int {
	return s.client.Dimensions()
}

// Model returns the provider model identifier used for embeddings.
func (s *Service) Model() string {
	return s.client.Model()
}

func backoffDelay(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
	if d > 8*time.Second {
		d = 8 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Similarity computes cosine similarity between two vectors
func Similarity(a, b []float32) float32 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vector dimension mismatch: %d vs %d", len(a), len(b)))
	}

	var dotProduct float32
	var normA float32
	var normB float32

	for i := 0; i < len(a); i++ {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
