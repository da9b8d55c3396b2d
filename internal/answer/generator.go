package answer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/finsightlabs/callrag/internal/assemble"
	"github.com/finsightlabs/callrag/internal/config"
)

// GenerationError reports a failed model call.
type GenerationError struct {
	Model      string
	StatusCode int
	Message    string
	Transient  bool
	Err        error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm %s: %v", e.Model, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm %s: status %d: %s", e.Model, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm %s: %s", e.Model, e.Message)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsGenerationError checks if err is a GenerationError.
func IsGenerationError(err error) bool {
	var target *GenerationError
	return errors.As(err, &target)
}

func isTransient(err error) bool {
	var target *GenerationError
	if errors.As(err, &target) {
		return target.Transient
	}
	return false
}

// Answer is a generated answer and where its evidence came from.
type Answer struct {
	Text    string
	Sources []assemble.Source
	Model   string // empty for the no-context short-circuit
}

// Generator produces grounded answers from assembled context. Model
// calls run under the configured rate and inflight limits, shared by
// all concurrent queries.
type Generator struct {
	llm        LLM
	maxRetries int
	limiter    *rate.Limiter
	inflight   chan struct{}
	sleep      func(context.Context, time.Duration) error
}

// NewGenerator creates a generator for the configured provider.
func NewGenerator(cfg *config.LLMConfig) (*Generator, error) {
	var llm LLM
	var err error
	switch cfg.Provider {
	case "gemini", "":
		llm, err = NewGeminiLLM(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	return NewGeneratorWithLLM(cfg, llm), nil
}

// NewGeneratorWithLLM creates a generator over a caller-supplied model
// client.
func NewGeneratorWithLLM(cfg *config.LLMConfig, llm LLM) *Generator {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	maxInflight := cfg.MaxInflight
	if maxInflight <= 0 {
		maxInflight = 2
	}
	return &Generator{
		llm:        llm,
		maxRetries: maxRetries,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		inflight:   make(chan struct{}, maxInflight),
		sleep:      sleepCtx,
	}
}

// Generate answers the question from the assembled context. An empty
// context short-circuits to the fixed insufficient-information answer
// without calling the model.
func (g *Generator) Generate(ctx context.Context, question string, ac assemble.Context) (*Answer, error) {
	if ac.Empty() {
		return &Answer{Text: InsufficientInfoAnswer(question)}, nil
	}

	prompt := buildPrompt(question, ac.Text)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			if err := g.sleep(ctx, backoffDelay(attempt)); err != nil {
				return nil, err
			}
		}
		text, err := g.callOnce(ctx, prompt)
		if err == nil {
			return &Answer{Text: text, Sources: ac.Sources, Model: g.llm.Model()}, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("answer generation retries exhausted: %w", lastErr)
}

// callOnce performs one model call under the rate and inflight limits.
func (g *Generator) callOnce(ctx context.Context, prompt string) (string, error) {
	select {
	case g.inflight <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-g.inflight }()

	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return g.llm.Generate(ctx, prompt)
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
