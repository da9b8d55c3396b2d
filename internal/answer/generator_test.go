package answer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/finsightlabs/callrag/internal/assemble"
	"github.com/finsightlabs/callrag/internal/config"
)

type fakeLLM struct {
	responses []string
	errs      []error
	calls     int
	lastInput string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	i := f.calls
	f.calls++
	f.lastInput = prompt
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "answer", nil
}

func (f *fakeLLM) Model() string { return "fake-model" }

func newTestGenerator(llm LLM) *Generator {
	g := NewGeneratorWithLLM(&config.LLMConfig{MaxRetries: 2, RequestsPerSecond: 1000, MaxInflight: 4}, llm)
	g.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return g
}

func testContext() assemble.Context {
	return assemble.Context{
		Text: "[1] AAPL | Q3 2020 | 2020-07-30\nServices revenue set a record.",
		Sources: []assemble.Source{
			{DocumentID: "aapl_a", Company: "AAPL", Date: "2020-07-30", Quarter: "Q3 2020", Score: 0.9},
		},
	}
}

func TestGenerate_EmptyContextShortCircuit(t *testing.T) {
	llm := &fakeLLM{}
	g := newTestGenerator(llm)

	ans, err := g.Generate(context.Background(), "What about revenue?", assemble.Context{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if llm.calls != 0 {
		t.Errorf("llm called %d times for empty context, want 0", llm.calls)
	}
	if ans.Model != "" {
		t.Errorf("Model = %q, want empty for short-circuit", ans.Model)
	}
	if len(ans.Sources) != 0 {
		t.Errorf("Sources = %v, want none", ans.Sources)
	}
	if !strings.Contains(ans.Text, "What about revenue?") {
		t.Errorf("short-circuit answer does not echo the question: %q", ans.Text)
	}
}

func TestGenerate_Success(t *testing.T) {
	llm := &fakeLLM{responses: []string{"Apple grew services revenue [1]."}}
	g := newTestGenerator(llm)

	ans, err := g.Generate(context.Background(), "What about services?", testContext())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if ans.Text != "Apple grew services revenue [1]." {
		t.Errorf("Text = %q", ans.Text)
	}
	if ans.Model != "fake-model" {
		t.Errorf("Model = %q, want fake-model", ans.Model)
	}
	if len(ans.Sources) != 1 {
		t.Errorf("Sources = %v, want 1", ans.Sources)
	}

	// The prompt must carry the context, the question, and the grounding
	// instructions.
	for _, want := range []string{"[1] AAPL", "What about services?", "INSTRUCTIONS"} {
		if !strings.Contains(llm.lastInput, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGenerate_RetriesTransient(t *testing.T) {
	llm := &fakeLLM{
		errs:      []error{&GenerationError{Model: "m", StatusCode: 503, Transient: true}, nil},
		responses: []string{"", "recovered"},
	}
	g := newTestGenerator(llm)

	ans, err := g.Generate(context.Background(), "q", testContext())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if llm.calls != 2 {
		t.Errorf("llm called %d times, want 2", llm.calls)
	}
	if ans.Text != "recovered" {
		t.Errorf("Text = %q, want recovered", ans.Text)
	}
}

func TestGenerate_NonTransientFailsFast(t *testing.T) {
	llm := &fakeLLM{errs: []error{&GenerationError{Model: "m", StatusCode: 400, Message: "bad request"}}}
	g := newTestGenerator(llm)

	_, err := g.Generate(context.Background(), "q", testContext())
	if err == nil {
		t.Fatal("Generate() error = nil, want error")
	}
	if llm.calls != 1 {
		t.Errorf("llm called %d times, want 1", llm.calls)
	}
	if !IsGenerationError(err) {
		t.Errorf("IsGenerationError(%v) = false, want true", err)
	}
}

// slowLLM tracks how many Generate calls overlap.
type slowLLM struct {
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (s *slowLLM) Generate(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.active++
	if s.active > s.maxSeen {
		s.maxSeen = s.active
	}
	s.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	return "ok", nil
}

func (s *slowLLM) Model() string { return "fake-model" }

func TestGenerate_CapsConcurrentModelCalls(t *testing.T) {
	llm := &slowLLM{}
	g := NewGeneratorWithLLM(&config.LLMConfig{MaxRetries: 1, RequestsPerSecond: 1000, MaxInflight: 1}, llm)
	g.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Generate(context.Background(), "q", testContext()); err != nil {
				t.Errorf("Generate() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if llm.maxSeen > 1 {
		t.Errorf("concurrent model calls = %d, want at most 1", llm.maxSeen)
	}
}

func TestGenerate_RetriesExhausted(t *testing.T) {
	transient := &GenerationError{Model: "m", StatusCode: 503, Transient: true}
	llm := &fakeLLM{errs: []error{transient, transient, transient, transient}}
	g := newTestGenerator(llm)

	_, err := g.Generate(context.Background(), "q", testContext())
	if err == nil {
		t.Fatal("Generate() error = nil, want error")
	}
	if llm.calls != 3 {
		t.Errorf("llm called %d times, want 3 (initial + 2 retries)", llm.calls)
	}
	if !strings.Contains(err.Error(), "retries exhausted") {
		t.Errorf("error = %v", err)
	}
}
