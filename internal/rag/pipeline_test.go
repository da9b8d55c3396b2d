package rag

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/finsightlabs/callrag/internal/answer"
	"github.com/finsightlabs/callrag/internal/assemble"
	"github.com/finsightlabs/callrag/internal/chunker"
	"github.com/finsightlabs/callrag/internal/config"
	"github.com/finsightlabs/callrag/internal/indexer"
	"github.com/finsightlabs/callrag/internal/retrieval"
	"github.com/finsightlabs/callrag/internal/store"
	"github.com/finsightlabs/callrag/internal/transcript"
	"github.com/finsightlabs/callrag/internal/vecindex"
)

// fakeEmbedder returns the same unit vector for every text, so every
// indexed chunk matches every query with cosine similarity 1.
type fakeEmbedder struct{ dims int }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, f.dims)
	vec[0] = 1
	return vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i], _ = f.Embed(ctx, texts[i])
	}
	return vecs, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }

type fakeLLM struct {
	calls    int
	response string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.response, nil
}

func (f *fakeLLM) Model() string { return "fake-model" }

func newTestPipeline(t *testing.T, llm answer.LLM) *Pipeline {
	t.Helper()
	dir := t.TempDir()

	db, err := store.Open(filepath.Join(dir, "callrag.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	index, err := vecindex.NewLocalIndex(filepath.Join(dir, "vectors"))
	if err != nil {
		t.Fatalf("NewLocalIndex() error = %v", err)
	}

	fe := &fakeEmbedder{dims: 4}
	docs := store.NewDocumentStore(db)
	status := store.NewStatusStore(db)
	ch := chunker.New(512, 64)

	p := &Pipeline{
		cfg:       &config.Config{},
		db:        db,
		docs:      docs,
		status:    status,
		index:     index,
		retriever: retrieval.New(config.RetrievalConfig{}, fe, index, docs),
		assembler: assemble.New(config.ContextConfig{BudgetChars: 8000}),
		generator: answer.NewGeneratorWithLLM(&config.LLMConfig{MaxRetries: 1, RequestsPerSecond: 1000, MaxInflight: 2}, llm),
		indexer:   indexer.New(config.IndexerConfig{MaxWorkers: 2}, ch, fe, index, docs, status),
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func pipelineDoc(filename string, date time.Time, quarter, text string) transcript.Document {
	return transcript.Document{
		ID:      transcript.DocumentID("AAPL", filename),
		Company: "AAPL",
		Date:    date,
		Quarter: quarter,
		Path:    "/transcripts/AAPL/" + filename,
		Text:    text,
	}
}

func ingestCorpus(t *testing.T, p *Pipeline) (doc2020, doc2019 transcript.Document) {
	t.Helper()
	doc2020 = pipelineDoc("2020-Jul-30.txt",
		time.Date(2020, 7, 30, 0, 0, 0, 0, time.UTC), "Q3 2020",
		"Services revenue set an all-time record this quarter. Wearables also grew strongly.")
	doc2019 = pipelineDoc("2019-Jul-30.txt",
		time.Date(2019, 7, 30, 0, 0, 0, 0, time.UTC), "Q3 2019",
		"Services revenue grew modestly last year. iPhone demand softened in several markets.")

	ctx := context.Background()
	if err := p.Ingest(ctx, doc2020); err != nil {
		t.Fatalf("Ingest(2020) error = %v", err)
	}
	if err := p.Ingest(ctx, doc2019); err != nil {
		t.Fatalf("Ingest(2019) error = %v", err)
	}
	return doc2020, doc2019
}

func TestQuery_DateWindowCitesOnlyMatchingDocuments(t *testing.T) {
	llm := &fakeLLM{response: "Services revenue set a record [1]."}
	p := newTestPipeline(t, llm)
	doc2020, doc2019 := ingestCorpus(t, p)

	res, err := p.Query(context.Background(), QuerySpec{
		Question:  "How did services revenue develop?",
		Companies: []string{"AAPL"},
		DateFrom:  "2020-01-01",
		DateTo:    "2020-12-31",
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	if res.RequestID == "" {
		t.Error("RequestID is empty")
	}
	if res.Model != "fake-model" {
		t.Errorf("Model = %q, want fake-model", res.Model)
	}
	if res.Answer != llm.response {
		t.Errorf("Answer = %q", res.Answer)
	}
	if len(res.Sources) == 0 {
		t.Fatal("Query() returned no sources")
	}
	for _, src := range res.Sources {
		if src.DocumentID != doc2020.ID {
			t.Errorf("source %s outside the date window", src.DocumentID)
		}
		if src.DocumentID == doc2019.ID {
			t.Errorf("2019 document cited despite 2020 filter")
		}
		if !strings.HasPrefix(src.Date, "2020") {
			t.Errorf("source date = %q, want a 2020 date", src.Date)
		}
	}
}

func TestQuery_EmptyWindowShortCircuits(t *testing.T) {
	llm := &fakeLLM{response: "should never be used"}
	p := newTestPipeline(t, llm)
	ingestCorpus(t, p)

	question := "How did services revenue develop?"
	res, err := p.Query(context.Background(), QuerySpec{
		Question: question,
		DateFrom: "2021-01-01",
		DateTo:   "2021-12-31",
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	if llm.calls != 0 {
		t.Errorf("llm called %d times for an empty window, want 0", llm.calls)
	}
	if res.Model != "" {
		t.Errorf("Model = %q, want empty for short-circuit", res.Model)
	}
	if len(res.Sources) != 0 {
		t.Errorf("Sources = %v, want none", res.Sources)
	}
	if !strings.Contains(res.Answer, question) {
		t.Errorf("short-circuit answer does not echo the question: %q", res.Answer)
	}
}
