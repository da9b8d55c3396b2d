package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/finsightlabs/callrag/internal/config"
	"github.com/finsightlabs/callrag/internal/vecindex"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

type fakeIndex struct {
	hits       []vecindex.Hit
	err        error
	lastFilter vecindex.Filter
	lastLimit  int
}

func (f *fakeIndex) EnsureCollection(ctx context.Context, dims int) error { return nil }
func (f *fakeIndex) Upsert(ctx context.Context, points []vecindex.Point) error {
	return nil
}
func (f *fakeIndex) DeleteDocument(ctx context.Context, documentID string) error { return nil }
func (f *fakeIndex) DeleteStaleRevs(ctx context.Context, documentID, keepRev string) error {
	return nil
}
func (f *fakeIndex) Search(ctx context.Context, vector []float32, filter vecindex.Filter, limit int) ([]vecindex.Hit, error) {
	f.lastFilter = filter
	f.lastLimit = limit
	return f.hits, f.err
}
func (f *fakeIndex) Close() error { return nil }

type fakeRevs map[string]string

func (f fakeRevs) CommittedRevs() (map[string]string, error) { return f, nil }

func hit(doc, rev string, score float32, dateInt int) vecindex.Hit {
	return vecindex.Hit{
		Score: score,
		Meta: vecindex.Metadata{
			ChunkID:    doc + ":0",
			DocumentID: doc,
			Company:    "AAPL",
			DateInt:    dateInt,
			Rev:        rev,
		},
	}
}

func newTestRetriever(index vecindex.Index, revs RevSource) *Retriever {
	cfg := config.RetrievalConfig{
		DefaultTopK:         5,
		MaxTopK:             12,
		BroadenStep:         3,
		SimilarityThreshold: 0.70,
		CandidateMultiplier: 3,
	}
	return New(cfg, &fakeEmbedder{vector: []float32{1, 0, 0}}, index, revs)
}

func TestRetrieve_ThresholdAndRanking(t *testing.T) {
	index := &fakeIndex{hits: []vecindex.Hit{
		hit("aapl_a", "r1", 0.95, 20200730),
		hit("aapl_b", "r1", 0.60, 20200430),
		hit("aapl_c", "r1", 0.80, 20200130),
	}}
	revs := fakeRevs{"aapl_a": "r1", "aapl_b": "r1", "aapl_c": "r1"}

	r := newTestRetriever(index, revs)
	hits, err := r.Retrieve(context.Background(), Query{Text: "revenue"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Retrieve() returned %d hits, want 2", len(hits))
	}
	if hits[0].Meta.DocumentID != "aapl_a" || hits[1].Meta.DocumentID != "aapl_c" {
		t.Errorf("wrong order: %s then %s", hits[0].Meta.DocumentID, hits[1].Meta.DocumentID)
	}
	if index.lastLimit != 36 {
		t.Errorf("search limit = %d, want 36 (ceiling x multiplier)", index.lastLimit)
	}
}

func TestRetrieve_DropsStaleRevisions(t *testing.T) {
	index := &fakeIndex{hits: []vecindex.Hit{
		hit("aapl_a", "old", 0.99, 20200730),
		hit("aapl_a", "new", 0.90, 20200730),
		hit("aapl_b", "r1", 0.85, 20200430),
	}}
	// aapl_a's committed revision is "new": the higher-scored "old" point
	// belongs to a superseded revision and must not surface.
	revs := fakeRevs{"aapl_a": "new", "aapl_b": "r1"}

	r := newTestRetriever(index, revs)
	hits, err := r.Retrieve(context.Background(), Query{Text: "revenue"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Retrieve() returned %d hits, want 2", len(hits))
	}
	for _, h := range hits {
		if h.Meta.DocumentID == "aapl_a" && h.Meta.Rev != "new" {
			t.Errorf("stale revision surfaced: %s rev %s", h.Meta.DocumentID, h.Meta.Rev)
		}
	}
}

func TestRetrieve_DropsUncommittedDocuments(t *testing.T) {
	index := &fakeIndex{hits: []vecindex.Hit{
		hit("aapl_a", "r1", 0.95, 20200730),
		hit("aapl_new", "r1", 0.90, 20200730),
	}}
	revs := fakeRevs{"aapl_a": "r1", "aapl_new": ""}

	r := newTestRetriever(index, revs)
	hits, err := r.Retrieve(context.Background(), Query{Text: "revenue"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Meta.DocumentID != "aapl_a" {
		t.Errorf("expected only committed documents, got %v", hits)
	}
}

func TestRetrieve_FilterConstruction(t *testing.T) {
	index := &fakeIndex{}
	r := newTestRetriever(index, fakeRevs{})

	_, err := r.Retrieve(context.Background(), Query{
		Text:      "revenue",
		Companies: []string{"aapl", "MSFT"},
		DateFrom:  "2020-01-01",
		DateTo:    "2020-12-31",
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(index.lastFilter.Companies) != 2 || index.lastFilter.Companies[0] != "AAPL" {
		t.Errorf("filter companies = %v", index.lastFilter.Companies)
	}
	if index.lastFilter.DateFrom != 20200101 || index.lastFilter.DateTo != 20201231 {
		t.Errorf("filter dates = %d..%d", index.lastFilter.DateFrom, index.lastFilter.DateTo)
	}
}

func TestRetrieve_UnknownTickerIsNotRejected(t *testing.T) {
	index := &fakeIndex{}
	r := newTestRetriever(index, fakeRevs{})

	// Tickers outside the known set are warned about but still filter;
	// they simply match nothing unless such a company was indexed.
	_, err := r.Retrieve(context.Background(), Query{
		Text:      "revenue",
		Companies: []string{"zzzz"},
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(index.lastFilter.Companies) != 1 || index.lastFilter.Companies[0] != "ZZZZ" {
		t.Errorf("filter companies = %v, want [ZZZZ]", index.lastFilter.Companies)
	}
}

func TestRetrieve_InvalidInput(t *testing.T) {
	r := newTestRetriever(&fakeIndex{}, fakeRevs{})

	tests := []struct {
		name  string
		query Query
	}{
		{"empty text", Query{Text: "  "}},
		{"bad date_from", Query{Text: "q", DateFrom: "July 2020"}},
		{"bad date_to", Query{Text: "q", DateTo: "2020/12/31"}},
		{"inverted range", Query{Text: "q", DateFrom: "2020-12-31", DateTo: "2020-01-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Retrieve(context.Background(), tt.query); err == nil {
				t.Error("Retrieve() error = nil, want error")
			}
		})
	}
}

func TestRetrieve_UnavailableIndex(t *testing.T) {
	index := &fakeIndex{err: &vecindex.UnavailableError{Err: errors.New("connection refused")}}
	r := newTestRetriever(index, fakeRevs{})

	_, err := r.Retrieve(context.Background(), Query{Text: "revenue"})
	if err == nil {
		t.Fatal("Retrieve() error = nil, want UnavailableError")
	}
	if !vecindex.IsUnavailable(err) {
		t.Errorf("IsUnavailable(%v) = false, want true", err)
	}
}

func TestRetrieve_EmptyResultIsNotError(t *testing.T) {
	index := &fakeIndex{}
	r := newTestRetriever(index, fakeRevs{})

	hits, err := r.Retrieve(context.Background(), Query{Text: "revenue", DateFrom: "1990-01-01", DateTo: "1990-12-31"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("Retrieve() = %d hits, want 0", len(hits))
	}
}
