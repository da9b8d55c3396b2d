package retrieval

import (
	"testing"

	"github.com/finsightlabs/callrag/internal/config"
	"github.com/finsightlabs/callrag/internal/vecindex"
)

func testPolicy() Policy {
	return NewPolicy(config.RetrievalConfig{
		DefaultTopK:         5,
		MaxTopK:             12,
		BroadenStep:         3,
		SimilarityThreshold: 0.70,
	})
}

func TestIsComparative(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		companies int
		want      bool
	}{
		{"plain question", "What did Apple say about revenue?", 1, false},
		{"two companies", "What was said about revenue?", 2, true},
		{"compare wording", "Compare Apple and Microsoft cloud revenue", 0, true},
		{"versus wording", "AAPL versus MSFT on margins", 1, true},
		{"vs abbreviation", "AAPL vs MSFT", 1, true},
		{"trend wording", "What is the revenue trend?", 1, true},
		{"over time", "How did guidance change over time?", 0, true},
		{"word containing vs", "Was the investment worthwhile?", 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsComparative(tt.query, tt.companies); got != tt.want {
				t.Errorf("IsComparative(%q, %d) = %v, want %v", tt.query, tt.companies, got, tt.want)
			}
		})
	}
}

func TestDynamicK(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		name       string
		query      string
		companies  int
		surviving  int
		maxResults int
		want       int
	}{
		{"base default", "revenue question", 1, 100, 0, 5},
		{"shrinks to survivors", "revenue question", 1, 2, 0, 2},
		{"zero survivors", "revenue question", 1, 0, 0, 0},
		{"comparative broadens", "compare revenue", 2, 100, 0, 8},
		{"ceiling holds", "compare revenue", 2, 100, 100, 8},
		{"explicit cap", "revenue question", 1, 100, 3, 3},
		{"cap above default ignored", "revenue question", 1, 100, 9, 5},
		{"cap never exceeds ceiling", "compare revenue", 2, 100, 50, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.DynamicK(tt.query, tt.companies, tt.surviving, tt.maxResults)
			if got != tt.want {
				t.Errorf("DynamicK() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDynamicK_CeilingWithLargeBroadenStep(t *testing.T) {
	p := NewPolicy(config.RetrievalConfig{DefaultTopK: 10, MaxTopK: 12, BroadenStep: 6})
	if got := p.DynamicK("compare everything", 3, 100, 0); got != 12 {
		t.Errorf("DynamicK() = %d, want ceiling 12", got)
	}
}

func TestCutByThreshold(t *testing.T) {
	p := testPolicy()
	hits := []vecindex.Hit{
		{Score: 0.95, Meta: vecindex.Metadata{ChunkID: "a:0"}},
		{Score: 0.70, Meta: vecindex.Metadata{ChunkID: "a:1"}},
		{Score: 0.69, Meta: vecindex.Metadata{ChunkID: "a:2"}},
		{Score: 0.10, Meta: vecindex.Metadata{ChunkID: "a:3"}},
	}

	kept := p.CutByThreshold(hits)
	if len(kept) != 2 {
		t.Fatalf("CutByThreshold() kept %d, want 2", len(kept))
	}
	if kept[0].Meta.ChunkID != "a:0" || kept[1].Meta.ChunkID != "a:1" {
		t.Errorf("CutByThreshold() kept wrong hits: %v", kept)
	}
}

func TestSortHits_TieBreak(t *testing.T) {
	hits := []vecindex.Hit{
		{Score: 0.8, Meta: vecindex.Metadata{DocumentID: "msft_b", DateInt: 20200401, Seq: 0}},
		{Score: 0.8, Meta: vecindex.Metadata{DocumentID: "aapl_a", DateInt: 20200101, Seq: 3}},
		{Score: 0.9, Meta: vecindex.Metadata{DocumentID: "nvda_c", DateInt: 20201001, Seq: 1}},
		{Score: 0.8, Meta: vecindex.Metadata{DocumentID: "aapl_a", DateInt: 20200101, Seq: 1}},
	}

	SortHits(hits)

	wantOrder := []struct {
		doc string
		seq int
	}{
		{"nvda_c", 1},
		{"aapl_a", 1},
		{"aapl_a", 3},
		{"msft_b", 0},
	}
	for i, want := range wantOrder {
		if hits[i].Meta.DocumentID != want.doc || hits[i].Meta.Seq != want.seq {
			t.Errorf("position %d = %s:%d, want %s:%d",
				i, hits[i].Meta.DocumentID, hits[i].Meta.Seq, want.doc, want.seq)
		}
	}
}

func TestNormalizeCompanies(t *testing.T) {
	got := NormalizeCompanies([]string{" aapl", "MSFT", "aapl", "", "msft "})
	want := []string{"AAPL", "MSFT"}
	if len(got) != len(want) {
		t.Fatalf("NormalizeCompanies() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NormalizeCompanies()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
