package retrieval

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/finsightlabs/callrag/internal/config"
	"github.com/finsightlabs/callrag/internal/transcript"
	"github.com/finsightlabs/callrag/internal/vecindex"
)

// Embedder produces the query vector. Must be the same model the index
// was built with.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RevSource reports the committed content revision per document id.
type RevSource interface {
	CommittedRevs() (map[string]string, error)
}

// Query is one retrieval request.
type Query struct {
	Text       string
	Companies  []string // ticker filter, empty means all
	DateFrom   string   // "2006-01-02" inclusive, empty means unbounded
	DateTo     string   // "2006-01-02" inclusive, empty means unbounded
	MaxResults int      // optional cap, 0 means policy default
}

// Retriever runs filtered similarity search over the vector index and
// applies the ranking policy.
type Retriever struct {
	embedder   Embedder
	index      vecindex.Index
	revs       RevSource
	policy     Policy
	multiplier int
}

// New creates a retriever.
func New(cfg config.RetrievalConfig, embedder Embedder, index vecindex.Index, revs RevSource) *Retriever {
	multiplier := cfg.CandidateMultiplier
	if multiplier <= 0 {
		multiplier = 3
	}
	return &Retriever{
		embedder:   embedder,
		index:      index,
		revs:       revs,
		policy:     NewPolicy(cfg),
		multiplier: multiplier,
	}
}

// Retrieve returns the ranked chunks for a query. An empty result is
// not an error; index unavailability is, and callers must not treat the
// two alike.
func (r *Retriever) Retrieve(ctx context.Context, q Query) ([]vecindex.Hit, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("query text is required")
	}
	filter, err := buildFilter(q)
	if err != nil {
		return nil, err
	}

	vector, err := r.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// Oversample so the threshold cut and stale-revision drop still
	// leave enough candidates for the ceiling.
	candidates, err := r.index.Search(ctx, vector, filter, r.policy.MaxTopK*r.multiplier)
	if err != nil {
		return nil, err
	}

	candidates, err = r.dropStaleRevs(candidates)
	if err != nil {
		return nil, err
	}

	hits := r.policy.CutByThreshold(candidates)
	SortHits(hits)

	k := r.policy.DynamicK(q.Text, len(filter.Companies), len(hits), q.MaxResults)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// dropStaleRevs removes hits whose revision is not the committed one
// for their document. During an in-flight replace both revisions exist
// in the index; only the committed one is visible to readers.
func (r *Retriever) dropStaleRevs(hits []vecindex.Hit) ([]vecindex.Hit, error) {
	if len(hits) == 0 {
		return hits, nil
	}
	committed, err := r.revs.CommittedRevs()
	if err != nil {
		return nil, fmt.Errorf("failed to load committed revisions: %w", err)
	}
	kept := hits[:0]
	for _, h := range hits {
		rev, ok := committed[h.Meta.DocumentID]
		if !ok || rev == "" || rev != h.Meta.Rev {
			continue
		}
		kept = append(kept, h)
	}
	return kept, nil
}

func buildFilter(q Query) (vecindex.Filter, error) {
	filter := vecindex.Filter{Companies: NormalizeCompanies(q.Companies)}
	// Unknown tickers are kept: the corpus may cover companies outside
	// the known set. They still match nothing unless indexed.
	for _, c := range filter.Companies {
		if !transcript.IsKnownTicker(c) {
			log.Printf("Warning: company filter includes unknown ticker %q", c)
		}
	}
	if q.DateFrom != "" {
		from := vecindex.DateToInt(q.DateFrom)
		if from == 0 {
			return vecindex.Filter{}, fmt.Errorf("invalid date_from %q, want YYYY-MM-DD", q.DateFrom)
		}
		filter.DateFrom = from
	}
	if q.DateTo != "" {
		to := vecindex.DateToInt(q.DateTo)
		if to == 0 {
			return vecindex.Filter{}, fmt.Errorf("invalid date_to %q, want YYYY-MM-DD", q.DateTo)
		}
		filter.DateTo = to
	}
	if filter.DateFrom > 0 && filter.DateTo > 0 && filter.DateFrom > filter.DateTo {
		return vecindex.Filter{}, fmt.Errorf("date_from %q is after date_to %q", q.DateFrom, q.DateTo)
	}
	return filter, nil
}
