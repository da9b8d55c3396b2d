// Package retrieval turns a question into a ranked set of transcript
// chunks: query embedding, metadata pre-filter, similarity threshold,
// and a deterministic dynamic result count.
package retrieval

import (
	"regexp"
	"sort"
	"strings"

	"github.com/finsightlabs/callrag/internal/config"
	"github.com/finsightlabs/callrag/internal/vecindex"
)

// Policy holds the pure ranking parameters. All of its methods are
// deterministic functions of their inputs.
type Policy struct {
	DefaultTopK int
	MaxTopK     int
	BroadenStep int
	Threshold   float32
}

// NewPolicy builds a policy from configuration, applying defaults for
// unset values.
func NewPolicy(cfg config.RetrievalConfig) Policy {
	p := Policy{
		DefaultTopK: cfg.DefaultTopK,
		MaxTopK:     cfg.MaxTopK,
		BroadenStep: cfg.BroadenStep,
		Threshold:   cfg.SimilarityThreshold,
	}
	if p.DefaultTopK <= 0 {
		p.DefaultTopK = 5
	}
	if p.MaxTopK <= 0 {
		p.MaxTopK = 12
	}
	if p.BroadenStep < 0 {
		p.BroadenStep = 0
	}
	if p.Threshold <= 0 {
		p.Threshold = 0.70
	}
	return p
}

var comparativeRe = regexp.MustCompile(`(?i)\b(compare[sd]?|comparison|versus|vs\.?|trend|trends|over time|year over year|quarter over quarter)\b`)

// IsComparative reports whether a query asks to relate multiple
// companies or periods. Such queries get a broader result count so each
// side of the comparison is represented.
func IsComparative(query string, companies int) bool {
	if companies >= 2 {
		return true
	}
	return comparativeRe.MatchString(query)
}

// CutByThreshold drops candidates below the similarity threshold.
func (p Policy) CutByThreshold(hits []vecindex.Hit) []vecindex.Hit {
	kept := make([]vecindex.Hit, 0, len(hits))
	for _, h := range hits {
		if h.Score >= p.Threshold {
			kept = append(kept, h)
		}
	}
	return kept
}

// DynamicK computes the result count for a query. The base count
// shrinks to the number of surviving candidates, grows by the broaden
// step for comparative queries, and never exceeds the ceiling. A
// positive maxResults caps the count below the ceiling.
func (p Policy) DynamicK(query string, companies, surviving, maxResults int) int {
	k := p.DefaultTopK
	if IsComparative(query, companies) {
		k += p.BroadenStep
	}
	if k > p.MaxTopK {
		k = p.MaxTopK
	}
	if maxResults > 0 && maxResults < k {
		k = maxResults
	}
	if surviving < k {
		k = surviving
	}
	if k < 0 {
		k = 0
	}
	return k
}

// SortHits orders candidates by descending similarity. Equal scores
// break toward the earlier call date and then the lower chunk id so
// rankings are stable across runs.
func SortHits(hits []vecindex.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Meta.DateInt != b.Meta.DateInt {
			return a.Meta.DateInt < b.Meta.DateInt
		}
		if a.Meta.DocumentID != b.Meta.DocumentID {
			return a.Meta.DocumentID < b.Meta.DocumentID
		}
		return a.Meta.Seq < b.Meta.Seq
	})
}

// NormalizeCompanies uppercases and deduplicates ticker filters,
// preserving first-seen order.
func NormalizeCompanies(companies []string) []string {
	seen := make(map[string]bool, len(companies))
	out := make([]string, 0, len(companies))
	for _, c := range companies {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
