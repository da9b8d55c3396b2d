// Package assemble builds the prompt context from retrieved chunks:
// overlap dedupe, budget truncation, and a source list aligned with the
// numbered excerpts.
package assemble

import (
	"fmt"
	"sort"
	"strings"

	"github.com/finsightlabs/callrag/internal/config"
	"github.com/finsightlabs/callrag/internal/vecindex"
)

// Source identifies where one excerpt came from. Sources[i] corresponds
// to excerpt [i+1] in the rendered context.
type Source struct {
	DocumentID string
	Company    string
	Date       string
	Quarter    string
	Score      float32
}

// Context is the assembled prompt context.
type Context struct {
	Text      string
	Sources   []Source
	Truncated bool // chunks were dropped to fit the budget
}

// Empty reports whether no excerpts survived assembly.
func (c Context) Empty() bool {
	return len(c.Sources) == 0
}

// Assembler renders retrieval hits into a bounded context block.
type Assembler struct {
	budgetChars int
}

// New creates an assembler from configuration.
func New(cfg config.ContextConfig) *Assembler {
	budget := cfg.BudgetChars
	if budget <= 0 {
		budget = 8000
	}
	return &Assembler{budgetChars: budget}
}

// Assemble deduplicates overlapping chunks, fits the survivors into the
// character budget by descending score, and renders them ordered by
// company and call date. The top-scored chunk is always included even
// when it alone exceeds the budget.
func (a *Assembler) Assemble(hits []vecindex.Hit) Context {
	if len(hits) == 0 {
		return Context{}
	}

	byScore := make([]vecindex.Hit, len(hits))
	copy(byScore, hits)
	sort.SliceStable(byScore, func(i, j int) bool { return byScore[i].Score > byScore[j].Score })

	deduped := dedupeOverlaps(byScore)
	selected, truncated := a.fitBudget(deduped)

	// Presentation order groups excerpts by company and walks each
	// company's calls chronologically.
	sort.SliceStable(selected, func(i, j int) bool {
		a, b := selected[i].Meta, selected[j].Meta
		if a.Company != b.Company {
			return a.Company < b.Company
		}
		if a.DateInt != b.DateInt {
			return a.DateInt < b.DateInt
		}
		return a.Seq < b.Seq
	})

	var sb strings.Builder
	sources := make([]Source, 0, len(selected))
	for i, h := range selected {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(excerptHeader(i+1, h.Meta))
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(h.Meta.Text))
		sources = append(sources, Source{
			DocumentID: h.Meta.DocumentID,
			Company:    h.Meta.Company,
			Date:       h.Meta.Date,
			Quarter:    h.Meta.Quarter,
			Score:      h.Score,
		})
	}
	return Context{Text: sb.String(), Sources: sources, Truncated: truncated}
}

func excerptHeader(n int, m vecindex.Metadata) string {
	return fmt.Sprintf("[%d] %s | %s | %s", n, m.Company, m.Quarter, m.Date)
}

// dedupeOverlaps drops chunks whose character span overlaps a
// higher-scored chunk from the same document. Input must be sorted by
// descending score.
func dedupeOverlaps(hits []vecindex.Hit) []vecindex.Hit {
	type span struct{ start, end int }
	kept := make([]vecindex.Hit, 0, len(hits))
	spans := make(map[string][]span)
	for _, h := range hits {
		overlaps := false
		for _, s := range spans[h.Meta.DocumentID] {
			if h.Meta.Start < s.end && s.start < h.Meta.End {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		kept = append(kept, h)
		spans[h.Meta.DocumentID] = append(spans[h.Meta.DocumentID], span{h.Meta.Start, h.Meta.End})
	}
	return kept
}

// fitBudget greedily keeps chunks by descending score until the budget
// is spent. Input must be sorted by descending score.
func (a *Assembler) fitBudget(hits []vecindex.Hit) ([]vecindex.Hit, bool) {
	var selected []vecindex.Hit
	used := 0
	truncated := false
	for i, h := range hits {
		// Header plus separator overhead per excerpt, estimated against
		// the widest header this corpus produces.
		cost := len(strings.TrimSpace(h.Meta.Text)) + 40
		if i > 0 && used+cost > a.budgetChars {
			truncated = true
			continue
		}
		selected = append(selected, h)
		used += cost
	}
	return selected, truncated
}
