package transcript

import (
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// TextIndex is a keyword index over raw transcripts used by the operator
// grep command. It sits outside the query read path; semantic retrieval
// never consults it.
type TextIndex struct {
	index bleve.Index
}

type textDoc struct {
	Company string `json:"company"`
	Date    string `json:"date"`
	Quarter string `json:"quarter"`
	Content string `json:"content"`
}

// TextHit is a single keyword match.
type TextHit struct {
	DocumentID string
	Company    string
	Date       string
	Quarter    string
	Score      float64
}

// CreateTextIndex resets and creates the keyword index directory.
func CreateTextIndex(dir string) (*TextIndex, error) {
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("reset text index dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create text index dir: %w", err)
	}
	index, err := bleve.New(dir, buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return &TextIndex{index: index}, nil
}

// OpenTextIndex opens an existing keyword index.
func OpenTextIndex(dir string) (*TextIndex, error) {
	index, err := bleve.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open bleve index: %w", err)
	}
	return &TextIndex{index: index}, nil
}

// IndexDocument adds or replaces one transcript in the keyword index.
func (t *TextIndex) IndexDocument(doc Document) error {
	return t.index.Index(doc.ID, textDoc{
		Company: doc.Company,
		Date:    doc.Date.Format("2006-01-02"),
		Quarter: doc.Quarter,
		Content: doc.Text,
	})
}

// Delete removes a transcript from the keyword index.
func (t *TextIndex) Delete(documentID string) error {
	return t.index.Delete(documentID)
}

// Search runs a keyword query, optionally restricted to one company.
func (t *TextIndex) Search(query, company string, topK int) ([]TextHit, error) {
	if topK <= 0 {
		topK = 10
	}

	contentQuery := bleve.NewMatchQuery(query)
	contentQuery.SetField("content")

	var q blevequery.Query = contentQuery
	if company != "" {
		companyQuery := bleve.NewTermQuery(company)
		companyQuery.SetField("company")
		q = bleve.NewConjunctionQuery(contentQuery, companyQuery)
	}

	req := bleve.NewSearchRequestOptions(q, topK, 0, false)
	req.Fields = []string{"company", "date", "quarter"}

	res, err := t.index.Search(req)
	if err != nil {
		return nil, err
	}

	var hits []TextHit
	for _, hit := range res.Hits {
		company, _ := hit.Fields["company"].(string)
		date, _ := hit.Fields["date"].(string)
		quarter, _ := hit.Fields["quarter"].(string)
		hits = append(hits, TextHit{
			DocumentID: hit.ID,
			Company:    company,
			Date:       date,
			Quarter:    quarter,
			Score:      hit.Score,
		})
	}
	return hits, nil
}

// DocCount returns the number of indexed transcripts.
func (t *TextIndex) DocCount() (uint64, error) {
	return t.index.DocCount()
}

// Close releases the index.
func (t *TextIndex) Close() error {
	return t.index.Close()
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = "en"
	indexMapping.DefaultField = "content"

	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	contentField.Store = false
	contentField.Index = true
	docMapping.AddFieldMappingsAt("content", contentField)

	companyField := bleve.NewTextFieldMapping()
	companyField.Store = true
	companyField.Index = true
	companyField.Analyzer = "keyword"
	docMapping.AddFieldMappingsAt("company", companyField)

	dateField := bleve.NewTextFieldMapping()
	dateField.Store = true
	dateField.Index = false
	docMapping.AddFieldMappingsAt("date", dateField)

	quarterField := bleve.NewTextFieldMapping()
	quarterField.Store = true
	quarterField.Index = false
	docMapping.AddFieldMappingsAt("quarter", quarterField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}
