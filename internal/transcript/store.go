package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/finsightlabs/callrag/internal/config"
)

// Store reads raw transcripts from the corpus directory. The layout is one
// subdirectory per ticker with .txt transcript files inside, e.g.
// Transcripts/AAPL/2020-Jul-30-AAPL.txt.
type Store struct {
	root    string
	include []string
	exclude []string
}

// NewStore creates a document store over a transcript directory.
func NewStore(cfg config.TranscriptsConfig) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("transcripts.path is required")
	}
	info, err := os.Stat(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("transcripts directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("transcripts path is not a directory: %s", cfg.Path)
	}
	include := cfg.Include
	if len(include) == 0 {
		include = []string{"*.txt"}
	}
	return &Store{root: cfg.Path, include: include, exclude: cfg.Exclude}, nil
}

// ListDocuments scans the corpus and returns every transcript with its
// metadata populated but Text left empty; use Read to load content.
// Files without a parseable date are skipped with an error entry in the
// returned slice of problems rather than failing the scan.
func (s *Store) ListDocuments() ([]Document, []error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, []error{fmt.Errorf("read transcripts dir: %w", err)}
	}

	var docs []Document
	var problems []error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ticker := strings.ToUpper(entry.Name())
		companyDir := filepath.Join(s.root, entry.Name())
		files, err := os.ReadDir(companyDir)
		if err != nil {
			problems = append(problems, fmt.Errorf("read company dir %s: %w", ticker, err))
			continue
		}
		for _, f := range files {
			if f.IsDir() || !s.matches(f.Name()) {
				continue
			}
			date, err := DateFromFilename(f.Name())
			if err != nil {
				problems = append(problems, fmt.Errorf("%s/%s: %w", ticker, f.Name(), err))
				continue
			}
			docs = append(docs, Document{
				ID:      DocumentID(ticker, f.Name()),
				Company: ticker,
				Date:    date,
				Quarter: QuarterLabel(date),
				Path:    filepath.Join(s.root, ticker, f.Name()),
			})
		}
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, problems
}

// Read loads the raw text for a document previously returned by
// ListDocuments.
func (s *Store) Read(doc *Document) error {
	path := doc.Path
	if path == "" {
		filename := strings.TrimPrefix(doc.ID, strings.ToLower(doc.Company)+"_")
		path = filepath.Join(s.root, doc.Company, filename)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read transcript %s: %w", doc.ID, err)
	}
	doc.Text = string(data)
	return nil
}

// matches applies include then exclude glob patterns to a filename.
func (s *Store) matches(name string) bool {
	included := false
	for _, pattern := range s.include {
		if ok, _ := doublestar.Match(pattern, name); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, pattern := range s.exclude {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return false
		}
	}
	return true
}
