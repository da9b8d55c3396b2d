// Package rag wires the pipeline together and exposes the boundary
// operations: Query, Ingest, IngestDir, IndexStatus, and corpus stats.
package rag

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finsightlabs/callrag/internal/answer"
	"github.com/finsightlabs/callrag/internal/assemble"
	"github.com/finsightlabs/callrag/internal/chunker"
	"github.com/finsightlabs/callrag/internal/config"
	"github.com/finsightlabs/callrag/internal/embedding"
	"github.com/finsightlabs/callrag/internal/indexer"
	"github.com/finsightlabs/callrag/internal/retrieval"
	"github.com/finsightlabs/callrag/internal/store"
	"github.com/finsightlabs/callrag/internal/transcript"
	"github.com/finsightlabs/callrag/internal/vecindex"
)

// QuerySpec is one question against the indexed corpus.
type QuerySpec struct {
	Question   string
	Companies  []string // ticker filter, empty means all
	DateFrom   string   // "2006-01-02" inclusive, empty means unbounded
	DateTo     string   // "2006-01-02" inclusive, empty means unbounded
	MaxResults int      // optional result cap
}

// QueryResult is the answer with its provenance.
type QueryResult struct {
	RequestID string
	Answer    string
	Sources   []assemble.Source
	Truncated bool
	Model     string // empty when the no-context short-circuit fired
	Elapsed   time.Duration
}

// Pipeline owns every component of the system and exposes the boundary
// operations. Safe for concurrent use.
type Pipeline struct {
	cfg       *config.Config
	db        *store.DB
	docs      *store.DocumentStore
	status    *store.StatusStore
	index     vecindex.Index
	embedder  *embedding.Service
	retriever *retrieval.Retriever
	assembler *assemble.Assembler
	generator *answer.Generator
	indexer   *indexer.Indexer

	mu          sync.Mutex
	transcripts *transcript.Store // created on first ingest
}

// queryTimeout bounds one Query end to end: embedding, search, and the
// model call share it.
const queryTimeout = 120 * time.Second

// New builds a pipeline from configuration.
func New(cfg *config.Config) (*Pipeline, error) {
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	index, err := openIndex(cfg.Vector)
	if err != nil {
		db.Close()
		return nil, err
	}

	embedder, err := embedding.NewService(&cfg.Embedding)
	if err != nil {
		db.Close()
		index.Close()
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	generator, err := answer.NewGenerator(&cfg.LLM)
	if err != nil {
		db.Close()
		index.Close()
		return nil, err
	}

	docs := store.NewDocumentStore(db)
	status := store.NewStatusStore(db)
	ch := chunker.New(cfg.Chunker.MaxChars, cfg.Chunker.OverlapChars)

	return &Pipeline{
		cfg:       cfg,
		db:        db,
		docs:      docs,
		status:    status,
		index:     index,
		embedder:  embedder,
		retriever: retrieval.New(cfg.Retrieval, embedder, index, docs),
		assembler: assemble.New(cfg.Context),
		generator: generator,
		indexer:   indexer.New(cfg.Indexer, ch, embedder, index, docs, status),
	}, nil
}

// transcriptStore opens the transcript directory on first use so the
// query path works without one configured.
func (p *Pipeline) transcriptStore() (*transcript.Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.transcripts == nil {
		ts, err := transcript.NewStore(p.cfg.Transcripts)
		if err != nil {
			return nil, err
		}
		p.transcripts = ts
	}
	return p.transcripts, nil
}

func openIndex(cfg config.VectorConfig) (vecindex.Index, error) {
	switch cfg.Backend {
	case "qdrant":
		return vecindex.NewQdrantIndex(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.Collection)
	case "local", "":
		return vecindex.NewLocalIndex(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported vector backend: %s", cfg.Backend)
	}
}

// Close releases the pipeline's resources.
func (p *Pipeline) Close() error {
	var firstErr error
	if err := p.index.Close(); err != nil {
		firstErr = err
	}
	if err := p.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Query answers a question from the indexed corpus. An empty retrieval
// result is not an error; it yields the fixed insufficient-information
// answer with no sources. An unreachable vector index is an error.
func (p *Pipeline) Query(ctx context.Context, spec QuerySpec) (*QueryResult, error) {
	requestID := uuid.NewString()
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	hits, err := p.retriever.Retrieve(ctx, retrieval.Query{
		Text:       spec.Question,
		Companies:  spec.Companies,
		DateFrom:   spec.DateFrom,
		DateTo:     spec.DateTo,
		MaxResults: spec.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", requestID, err)
	}
	log.Printf("Request %s retrieved %d chunks", requestID, len(hits))

	assembled := p.assembler.Assemble(hits)
	ans, err := p.generator.Generate(ctx, spec.Question, assembled)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", requestID, err)
	}

	return &QueryResult{
		RequestID: requestID,
		Answer:    ans.Text,
		Sources:   ans.Sources,
		Truncated: assembled.Truncated,
		Model:     ans.Model,
		Elapsed:   time.Since(startTime),
	}, nil
}

// Ingest indexes one transcript. The document's text is read from disk
// when not already loaded.
func (p *Pipeline) Ingest(ctx context.Context, doc transcript.Document) error {
	if doc.Text == "" {
		ts, err := p.transcriptStore()
		if err != nil {
			return err
		}
		if err := ts.Read(&doc); err != nil {
			return err
		}
	}
	return p.indexer.IndexDocument(ctx, doc)
}

// IngestDir scans the transcript directory and indexes every matching
// file in parallel. Scan problems are returned alongside the per-document
// results.
func (p *Pipeline) IngestDir(ctx context.Context, progress func(indexer.DocResult)) ([]indexer.DocResult, []error) {
	ts, err := p.transcriptStore()
	if err != nil {
		return nil, []error{err}
	}
	docs, problems := ts.ListDocuments()
	loaded := make([]transcript.Document, 0, len(docs))
	for i := range docs {
		if err := ts.Read(&docs[i]); err != nil {
			problems = append(problems, err)
			continue
		}
		loaded = append(loaded, docs[i])
	}
	results := p.indexer.IndexAll(ctx, loaded, progress)
	return results, problems
}

// Delete removes a document from the index, the registry, and the
// status table. The source file on disk is untouched.
func (p *Pipeline) Delete(ctx context.Context, documentID string) error {
	return p.indexer.DeleteDocument(ctx, documentID)
}

// IndexStatus reports a document's indexing state. Returns nil when the
// document was never submitted.
func (p *Pipeline) IndexStatus(ctx context.Context, documentID string) (*store.IndexStatus, error) {
	return p.status.Get(documentID)
}

// StatusCounts returns the number of documents in each indexing state.
func (p *Pipeline) StatusCounts() (map[string]int, error) {
	return p.status.CountByState()
}

// Statuses returns every document's indexing state.
func (p *Pipeline) Statuses() ([]store.IndexStatus, error) {
	return p.status.List()
}

// Stats aggregates the committed corpus per company.
func (p *Pipeline) Stats() ([]store.CompanyStats, error) {
	return p.docs.Stats()
}

// Documents lists every registered document.
func (p *Pipeline) Documents() ([]store.Document, error) {
	return p.docs.List()
}

// Transcripts exposes the transcript file store for CLI tooling.
func (p *Pipeline) Transcripts() (*transcript.Store, error) {
	return p.transcriptStore()
}
