// Package indexer drives the write path: chunk a transcript, embed the
// chunks, and publish them to the vector index under a content revision
// that is committed atomically.
package indexer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/finsightlabs/callrag/internal/chunker"
	"github.com/finsightlabs/callrag/internal/config"
	"github.com/finsightlabs/callrag/internal/store"
	"github.com/finsightlabs/callrag/internal/transcript"
	"github.com/finsightlabs/callrag/internal/vecindex"
)

// Embedder is the embedding capability the indexer needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Indexer indexes transcripts into the vector index and metadata store.
type Indexer struct {
	chunker    *chunker.Chunker
	embedder   Embedder
	index      vecindex.Index
	docs       *store.DocumentStore
	status     *store.StatusStore
	maxWorkers int
	maxRetries int

	ensureOnce sync.Once
	ensureErr  error

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an indexer.
func New(cfg config.IndexerConfig, ch *chunker.Chunker, embedder Embedder, index vecindex.Index, docs *store.DocumentStore, status *store.StatusStore) *Indexer {
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &Indexer{
		chunker:    ch,
		embedder:   embedder,
		index:      index,
		docs:       docs,
		status:     status,
		maxWorkers: maxWorkers,
		maxRetries: 3,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Revision derives the content revision of a transcript. Same text,
// same revision, so unchanged documents are skipped on re-ingest.
func Revision(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// IndexDocument chunks, embeds, and publishes one transcript. Concurrent
// calls for the same document serialize on a per-document lock; distinct
// documents proceed in parallel.
//
// Replacement is atomic from the reader's point of view: new-revision
// points are upserted first, then the committed revision flips in one
// database update, then stale points are removed. Until the flip,
// queries keep resolving the old revision.
func (ix *Indexer) IndexDocument(ctx context.Context, doc transcript.Document) error {
	lock := ix.docLock(doc.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := ix.ensureCollection(ctx); err != nil {
		return err
	}

	rev := Revision(doc.Text)
	if err := ix.docs.Upsert(&store.Document{
		ID:      doc.ID,
		Company: doc.Company,
		Date:    doc.Date.Format("2006-01-02"),
		Quarter: doc.Quarter,
		Path:    doc.Path,
		Chars:   len(doc.Text),
	}); err != nil {
		return err
	}

	existing, err := ix.docs.Get(doc.ID)
	if err != nil {
		return err
	}
	if existing != nil && existing.CommittedRev == rev {
		log.Printf("Document %s unchanged at revision %s, skipping", doc.ID, rev[:8])
		return ix.status.MarkIndexed(doc.ID)
	}

	if err := ix.status.MarkIndexing(doc.ID); err != nil {
		return err
	}
	if err := ix.indexRevision(ctx, doc, rev); err != nil {
		if statusErr := ix.status.MarkFailed(doc.ID, err); statusErr != nil {
			log.Printf("Warning: failed to record failure for %s: %v", doc.ID, statusErr)
		}
		return err
	}
	return ix.status.MarkIndexed(doc.ID)
}

func (ix *Indexer) indexRevision(ctx context.Context, doc transcript.Document, rev string) error {
	startTime := time.Now()

	chunks, err := ix.chunker.Chunk(doc)
	if err != nil {
		return err
	}
	log.Printf("Chunked %s into %d chunks", doc.ID, len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	// A batch failure still yields the successfully embedded prefix;
	// publish it so a retry run has less to redo.
	vectors, embedErr := ix.embedder.EmbedBatch(ctx, texts)
	if len(vectors) > 0 {
		points := buildPoints(chunks[:len(vectors)], vectors, rev)
		if err := ix.upsertWithRetry(ctx, points); err != nil {
			return err
		}
	}
	if embedErr != nil {
		return fmt.Errorf("failed to embed %s: %w", doc.ID, embedErr)
	}

	if err := ix.docs.CommitRevision(doc.ID, rev, len(chunks)); err != nil {
		return err
	}
	if err := ix.index.DeleteStaleRevs(ctx, doc.ID, rev); err != nil {
		// Stale points are invisible to readers once the commit landed;
		// the next successful index of this document cleans them up.
		log.Printf("Warning: failed to remove stale points for %s: %v", doc.ID, err)
	}

	log.Printf("Indexed %s (%d chunks) in %v", doc.ID, len(chunks), time.Since(startTime))
	return nil
}

// DocResult is the outcome of one document in a batch run.
type DocResult struct {
	DocumentID string
	Err        error
}

// IndexAll indexes documents in parallel with a bounded worker pool.
// The progress callback, if set, is invoked once per finished document
// from worker goroutines.
func (ix *Indexer) IndexAll(ctx context.Context, docs []transcript.Document, progress func(DocResult)) []DocResult {
	for _, doc := range docs {
		if err := ix.status.MarkPending(doc.ID); err != nil {
			log.Printf("Warning: failed to mark %s pending: %v", doc.ID, err)
		}
	}

	jobs := make(chan transcript.Document)
	results := make(chan DocResult, len(docs))

	var wg sync.WaitGroup
	for w := 0; w < ix.maxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for doc := range jobs {
				err := ix.IndexDocument(ctx, doc)
				res := DocResult{DocumentID: doc.ID, Err: err}
				if progress != nil {
					progress(res)
				}
				results <- res
			}
		}()
	}

	for _, doc := range docs {
		select {
		case jobs <- doc:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make([]DocResult, 0, len(docs))
	for res := range results {
		out = append(out, res)
	}
	return out
}

// DeleteDocument removes a document's points from the index and drops
// it from the registry and the status table.
func (ix *Indexer) DeleteDocument(ctx context.Context, documentID string) error {
	lock := ix.docLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	if err := ix.index.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if err := ix.docs.Delete(documentID); err != nil {
		return err
	}
	return ix.status.Delete(documentID)
}

func (ix *Indexer) ensureCollection(ctx context.Context) error {
	ix.ensureOnce.Do(func() {
		ix.ensureErr = ix.index.EnsureCollection(ctx, ix.embedder.Dimensions())
	})
	return ix.ensureErr
}

func (ix *Indexer) upsertWithRetry(ctx context.Context, points []vecindex.Point) error {
	var lastErr error
	for attempt := 0; attempt <= ix.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		if err := ix.index.Upsert(ctx, points); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("vector upsert retries exhausted: %w", lastErr)
}

func (ix *Indexer) docLock(id string) *sync.Mutex {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	lock, ok := ix.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		ix.locks[id] = lock
	}
	return lock
}

func buildPoints(chunks []chunker.Chunk, vectors [][]float32, rev string) []vecindex.Point {
	points := make([]vecindex.Point, len(chunks))
	for i, c := range chunks {
		meta := vecindex.Metadata{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Company:    c.Company,
			Date:       c.Date,
			DateInt:    vecindex.DateToInt(c.Date),
			Quarter:    c.Quarter,
			Seq:        c.Seq,
			Start:      c.Start,
			End:        c.End,
			Rev:        rev,
			Text:       c.Text,
		}
		points[i] = vecindex.Point{
			ID:     vecindex.PointID(c.ID, rev),
			Vector: vectors[i],
			Meta:   meta,
		}
	}
	return points
}
