package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Document is a registered transcript and its committed index state.
type Document struct {
	ID           string
	Company      string
	Date         string // "2006-01-02"
	Quarter      string
	Path         string
	Chars        int
	CommittedRev string
	ChunkCount   int
	IndexedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CompanyStats summarizes one company's indexed corpus.
type CompanyStats struct {
	Company    string
	Documents  int
	Chunks     int
	FirstDate  string
	LatestDate string
}

// DocumentStore provides CRUD operations for documents.
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new document store.
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Get retrieves a document by id. Returns nil when not found.
func (s *DocumentStore) Get(id string) (*Document, error) {
	row := s.db.sqlDB.QueryRow(`
		SELECT id, company, date, quarter, path, chars, committed_rev,
			chunk_count, indexed_at, created_at, updated_at
		FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// Upsert registers a document or refreshes its source metadata. The
// committed revision is not touched here; CommitRevision owns that.
func (s *DocumentStore) Upsert(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.sqlDB.Exec(`
		INSERT INTO documents (id, company, date, quarter, path, chars, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company = excluded.company,
			date = excluded.date,
			quarter = excluded.quarter,
			path = excluded.path,
			chars = excluded.chars,
			updated_at = excluded.updated_at`,
		doc.ID, doc.Company, doc.Date, doc.Quarter, doc.Path, doc.Chars, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// CommitRevision flips the committed revision of a document in a single
// update. Readers observe either the old revision or the new one, never
// a mix.
func (s *DocumentStore) CommitRevision(id, rev string, chunkCount int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.sqlDB.Exec(`
		UPDATE documents
		SET committed_rev = ?, chunk_count = ?, indexed_at = ?, updated_at = ?
		WHERE id = ?`,
		rev, chunkCount, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to commit revision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to commit revision: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("document %s is not registered", id)
	}
	return nil
}

// CommittedRevs returns the committed revision per document id. Documents
// never committed map to the empty string.
func (s *DocumentStore) CommittedRevs() (map[string]string, error) {
	rows, err := s.db.sqlDB.Query(`SELECT id, committed_rev FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("failed to list committed revisions: %w", err)
	}
	defer rows.Close()

	revs := make(map[string]string)
	for rows.Next() {
		var id, rev string
		if err := rows.Scan(&id, &rev); err != nil {
			return nil, fmt.Errorf("failed to scan committed revision: %w", err)
		}
		revs[id] = rev
	}
	return revs, rows.Err()
}

// List returns all documents ordered by company then date.
func (s *DocumentStore) List() ([]Document, error) {
	rows, err := s.db.sqlDB.Query(`
		SELECT id, company, date, quarter, path, chars, committed_rev,
			chunk_count, indexed_at, created_at, updated_at
		FROM documents ORDER BY company, date`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// Delete removes a document and its indexing status.
func (s *DocumentStore) Delete(id string) error {
	tx, err := s.db.sqlDB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM index_status WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete index status: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return tx.Commit()
}

// Stats aggregates the committed corpus per company.
func (s *DocumentStore) Stats() ([]CompanyStats, error) {
	rows, err := s.db.sqlDB.Query(`
		SELECT company, COUNT(*), COALESCE(SUM(chunk_count), 0), MIN(date), MAX(date)
		FROM documents
		WHERE committed_rev <> ''
		GROUP BY company ORDER BY company`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	defer rows.Close()

	var stats []CompanyStats
	for rows.Next() {
		var cs CompanyStats
		if err := rows.Scan(&cs.Company, &cs.Documents, &cs.Chunks, &cs.FirstDate, &cs.LatestDate); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats = append(stats, cs)
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var indexedValue, createdValue, updatedValue any
	if err := row.Scan(
		&doc.ID, &doc.Company, &doc.Date, &doc.Quarter, &doc.Path, &doc.Chars,
		&doc.CommittedRev, &doc.ChunkCount, &indexedValue, &createdValue, &updatedValue,
	); err != nil {
		return nil, err
	}
	if ts, err := parseTimeValue(indexedValue); err == nil && !ts.IsZero() {
		doc.IndexedAt = &ts
	} else if err != nil {
		return nil, fmt.Errorf("failed to parse indexed_at: %w", err)
	}
	createdAt, err := parseTimeValue(createdValue)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	doc.CreatedAt = createdAt
	updatedAt, err := parseTimeValue(updatedValue)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	doc.UpdatedAt = updatedAt
	return &doc, nil
}
