package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Indexing states. A document moves pending -> indexing -> indexed;
// indexing -> failed when retries are exhausted. Re-ingestion moves any
// state back through indexing.
const (
	StatePending  = "pending"
	StateIndexing = "indexing"
	StateIndexed  = "indexed"
	StateFailed   = "failed"
)

// IndexStatus is one document's indexing state.
type IndexStatus struct {
	DocumentID    string
	State         string
	Attempts      int
	LastError     string
	LastAttemptAt *time.Time
	UpdatedAt     time.Time
}

// StatusStore tracks per-document indexing state.
type StatusStore struct {
	db *DB
}

// NewStatusStore creates a new status store.
func NewStatusStore(db *DB) *StatusStore {
	return &StatusStore{db: db}
}

// Get retrieves the status of a document. Returns nil when the document
// has never been submitted for indexing.
func (s *StatusStore) Get(documentID string) (*IndexStatus, error) {
	row := s.db.sqlDB.QueryRow(`
		SELECT document_id, state, attempts, last_error, last_attempt_at, updated_at
		FROM index_status WHERE document_id = ?`, documentID)
	st, err := scanStatus(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get index status: %w", err)
	}
	return st, nil
}

// MarkPending records that a document is queued for indexing.
func (s *StatusStore) MarkPending(documentID string) error {
	return s.set(documentID, StatePending, 0, "", false)
}

// MarkIndexing records the start of an indexing attempt and increments
// the attempt counter.
func (s *StatusStore) MarkIndexing(documentID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.sqlDB.Exec(`
		INSERT INTO index_status (document_id, state, attempts, last_error, last_attempt_at, updated_at)
		VALUES (?, ?, 1, '', ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			state = excluded.state,
			attempts = index_status.attempts + 1,
			last_error = '',
			last_attempt_at = excluded.last_attempt_at,
			updated_at = excluded.updated_at`,
		documentID, StateIndexing, now, now)
	if err != nil {
		return fmt.Errorf("failed to mark indexing: %w", err)
	}
	return nil
}

// MarkIndexed records a successful indexing run and clears the error.
func (s *StatusStore) MarkIndexed(documentID string) error {
	return s.set(documentID, StateIndexed, -1, "", false)
}

// MarkFailed records a terminal failure with its error detail.
func (s *StatusStore) MarkFailed(documentID string, cause error) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return s.set(documentID, StateFailed, -1, detail, true)
}

func (s *StatusStore) set(documentID, state string, attempts int, lastError string, touchAttempt bool) error {
	now := time.Now().UTC().Format(time.RFC3339)
	var attemptAt any
	if touchAttempt {
		attemptAt = now
	}
	_, err := s.db.sqlDB.Exec(`
		INSERT INTO index_status (document_id, state, attempts, last_error, last_attempt_at, updated_at)
		VALUES (?, ?, MAX(?, 0), ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			state = excluded.state,
			attempts = CASE WHEN ? >= 0 THEN ? ELSE index_status.attempts END,
			last_error = excluded.last_error,
			last_attempt_at = COALESCE(excluded.last_attempt_at, index_status.last_attempt_at),
			updated_at = excluded.updated_at`,
		documentID, state, attempts, lastError, attemptAt, now,
		attempts, attempts)
	if err != nil {
		return fmt.Errorf("failed to set index status: %w", err)
	}
	return nil
}

// Delete removes a document's status row. Deleting an unknown document
// is not an error.
func (s *StatusStore) Delete(documentID string) error {
	if _, err := s.db.sqlDB.Exec(`DELETE FROM index_status WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to delete index status: %w", err)
	}
	return nil
}

// List returns every status row ordered by document id.
func (s *StatusStore) List() ([]IndexStatus, error) {
	rows, err := s.db.sqlDB.Query(`
		SELECT document_id, state, attempts, last_error, last_attempt_at, updated_at
		FROM index_status ORDER BY document_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list index status: %w", err)
	}
	defer rows.Close()

	var out []IndexStatus
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan index status: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// CountByState returns the number of documents in each state.
func (s *StatusStore) CountByState() (map[string]int, error) {
	rows, err := s.db.sqlDB.Query(`SELECT state, COUNT(*) FROM index_status GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count index status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

func scanStatus(row rowScanner) (*IndexStatus, error) {
	var st IndexStatus
	var attemptValue, updatedValue any
	if err := row.Scan(&st.DocumentID, &st.State, &st.Attempts, &st.LastError, &attemptValue, &updatedValue); err != nil {
		return nil, err
	}
	if ts, err := parseTimeValue(attemptValue); err == nil && !ts.IsZero() {
		st.LastAttemptAt = &ts
	} else if err != nil {
		return nil, fmt.Errorf("failed to parse last_attempt_at: %w", err)
	}
	updatedAt, err := parseTimeValue(updatedValue)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	st.UpdatedAt = updatedAt
	return &st, nil
}
