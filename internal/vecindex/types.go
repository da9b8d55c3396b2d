// Package vecindex provides the vector index capability consumed by the
// indexing and retrieval pipelines: upsert, per-document delete, and
// filtered nearest-neighbor search. Two implementations exist: an
// embedded sqlite-backed store and a Qdrant HTTP client.
package vecindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Metadata is the denormalized chunk payload stored next to each vector
// so filters are evaluated without a join against the metadata database.
type Metadata struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Company    string `json:"company"`
	Date       string `json:"date"`     // "2006-01-02"
	DateInt    int    `json:"date_int"` // YYYYMMDD, for range filters
	Quarter    string `json:"quarter"`
	Seq        int    `json:"seq"`
	Start      int    `json:"start"` // character span in the source document
	End        int    `json:"end"`
	Rev        string `json:"rev"` // content revision of the source document
	Text       string `json:"text"`
}

// Point is one (vector, payload) pair keyed by a deterministic point id.
type Point struct {
	ID     string // UUID derived from chunk id and revision
	Vector []float32
	Meta   Metadata
}

// PointID derives the deterministic point identifier for a chunk at a
// given document revision. Same chunk and revision always map to the same
// id, which makes re-indexing idempotent.
func PointID(chunkID, rev string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("callrag:"+chunkID+":"+rev)).String()
}

// Filter is the hard metadata pre-filter applied during search. Results
// outside the filter never appear regardless of similarity.
type Filter struct {
	Companies []string // empty means all companies
	DateFrom  int      // YYYYMMDD inclusive, 0 means unbounded
	DateTo    int      // YYYYMMDD inclusive, 0 means unbounded
}

// Hit is one similarity search result.
type Hit struct {
	Score float32
	Meta  Metadata
}

// Index is the minimal vector index capability set.
type Index interface {
	// EnsureCollection prepares storage for vectors of the given
	// dimensionality.
	EnsureCollection(ctx context.Context, dims int) error

	// Upsert writes points keyed by point id. Existing points with the
	// same id are replaced.
	Upsert(ctx context.Context, points []Point) error

	// DeleteDocument removes every point belonging to a document.
	DeleteDocument(ctx context.Context, documentID string) error

	// DeleteStaleRevs removes points of a document whose revision differs
	// from keepRev. Used to finish an atomic document replace.
	DeleteStaleRevs(ctx context.Context, documentID, keepRev string) error

	// Search returns up to limit nearest neighbors of vector that pass
	// the filter, ordered by descending similarity.
	Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]Hit, error)

	Close() error
}

// WriteError reports a failed index write; transient by definition and
// retried by the indexer up to its budget.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("vector index %s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// UnavailableError reports that the vector index cannot be reached.
// Callers must surface it rather than degrade to an empty result set.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("vector index unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable checks if err is an UnavailableError.
func IsUnavailable(err error) bool {
	var target *UnavailableError
	return errors.As(err, &target)
}

// DateToInt converts a "2006-01-02" date string to its YYYYMMDD form.
// Returns 0 for unparseable input.
func DateToInt(date string) int {
	if len(date) != 10 {
		return 0
	}
	n := 0
	for _, c := range date {
		if c == '-' {
			continue
		}
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}
