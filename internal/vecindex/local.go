package vecindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// LocalIndex is an embedded vector index backed by sqlite with in-process
// brute-force cosine search. Suited to corpora of a few hundred
// transcripts; larger deployments use the Qdrant backend.
type LocalIndex struct {
	db *sql.DB
	mu sync.Mutex
}

// NewLocalIndex opens or creates the embedded index under dir.
func NewLocalIndex(dir string) (*LocalIndex, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("vector path is required for local index")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	dbPath := filepath.Join(dir, "vectors.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode=WAL&_pragma=synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	idx := &LocalIndex{db: db}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (l *LocalIndex) initSchema() error {
	_, err := l.db.Exec(`CREATE TABLE IF NOT EXISTS vectors (
		id          TEXT PRIMARY KEY,
		chunk_id    TEXT NOT NULL,
		document_id TEXT NOT NULL,
		company     TEXT NOT NULL,
		date        TEXT NOT NULL,
		date_int    INTEGER NOT NULL,
		quarter     TEXT,
		seq         INTEGER NOT NULL,
		start_pos   INTEGER NOT NULL DEFAULT 0,
		end_pos     INTEGER NOT NULL DEFAULT 0,
		rev         TEXT NOT NULL,
		text        TEXT NOT NULL,
		vector      BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_vectors_document ON vectors(document_id);
	CREATE INDEX IF NOT EXISTS idx_vectors_company_date ON vectors(company, date_int);`)
	if err != nil {
		return fmt.Errorf("init vector schema: %w", err)
	}
	return nil
}

// EnsureCollection is satisfied by schema creation; dims is validated per
// search instead since sqlite stores raw blobs.
func (l *LocalIndex) EnsureCollection(ctx context.Context, dims int) error {
	return l.initSchema()
}

// Upsert writes points inside one transaction.
func (l *LocalIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return &WriteError{Op: "upsert", Err: err}
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO vectors
		(id, chunk_id, document_id, company, date, date_int, quarter, seq, start_pos, end_pos, rev, text, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return &WriteError{Op: "upsert", Err: err}
	}
	defer stmt.Close()

	for _, p := range points {
		blob, err := vectorToBlob(p.Vector)
		if err != nil {
			_ = tx.Rollback()
			return &WriteError{Op: "upsert", Err: err}
		}
		m := p.Meta
		if _, err := stmt.ExecContext(ctx,
			p.ID, m.ChunkID, m.DocumentID, m.Company, m.Date, m.DateInt, m.Quarter, m.Seq, m.Start, m.End, m.Rev, m.Text, blob,
		); err != nil {
			_ = tx.Rollback()
			return &WriteError{Op: "upsert", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &WriteError{Op: "upsert", Err: err}
	}
	return nil
}

// DeleteDocument removes every point for a document.
func (l *LocalIndex) DeleteDocument(ctx context.Context, documentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.db.ExecContext(ctx, `DELETE FROM vectors WHERE document_id = ?`, documentID); err != nil {
		return &WriteError{Op: "delete", Err: err}
	}
	return nil
}

// DeleteStaleRevs removes a document's points from superseded revisions.
func (l *LocalIndex) DeleteStaleRevs(ctx context.Context, documentID, keepRev string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.db.ExecContext(ctx, `DELETE FROM vectors WHERE document_id = ? AND rev <> ?`, documentID, keepRev); err != nil {
		return &WriteError{Op: "delete stale revs", Err: err}
	}
	return nil
}

// Search scans the filtered candidate rows and ranks them by cosine
// similarity against the query vector.
func (l *LocalIndex) Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	queryVec, queryNorm := toFloat64Vector(vector)
	if len(queryVec) == 0 || queryNorm == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}

	query := `SELECT chunk_id, document_id, company, date, date_int, quarter, seq, start_pos, end_pos, rev, text, vector FROM vectors`
	var conds []string
	var args []any
	if len(filter.Companies) > 0 {
		placeholders := strings.TrimRight(strings.Repeat("?,", len(filter.Companies)), ",")
		conds = append(conds, fmt.Sprintf("company IN (%s)", placeholders))
		for _, c := range filter.Companies {
			args = append(args, c)
		}
	}
	if filter.DateFrom > 0 {
		conds = append(conds, "date_int >= ?")
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo > 0 {
		conds = append(conds, "date_int <= ?")
		args = append(args, filter.DateTo)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var m Metadata
		var blob []byte
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.Company, &m.Date, &m.DateInt, &m.Quarter, &m.Seq, &m.Start, &m.End, &m.Rev, &m.Text, &blob); err != nil {
			return nil, &UnavailableError{Err: err}
		}
		vec, err := blobToVector(blob)
		if err != nil || len(vec) != len(vector) {
			continue
		}
		hits = append(hits, Hit{Score: cosineAgainst(queryVec, queryNorm, vec), Meta: m})
	}
	if err := rows.Err(); err != nil {
		return nil, &UnavailableError{Err: err}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Close closes the underlying database.
func (l *LocalIndex) Close() error {
	return l.db.Close()
}

// vectorToBlob serializes a vector as little-endian float32s.
func vectorToBlob(vector []float32) ([]byte, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("cannot serialize empty vector")
	}
	blob := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob, nil
}

// blobToVector deserializes a little-endian float32 blob.
func blobToVector(blob []byte) ([]float32, error) {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length: %d", len(blob))
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector, nil
}

func toFloat64Vector(v []float32) ([]float64, float64) {
	out := make([]float64, len(v))
	var norm float64
	for i, x := range v {
		f := float64(x)
		out[i] = f
		norm += f * f
	}
	return out, math.Sqrt(norm)
}

func cosineAgainst(query []float64, queryNorm float64, candidate []float32) float32 {
	var dot, norm float64
	for i, c := range candidate {
		f := float64(c)
		dot += query[i] * f
		norm += f * f
	}
	if norm == 0 || queryNorm == 0 {
		return 0
	}
	return float32(dot / (queryNorm * math.Sqrt(norm)))
}
