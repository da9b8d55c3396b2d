package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "callrag.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func registerDoc(t *testing.T, docs *DocumentStore, id, company, date string) {
	t.Helper()
	err := docs.Upsert(&Document{
		ID:      id,
		Company: company,
		Date:    date,
		Quarter: "Q3 2020",
		Path:    "/transcripts/" + company + "/" + id,
		Chars:   1000,
	})
	if err != nil {
		t.Fatalf("Upsert(%s) error = %v", id, err)
	}
}

func TestDocumentStore_UpsertAndGet(t *testing.T) {
	docs := NewDocumentStore(newTestDB(t))
	registerDoc(t, docs, "aapl_a", "AAPL", "2020-07-30")

	doc, err := docs.Get("aapl_a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc == nil {
		t.Fatal("Get() = nil, want document")
	}
	if doc.Company != "AAPL" || doc.Date != "2020-07-30" || doc.CommittedRev != "" {
		t.Errorf("Get() = %+v", doc)
	}

	missing, err := docs.Get("nope")
	if err != nil {
		t.Fatalf("Get(missing) error = %v", err)
	}
	if missing != nil {
		t.Errorf("Get(missing) = %+v, want nil", missing)
	}
}

func TestDocumentStore_UpsertRefreshKeepsCommittedRev(t *testing.T) {
	docs := NewDocumentStore(newTestDB(t))
	registerDoc(t, docs, "aapl_a", "AAPL", "2020-07-30")

	if err := docs.CommitRevision("aapl_a", "rev1", 42); err != nil {
		t.Fatalf("CommitRevision() error = %v", err)
	}
	// Re-registering source metadata must not clear the commit.
	registerDoc(t, docs, "aapl_a", "AAPL", "2020-07-30")

	doc, err := docs.Get("aapl_a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc.CommittedRev != "rev1" || doc.ChunkCount != 42 {
		t.Errorf("after refresh: rev = %q chunks = %d", doc.CommittedRev, doc.ChunkCount)
	}
	if doc.IndexedAt == nil {
		t.Error("IndexedAt = nil after commit")
	}
}

func TestDocumentStore_CommitRevision(t *testing.T) {
	docs := NewDocumentStore(newTestDB(t))
	registerDoc(t, docs, "aapl_a", "AAPL", "2020-07-30")

	if err := docs.CommitRevision("aapl_a", "rev1", 10); err != nil {
		t.Fatalf("CommitRevision() error = %v", err)
	}
	if err := docs.CommitRevision("aapl_a", "rev2", 12); err != nil {
		t.Fatalf("CommitRevision() error = %v", err)
	}

	revs, err := docs.CommittedRevs()
	if err != nil {
		t.Fatalf("CommittedRevs() error = %v", err)
	}
	if revs["aapl_a"] != "rev2" {
		t.Errorf("committed rev = %q, want rev2", revs["aapl_a"])
	}

	if err := docs.CommitRevision("unknown", "rev1", 1); err == nil {
		t.Error("CommitRevision(unregistered) error = nil, want error")
	}
}

func TestDocumentStore_Stats(t *testing.T) {
	docs := NewDocumentStore(newTestDB(t))
	registerDoc(t, docs, "aapl_a", "AAPL", "2019-04-30")
	registerDoc(t, docs, "aapl_b", "AAPL", "2020-07-30")
	registerDoc(t, docs, "msft_a", "MSFT", "2020-04-29")

	// Only committed documents count toward stats.
	if err := docs.CommitRevision("aapl_a", "r", 10); err != nil {
		t.Fatal(err)
	}
	if err := docs.CommitRevision("aapl_b", "r", 20); err != nil {
		t.Fatal(err)
	}

	stats, err := docs.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("got %d companies, want 1 (msft never committed)", len(stats))
	}
	cs := stats[0]
	if cs.Company != "AAPL" || cs.Documents != 2 || cs.Chunks != 30 {
		t.Errorf("stats = %+v", cs)
	}
	if cs.FirstDate != "2019-04-30" || cs.LatestDate != "2020-07-30" {
		t.Errorf("date range = %s .. %s", cs.FirstDate, cs.LatestDate)
	}
}

func TestDocumentStore_Delete(t *testing.T) {
	db := newTestDB(t)
	docs := NewDocumentStore(db)
	status := NewStatusStore(db)

	registerDoc(t, docs, "aapl_a", "AAPL", "2020-07-30")
	if err := status.MarkPending("aapl_a"); err != nil {
		t.Fatal(err)
	}

	if err := docs.Delete("aapl_a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	doc, err := docs.Get("aapl_a")
	if err != nil || doc != nil {
		t.Errorf("Get() after delete = %v, %v", doc, err)
	}
	st, err := status.Get("aapl_a")
	if err != nil || st != nil {
		t.Errorf("status Get() after delete = %v, %v", st, err)
	}
}

func TestStatusStore_Transitions(t *testing.T) {
	status := NewStatusStore(newTestDB(t))

	if err := status.MarkPending("aapl_a"); err != nil {
		t.Fatalf("MarkPending() error = %v", err)
	}
	st, err := status.Get("aapl_a")
	if err != nil {
		t.Fatal(err)
	}
	if st.State != StatePending || st.Attempts != 0 {
		t.Errorf("after pending: %+v", st)
	}

	if err := status.MarkIndexing("aapl_a"); err != nil {
		t.Fatalf("MarkIndexing() error = %v", err)
	}
	st, _ = status.Get("aapl_a")
	if st.State != StateIndexing || st.Attempts != 1 {
		t.Errorf("after indexing: %+v", st)
	}
	if st.LastAttemptAt == nil {
		t.Error("LastAttemptAt = nil after indexing")
	}

	if err := status.MarkFailed("aapl_a", errors.New("embed quota exceeded")); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	st, _ = status.Get("aapl_a")
	if st.State != StateFailed || st.LastError != "embed quota exceeded" {
		t.Errorf("after failed: %+v", st)
	}
	if st.Attempts != 1 {
		t.Errorf("Attempts = %d, want unchanged 1", st.Attempts)
	}

	// Retry path: a second attempt that succeeds.
	if err := status.MarkIndexing("aapl_a"); err != nil {
		t.Fatal(err)
	}
	if err := status.MarkIndexed("aapl_a"); err != nil {
		t.Fatalf("MarkIndexed() error = %v", err)
	}
	st, _ = status.Get("aapl_a")
	if st.State != StateIndexed || st.Attempts != 2 || st.LastError != "" {
		t.Errorf("after indexed: %+v", st)
	}
}

func TestStatusStore_MarkIndexingWithoutPending(t *testing.T) {
	status := NewStatusStore(newTestDB(t))

	// Direct ingest path skips the pending state.
	if err := status.MarkIndexing("aapl_a"); err != nil {
		t.Fatalf("MarkIndexing() error = %v", err)
	}
	st, err := status.Get("aapl_a")
	if err != nil {
		t.Fatal(err)
	}
	if st.State != StateIndexing || st.Attempts != 1 {
		t.Errorf("status = %+v", st)
	}
}

func TestStatusStore_CountByState(t *testing.T) {
	status := NewStatusStore(newTestDB(t))

	for _, id := range []string{"a", "b"} {
		if err := status.MarkIndexing(id); err != nil {
			t.Fatal(err)
		}
		if err := status.MarkIndexed(id); err != nil {
			t.Fatal(err)
		}
	}
	if err := status.MarkIndexing("c"); err != nil {
		t.Fatal(err)
	}
	if err := status.MarkFailed("c", errors.New("boom")); err != nil {
		t.Fatal(err)
	}

	counts, err := status.CountByState()
	if err != nil {
		t.Fatalf("CountByState() error = %v", err)
	}
	if counts[StateIndexed] != 2 || counts[StateFailed] != 1 {
		t.Errorf("counts = %v", counts)
	}
}
