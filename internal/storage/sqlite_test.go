package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/mxrag/internal/models"
)

func intPtr(n int) *int { return &n }

func TestSQLiteLedger(t *testing.T) {
	ledger, err := NewSQLiteLedger(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer ledger.Close()
	ctx := context.Background()

	ok := models.IngestResult{File: "/data/a.pdf", Status: models.StatusSuccess, ChunksProcessed: intPtr(4)}
	failed := models.IngestResult{File: "/data/b.pdf", Status: models.StatusError, Error: "document error (corrupt): bad xref"}
	if err := ledger.RecordIngest(ctx, "/data/a.pdf", ok); err != nil {
		t.Fatal(err)
	}
	if err := ledger.RecordIngest(ctx, "/data/b.pdf", failed); err != nil {
		t.Fatal(err)
	}

	n, err := ledger.CountDocuments(ctx)
	if err != nil || n != 2 {
		t.Fatalf("count = %d, %v", n, err)
	}

	// Re-ingesting replaces the row.
	ok.ChunksProcessed = intPtr(6)
	if err := ledger.RecordIngest(ctx, "/data/a.pdf", ok); err != nil {
		t.Fatal(err)
	}
	docs, err := ledger.ListDocuments(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	byPath := map[string]*models.IngestedDocument{}
	for _, d := range docs {
		byPath[d.FilePath] = d
	}
	a := byPath["/data/a.pdf"]
	if a == nil || a.Chunks != 6 || a.Status != models.StatusSuccess || a.ID != DocumentID("/data/a.pdf") {
		t.Errorf("a.pdf row: %+v", a)
	}
	if b := byPath["/data/b.pdf"]; b == nil || b.Error == "" || b.Chunks != 0 {
		t.Errorf("b.pdf row: %+v", b)
	}

	if err := ledger.RemoveDocument(ctx, "/data/b.pdf"); err != nil {
		t.Fatal(err)
	}
	if n, _ := ledger.CountDocuments(ctx); n != 1 {
		t.Errorf("count after remove = %d", n)
	}
	if err := ledger.RemoveDocument(ctx, "/data/unknown.pdf"); err != nil {
		t.Errorf("removing unknown path should not fail: %v", err)
	}
}

func TestDocumentID(t *testing.T) {
	if DocumentID("/a.pdf") != DocumentID("/a.pdf") {
		t.Error("ids must be stable")
	}
	if DocumentID("/a.pdf") == DocumentID("/b.pdf") {
		t.Error("ids must differ per path")
	}
}

func TestSQLiteLedger_sourceIsBaseName(t *testing.T) {
	ledger, err := NewSQLiteLedger(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer ledger.Close()
	ctx := context.Background()
	if err := ledger.RecordIngest(ctx, "/data/pdfs/report.pdf", models.IngestResult{File: "/data/pdfs/report.pdf", Status: models.StatusSuccess}); err != nil {
		t.Fatal(err)
	}
	docs, err := ledger.ListDocuments(ctx, 0, 1)
	if err != nil || len(docs) != 1 {
		t.Fatalf("docs = %v, %v", docs, err)
	}
	if docs[0].Source != "report.pdf" {
		t.Errorf("source = %q, want report.pdf", docs[0].Source)
	}
}
