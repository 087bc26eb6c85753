// Package storage keeps the ingestion ledger: one row per PDF recording the
// outcome of its latest ingestion.
package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/hyperjump/mxrag/internal/models"
)

// Ledger records ingestion outcomes per document.
type Ledger interface {
	// RecordIngest stores the latest outcome for filePath, replacing any earlier one.
	RecordIngest(ctx context.Context, filePath string, result models.IngestResult) error
	RemoveDocument(ctx context.Context, filePath string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.IngestedDocument, error)
	CountDocuments(ctx context.Context) (int64, error)
	Close() error
}

var documentNamespace = uuid.MustParse("2b0f5c52-5f0e-4bde-9a47-7c4d0f1e3a88")

// DocumentID returns the stable ledger id for a file path.
func DocumentID(filePath string) string {
	return uuid.NewSHA1(documentNamespace, []byte(filePath)).String()
}
