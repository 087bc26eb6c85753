package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/mxrag/internal/models"
)

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS ingested_documents (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		file_path TEXT NOT NULL,
		chunks INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT,
		ingested_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ingested_documents_at ON ingested_documents(ingested_at);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordIngest upserts the outcome for filePath.
func (l *SQLiteLedger) RecordIngest(ctx context.Context, filePath string, result models.IngestResult) error {
	chunks := 0
	if result.ChunksProcessed != nil {
		chunks = *result.ChunksProcessed
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO ingested_documents (id, source, file_path, chunks, status, error, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			chunks = excluded.chunks,
			status = excluded.status,
			error = excluded.error,
			ingested_at = excluded.ingested_at`,
		DocumentID(filePath), filepath.Base(filePath), filePath, chunks, result.Status, result.Error, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record ingest of %s: %w", result.File, err)
	}
	return nil
}

// RemoveDocument deletes the row for filePath. Unknown paths are not an error.
func (l *SQLiteLedger) RemoveDocument(ctx context.Context, filePath string) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM ingested_documents WHERE id = ?`, DocumentID(filePath))
	return err
}

// ListDocuments returns documents, most recently ingested first.
func (l *SQLiteLedger) ListDocuments(ctx context.Context, offset, limit int) ([]*models.IngestedDocument, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, source, file_path, chunks, status, error, ingested_at
		 FROM ingested_documents ORDER BY ingested_at DESC, source LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.IngestedDocument
	for rows.Next() {
		var (
			doc     models.IngestedDocument
			errText sql.NullString
			at      time.Time
		)
		if err := rows.Scan(&doc.ID, &doc.Source, &doc.FilePath, &doc.Chunks, &doc.Status, &errText, &at); err != nil {
			return nil, err
		}
		doc.Error = errText.String
		doc.IngestedAt = at.UTC().Format(time.RFC3339)
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// CountDocuments returns the number of ledger rows.
func (l *SQLiteLedger) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ingested_documents`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
