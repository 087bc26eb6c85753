package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/mxrag/internal/apperr"
)

// SQLiteStore persists entries in a SQLite file under the persist directory and
// searches by brute-force cosine similarity over one collection.
type SQLiteStore struct {
	db         *sql.DB
	collection string
	dimensions int
}

// NewSQLiteStore opens or creates persistDir/vectors.db.
func NewSQLiteStore(persistDir, collection string, dimensions int) (*SQLiteStore, error) {
	if dimensions <= 0 {
		return nil, apperr.Storef("open", "dimensions must be positive")
	}
	if err := os.MkdirAll(persistDir, 0755); err != nil {
		return nil, apperr.Store("open", err)
	}
	db, err := sql.Open("sqlite3", filepath.Join(persistDir, "vectors.db"))
	if err != nil {
		return nil, apperr.Store("open", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, apperr.Store("open", err)
	}
	if err := initVectorSchema(db); err != nil {
		_ = db.Close()
		return nil, apperr.Store("open", err)
	}
	return &SQLiteStore{db: db, collection: collection, dimensions: dimensions}, nil
}

func initVectorSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		metadata TEXT,
		embedding BLOB NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_source ON embeddings(collection, source);
	`
	_, err := db.Exec(schema)
	return err
}

// Upsert writes entries in one transaction; either all land or none do.
func (s *SQLiteStore) Upsert(ctx context.Context, entries []Entry) error {
	if err := checkEntries("upsert", entries, s.dimensions); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Store("upsert", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO embeddings (collection, id, source, content, metadata, embedding, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET
			source = excluded.source,
			content = excluded.content,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`,
	)
	if err != nil {
		return apperr.Store("upsert", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, e := range entries {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return apperr.Store("upsert", err)
		}
		if _, err := stmt.ExecContext(ctx, s.collection, e.ID, e.Source(), e.Text, string(meta), float32SliceToBytes(e.Vector), now); err != nil {
			return apperr.Store("upsert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.Store("upsert", err)
	}
	return nil
}

// Query loads the collection and ranks it in memory.
func (s *SQLiteStore) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if err := checkVector("query", vector, s.dimensions); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, metadata, embedding FROM embeddings WHERE collection = ?`, s.collection)
	if err != nil {
		return nil, apperr.Store("query", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			e        Entry
			metaJSON sql.NullString
			blob     []byte
		)
		if err := rows.Scan(&e.ID, &e.Text, &metaJSON, &blob); err != nil {
			return nil, apperr.Store("query", err)
		}
		e.Vector = bytesToFloat32Slice(blob)
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &e.Metadata); err != nil {
				return nil, apperr.Store("query", err)
			}
		}
		matches = append(matches, Match{Entry: e, Score: CosineSimilarity(vector, e.Vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("query", err)
	}
	return topK(matches, k), nil
}

// DeleteBySource removes every entry from source.
func (s *SQLiteStore) DeleteBySource(ctx context.Context, source string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM embeddings WHERE collection = ? AND source = ?`, s.collection, source)
	if err != nil {
		return 0, apperr.Store("delete", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Count returns the number of entries in the collection.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM embeddings WHERE collection = ?`, s.collection).Scan(&n)
	if err != nil {
		return 0, apperr.Store("count", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
