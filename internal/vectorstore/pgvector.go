package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/hyperjump/mxrag/internal/apperr"
)

// PgvectorStore keeps entries in a Postgres table with a pgvector column and
// ranks by cosine distance.
type PgvectorStore struct {
	pool       *pgxpool.Pool
	collection string
	dimensions int
}

// NewPgvectorStore connects to dsn and creates the extension and table if needed.
func NewPgvectorStore(ctx context.Context, dsn, collection string, dimensions int) (*PgvectorStore, error) {
	if dimensions <= 0 {
		return nil, apperr.Storef("open", "dimensions must be positive")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, storeErr("open", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storeErr("open", err)
	}
	s := &PgvectorStore{pool: pool, collection: collection, dimensions: dimensions}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgvectorStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS rag_vectors (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, id)
		)`, s.dimensions),
		`CREATE INDEX IF NOT EXISTS rag_vectors_source_idx ON rag_vectors (collection, source)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return storeErr("open", err)
		}
	}
	return nil
}

// Upsert writes entries in a single transaction.
func (s *PgvectorStore) Upsert(ctx context.Context, entries []Entry) error {
	const op = "upsert"
	if err := checkEntries(op, entries, s.dimensions); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return apperr.Store(op, err)
		}
		batch.Queue(`INSERT INTO rag_vectors (collection, id, source, content, metadata, embedding, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (collection, id) DO UPDATE SET
				source = EXCLUDED.source,
				content = EXCLUDED.content,
				metadata = EXCLUDED.metadata,
				embedding = EXCLUDED.embedding,
				updated_at = now()`,
			s.collection, e.ID, e.Source(), e.Text, meta, pgvector.NewVector(e.Vector))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storeErr(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return storeErr(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr(op, err)
	}
	return nil
}

// Query orders by the <=> cosine distance operator; score is 1 - distance.
func (s *PgvectorStore) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	const op = "query"
	if err := checkVector(op, vector, s.dimensions); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, content, metadata, 1 - (embedding <=> $2) AS score
		 FROM rag_vectors WHERE collection = $1
		 ORDER BY embedding <=> $2, id
		 LIMIT $3`,
		s.collection, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			e    Entry
			meta []byte
			m    Match
		)
		if err := rows.Scan(&e.ID, &e.Text, &meta, &m.Score); err != nil {
			return nil, storeErr(op, err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, apperr.Store(op, err)
			}
		}
		m.Entry = e
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return matches, nil
}

// DeleteBySource removes every entry from source.
func (s *PgvectorStore) DeleteBySource(ctx context.Context, source string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM rag_vectors WHERE collection = $1 AND source = $2`, s.collection, source)
	if err != nil {
		return 0, storeErr("delete", err)
	}
	return int(tag.RowsAffected()), nil
}

// Count returns the number of entries in the collection.
func (s *PgvectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM rag_vectors WHERE collection = $1`, s.collection).Scan(&n); err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}

// Close closes the pool.
func (s *PgvectorStore) Close() error {
	s.pool.Close()
	return nil
}

// storeErr adds the SQLSTATE to Postgres errors.
func storeErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return apperr.Store(op, fmt.Errorf("postgres %s: %w", pgErr.Code, err))
	}
	return apperr.Store(op, err)
}
