// Package vectorstore stores chunk embeddings and serves nearest-neighbour queries.
package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/mxrag/internal/apperr"
	"github.com/hyperjump/mxrag/internal/config"
	"github.com/hyperjump/mxrag/internal/models"
)

// Entry is one stored chunk. Writing an entry with an existing ID replaces it.
type Entry struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]any
}

// Source returns the entry's source file name from its metadata.
func (e Entry) Source() string {
	s, _ := e.Metadata[models.MetaSource].(string)
	return s
}

// Match is a query hit. Higher scores are more similar.
type Match struct {
	Entry Entry
	Score float64
}

// Store is a collection of entries with a fixed vector length. Every error
// returned by a Store is an apperr store error.
type Store interface {
	Upsert(ctx context.Context, entries []Entry) error
	// Query returns at most k matches ordered by descending score; fewer only
	// when the collection holds fewer than k entries.
	Query(ctx context.Context, vector []float32, k int) ([]Match, error)
	// DeleteBySource removes all entries whose source metadata equals source
	// and returns how many were removed (-1 when the backend cannot tell).
	DeleteBySource(ctx context.Context, source string) (int, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// New opens the backend selected by cfg.VectorStore.Backend for vectors of dims length.
func New(ctx context.Context, cfg *config.Config, dims int, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	vs := cfg.VectorStore
	logger = logger.With(zap.String("backend", vs.Backend), zap.String("collection", vs.CollectionName))

	var (
		s   Store
		err error
	)
	switch vs.Backend {
	case config.BackendMemory:
		s, err = NewMemoryStore(dims)
	case config.BackendSQLite:
		s, err = NewSQLiteStore(vs.PersistDirectory, vs.CollectionName, dims)
	case config.BackendQdrant:
		s, err = NewQdrantStore(ctx, QdrantConfig{
			URL:        vs.Qdrant.URL,
			APIKey:     vs.Qdrant.APIKey,
			Collection: vs.CollectionName,
			Dimensions: dims,
		})
	case config.BackendPgvector:
		s, err = NewPgvectorStore(ctx, vs.Postgres.DSN, vs.CollectionName, dims)
	default:
		return nil, apperr.Configuration(fmt.Sprintf("unknown vector store backend %q", vs.Backend))
	}
	if err != nil {
		return nil, err
	}
	logger.Info("vector store opened", zap.Int("dimensions", dims))
	return s, nil
}

func checkVector(op string, v []float32, dims int) error {
	if len(v) != dims {
		return apperr.Storef(op, "vector dimension mismatch: got %d, expected %d", len(v), dims)
	}
	return nil
}

func checkEntries(op string, entries []Entry, dims int) error {
	for _, e := range entries {
		if e.ID == "" {
			return apperr.Storef(op, "entry id is required")
		}
		if err := checkVector(op, e.Vector, dims); err != nil {
			return err
		}
	}
	return nil
}
