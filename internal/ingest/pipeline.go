// Package ingest runs PDFs through extraction, chunking, embedding and storage.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hyperjump/mxrag/internal/apperr"
	"github.com/hyperjump/mxrag/internal/chunker"
	"github.com/hyperjump/mxrag/internal/embedding"
	"github.com/hyperjump/mxrag/internal/extract"
	"github.com/hyperjump/mxrag/internal/models"
	"github.com/hyperjump/mxrag/internal/storage"
	"github.com/hyperjump/mxrag/internal/vectorstore"
)

const fileTypePDF = "pdf"

// Pipeline ingests PDFs from one directory into a vector store.
type Pipeline struct {
	pdfDir    string
	extractor extract.Extractor
	chunker   *chunker.Chunker
	embedder  embedding.Embedder
	store     vectorstore.Store
	writer    *ChunkWriter
	ledger    storage.Ledger
	logger    *zap.Logger
	tracer    trace.Tracer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithChunkWriter enables chunk persistence.
func WithChunkWriter(w *ChunkWriter) Option {
	return func(p *Pipeline) { p.writer = w }
}

// WithLedger records every file outcome in l.
func WithLedger(l storage.Ledger) Option {
	return func(p *Pipeline) { p.ledger = l }
}

// New returns a pipeline reading PDFs from pdfDir.
func New(pdfDir string, ex extract.Extractor, ch *chunker.Chunker, emb embedding.Embedder, store vectorstore.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		pdfDir:    pdfDir,
		extractor: ex,
		chunker:   ch,
		embedder:  emb,
		store:     store,
		logger:    zap.NewNop(),
		tracer:    otel.Tracer("github.com/hyperjump/mxrag/internal/ingest"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dir returns the PDF directory.
func (p *Pipeline) Dir() string {
	return p.pdfDir
}

// IsPDF reports whether path has a .pdf extension, ignoring case.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// IngestDirectory ingests every PDF directly inside the directory, in name
// order. A failing file is recorded in its result and does not stop the run.
// An empty slice means no PDFs were found.
func (p *Pipeline) IngestDirectory(ctx context.Context) ([]models.IngestResult, error) {
	ctx, span := p.tracer.Start(ctx, "ingest.directory", trace.WithAttributes(attribute.String("ingest.dir", p.pdfDir)))
	defer span.End()

	entries, err := os.ReadDir(p.pdfDir)
	if err != nil {
		if os.IsNotExist(err) {
			err = apperr.Document(apperr.ReasonNotFound, "PDF directory not found: "+p.pdfDir, nil)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results := []models.IngestResult{}
	for _, entry := range entries {
		if entry.IsDir() || !IsPDF(entry.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("ingestion interrupted: %w", err)
		}
		results = append(results, p.IngestFile(ctx, filepath.Join(p.pdfDir, entry.Name())))
	}

	failed := 0
	for _, r := range results {
		if !r.Succeeded() {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("ingest.files", len(results)), attribute.Int("ingest.failed", failed))
	p.logger.Info("directory ingested",
		zap.String("dir", p.pdfDir),
		zap.Int("files", len(results)),
		zap.Int("failed", failed))
	return results, nil
}

// IngestFile runs one PDF through the pipeline. Failures are reported in the
// result, never returned.
func (p *Pipeline) IngestFile(ctx context.Context, path string) models.IngestResult {
	ctx, span := p.tracer.Start(ctx, "ingest.file", trace.WithAttributes(attribute.String("ingest.file", path)))
	defer span.End()

	start := time.Now()
	n, err := p.ingest(ctx, path)
	result := models.IngestResult{File: path}
	if err != nil {
		result.Status = models.StatusError
		result.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Warn("file ingestion failed", zap.String("file", path), zap.Error(err))
	} else {
		result.Status = models.StatusSuccess
		result.ChunksProcessed = &n
		result.ChunksSaved = p.writer != nil
		span.SetAttributes(attribute.Int("ingest.chunks", n))
		p.logger.Info("file ingested",
			zap.String("file", path),
			zap.Int("chunks", n),
			zap.Duration("elapsed", time.Since(start)))
	}

	if p.ledger != nil {
		if err := p.ledger.RecordIngest(ctx, path, result); err != nil {
			p.logger.Warn("failed to record ingest in ledger", zap.String("file", path), zap.Error(err))
		}
	}
	return result
}

// ingest moves one document through extract, chunk, embed, store and persist,
// returning the number of chunks stored.
func (p *Pipeline) ingest(ctx context.Context, path string) (int, error) {
	text, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return 0, err
	}

	source := filepath.Base(path)
	chunks := p.chunker.Chunk(chunker.SourceInfo{SourceFile: source, FilePath: path, FileType: fileTypePDF}, text)
	if len(chunks) == 0 {
		p.logger.Warn("no text extracted", zap.String("file", path))
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed %s: %w", source, err)
	}
	if len(vectors) != len(chunks) {
		return 0, apperr.Provider(apperr.ReasonBadRequest, 0,
			fmt.Sprintf("got %d embeddings for %d chunks", len(vectors), len(chunks)), nil)
	}

	// Nothing is written once the request is gone.
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("ingestion of %s canceled: %w", source, err)
	}

	entries := make([]vectorstore.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = vectorstore.Entry{
			ID:       c.EntryID(),
			Vector:   vectors[i],
			Text:     c.Text,
			Metadata: c.Metadata(),
		}
	}
	if err := p.store.Upsert(ctx, entries); err != nil {
		return 0, err
	}

	if p.writer != nil {
		if err := p.writer.Write(source, chunks); err != nil {
			return 0, err
		}
	}
	return len(chunks), nil
}

// RemoveFile deletes everything stored for a PDF that left the directory.
func (p *Pipeline) RemoveFile(ctx context.Context, path string) error {
	source := filepath.Base(path)
	n, err := p.store.DeleteBySource(ctx, source)
	if err != nil {
		return err
	}
	if p.writer != nil {
		if err := p.writer.Remove(source); err != nil {
			return fmt.Errorf("failed to remove chunk files of %s: %w", source, err)
		}
	}
	if p.ledger != nil {
		if err := p.ledger.RemoveDocument(ctx, path); err != nil {
			return fmt.Errorf("failed to remove %s from ledger: %w", source, err)
		}
	}
	p.logger.Info("file removed", zap.String("file", path), zap.Int("entries", n))
	return nil
}
