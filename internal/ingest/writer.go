package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/mxrag/internal/models"
)

// ChunkWriter persists chunks for audit and debugging, one JSON file per chunk
// under <dir>/<source stem>/chunk_<index>.json.
type ChunkWriter struct {
	dir string
}

// NewChunkWriter returns a writer rooted at dir.
func NewChunkWriter(dir string) *ChunkWriter {
	return &ChunkWriter{dir: dir}
}

type chunkFile struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// Dir returns the directory chunks for source are written to.
func (w *ChunkWriter) Dir(source string) string {
	return filepath.Join(w.dir, strings.TrimSuffix(source, filepath.Ext(source)))
}

// Write replaces any previously written chunks of source.
func (w *ChunkWriter) Write(source string, chunks []*models.Chunk) error {
	dir := w.Dir(source)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear chunk directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create chunk directory: %w", err)
	}
	for _, c := range chunks {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(chunkFile{Text: c.Text, Metadata: c.Metadata()}); err != nil {
			return fmt.Errorf("failed to encode chunk %d: %w", c.ChunkIndex, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("chunk_%d.json", c.ChunkIndex))
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			return fmt.Errorf("failed to write chunk %d: %w", c.ChunkIndex, err)
		}
	}
	return nil
}

// Remove deletes the chunk files of source.
func (w *ChunkWriter) Remove(source string) error {
	return os.RemoveAll(w.Dir(source))
}
