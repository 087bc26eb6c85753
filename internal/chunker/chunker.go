// Package chunker splits extracted document text into overlapping fixed-size chunks.
package chunker

import (
	"fmt"

	"github.com/hyperjump/mxrag/internal/apperr"
	"github.com/hyperjump/mxrag/internal/models"
)

// Chunker splits text into overlapping character windows. Sizes count runes, not bytes.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// SourceInfo is the provenance copied onto every chunk of one document.
type SourceInfo struct {
	SourceFile string
	FilePath   string
	FileType   string
}

// New creates a chunker with the given size and overlap (in characters).
// size must be greater than overlap and overlap must not be negative.
func New(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkOverlap < 0 {
		return nil, apperr.Configuration(fmt.Sprintf("chunk overlap must not be negative, got %d", chunkOverlap))
	}
	if chunkSize <= chunkOverlap {
		return nil, apperr.Configuration(fmt.Sprintf("chunk size (%d) must be greater than overlap (%d)", chunkSize, chunkOverlap))
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// Size returns the chunk size in characters.
func (c *Chunker) Size() int { return c.chunkSize }

// Overlap returns the chunk overlap in characters.
func (c *Chunker) Overlap() int { return c.chunkOverlap }

// Split returns the text windows. Each window after the first starts size-overlap
// characters after the previous one; the last may be shorter than size.
// Empty text yields no windows.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := c.chunkSize - c.chunkOverlap
	var parts []string
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return parts
}

// Chunk splits text and attaches positional and provenance metadata.
func (c *Chunker) Chunk(src SourceInfo, text string) []*models.Chunk {
	parts := c.Split(text)
	if len(parts) == 0 {
		return nil
	}
	chunks := make([]*models.Chunk, len(parts))
	for i, part := range parts {
		chunks[i] = &models.Chunk{
			Text:        part,
			SourceFile:  src.SourceFile,
			FilePath:    src.FilePath,
			FileType:    src.FileType,
			ChunkIndex:  i,
			TotalChunks: len(parts),
			ChunkID:     models.ChunkIDFor(i),
		}
	}
	return chunks
}

// Reconstruct joins chunk texts back into the original text by dropping the
// leading overlap of every chunk after the first.
func Reconstruct(parts []string, overlap int) string {
	var out []rune
	for i, part := range parts {
		r := []rune(part)
		if i > 0 {
			if overlap >= len(r) {
				continue
			}
			r = r[overlap:]
		}
		out = append(out, r...)
	}
	return string(out)
}
