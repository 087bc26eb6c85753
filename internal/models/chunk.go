// Package models defines the data structures shared by the pipelines and the HTTP API.
package models

import (
	"fmt"
	"strconv"
)

// Metadata keys attached to every chunk.
const (
	MetaSource      = "source"
	MetaFilePath    = "file_path"
	MetaFileType    = "file_type"
	MetaChunkID     = "chunk_id"
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
)

// Chunk is a bounded fragment of one source document. Immutable once created.
type Chunk struct {
	Text        string `json:"text"`
	SourceFile  string `json:"source_file"`
	FilePath    string `json:"file_path"`
	FileType    string `json:"file_type"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	ChunkID     string `json:"chunk_id"`
}

// ChunkIDFor returns the positional chunk id: the index as a decimal string.
func ChunkIDFor(index int) string {
	return strconv.Itoa(index)
}

// EntryID is the vector store key for the chunk. The positional chunk id alone
// collides across documents, so the source file name is part of the key.
func (c *Chunk) EntryID() string {
	return fmt.Sprintf("%s:%d", c.SourceFile, c.ChunkIndex)
}

// Metadata returns the chunk's metadata map as stored alongside its vector.
func (c *Chunk) Metadata() map[string]any {
	return map[string]any{
		MetaSource:      c.SourceFile,
		MetaFilePath:    c.FilePath,
		MetaFileType:    c.FileType,
		MetaChunkID:     c.ChunkID,
		MetaChunkIndex:  c.ChunkIndex,
		MetaTotalChunks: c.TotalChunks,
	}
}
