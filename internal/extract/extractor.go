// Package extract provides text extraction from PDF documents.
package extract

import "context"

// Extractor returns the plain text of a document file.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}
