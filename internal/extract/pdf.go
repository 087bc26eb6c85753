package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/hyperjump/mxrag/internal/apperr"
)

// PDFExtractor extracts text from PDF files page by page.
type PDFExtractor struct{}

// NewPDFExtractor returns a PDF extractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract reads the PDF at path and returns the text of all pages, trimmed.
// A missing file is a not_found document error; an unparsable file or one with
// zero pages is a corrupt document error.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperr.Document(apperr.ReasonNotFound, "PDF file not found: "+path, nil)
		}
		return "", apperr.Document(apperr.ReasonNotFound, "read PDF "+path, err)
	}
	text, err := extractPDF(ctx, content)
	if err != nil {
		return "", apperr.Document(apperr.ReasonCorrupt, "error processing PDF "+path, err)
	}
	return strings.TrimSpace(text), nil
}

func extractPDF(ctx context.Context, content []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse PDF: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	if numPages == 0 {
		return "", errors.New("PDF file is empty")
	}
	var buf bytes.Buffer
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		buf.WriteString(pageText)
		if i < numPages {
			buf.WriteByte('\n')
		}
	}
	return buf.String(), nil
}
