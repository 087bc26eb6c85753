package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/mxrag/internal/models"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"text", OutputText, false},
		{"json", OutputJSON, false},
		{"yaml", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteChat_text(t *testing.T) {
	resp := &models.ChatResponse{
		Answer: "Thirty days.",
		Sources: []models.SourceDocument{
			{ID: "0", Source: "terms.pdf", Content: strings.Repeat("x", 300)},
		},
		ProcessingTime: 1.234,
		CostInfo:       models.CostInfo{InputTokens: 10, OutputTokens: 2, TotalCost: 0.0001, IsCached: true},
	}
	var buf bytes.Buffer
	if err := WriteChat(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Thirty days.", "[1] terms.pdf (chunk 0)", "...", "10 in / 2 out", "cached input"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteChat_json(t *testing.T) {
	resp := &models.ChatResponse{Answer: "a <b>", Sources: []models.SourceDocument{}}
	var buf bytes.Buffer
	if err := WriteChat(&buf, resp, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "a <b>") {
		t.Errorf("HTML should not be escaped: %s", buf.String())
	}
	var decoded models.ChatResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("not valid JSON: %v", err)
	}
}

func TestWriteIngest_text(t *testing.T) {
	n := 4
	resp := &models.IngestResponse{
		Status:  models.StatusPartial,
		Message: "Some files failed to process",
		Results: []models.IngestResult{
			{File: "/pdfs/a.pdf", Status: models.StatusSuccess, ChunksProcessed: &n},
			{File: "/pdfs/b.pdf", Status: models.StatusError, Error: "corrupt"},
		},
	}
	var buf bytes.Buffer
	if err := WriteIngest(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"ok     /pdfs/a.pdf (4 chunks)", "error  /pdfs/b.pdf: corrupt", "partial: Some files failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteStatus_text(t *testing.T) {
	status := map[string]any{
		"vectors":   float64(12),
		"documents": float64(2),
		"config":    map[string]any{"top_k": float64(3), "chat_model": "gpt-4"},
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, status, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "vectors:") || !strings.Contains(out, " 12\n") {
		t.Errorf("numbers should print as integers:\n%s", out)
	}
	if strings.Index(out, "# config") < strings.Index(out, "vectors:") {
		t.Errorf("sections should follow scalar fields:\n%s", out)
	}
	if !strings.Contains(out, "  chat_model:") {
		t.Errorf("nested fields should be indented:\n%s", out)
	}
}

func TestReadHistory(t *testing.T) {
	h, err := ReadHistory(strings.NewReader(`[["hi","hello"],["how are you","fine"]]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 2 || h[1].Assistant != "fine" {
		t.Errorf("history = %+v", h)
	}
	if _, err := ReadHistory(strings.NewReader(`[["only"]]`)); err == nil {
		t.Error("expected error for malformed pair")
	}
}
