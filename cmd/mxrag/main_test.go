package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mxrag/internal/cli"
	"github.com/hyperjump/mxrag/internal/config"
	"github.com/hyperjump/mxrag/internal/storage"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{"flags after query are moved first", []string{"refund policy", "-raw"}, []string{"-raw", "refund policy"}},
		{"flags first returns unchanged", []string{"-raw", "refund policy"}, []string{"-raw", "refund policy"}},
		{"query only returns unchanged", []string{"refund policy"}, []string{"refund policy"}},
		{"empty args returns unchanged", []string{}, []string{}},
		{"multiple positionals then flags", []string{"one", "two", "-output", "json"}, []string{"-output", "json", "one", "two"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"refunds"}, "refunds"},
		{"multiple words", []string{"refund", "policy"}, "refund policy"},
		{"quoted phrase", []string{"refund policy"}, "refund policy"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuery(tt.args); got != tt.expected {
				t.Errorf("buildQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("debug: true\nserver:\n  port: 8080\n"), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  host: \"127.0.0.1\"\n  port: 9000\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestReadHistoryFile(t *testing.T) {
	h, err := readHistoryFile("")
	if err != nil || h == nil || len(h) != 0 {
		t.Fatalf("empty path: %v, %v", h, err)
	}
	path := filepath.Join(t.TempDir(), "h.json")
	if err := os.WriteFile(path, []byte(`[["q","a"]]`), 0600); err != nil {
		t.Fatal(err)
	}
	h, err = readHistoryFile(path)
	if err != nil || len(h) != 1 || h[0].User != "q" {
		t.Errorf("history = %+v, err = %v", h, err)
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"ok", http.StatusOK, `{"answer":"x"}`, ""},
		{"detail", http.StatusUnprocessableEntity, `{"detail":"Query cannot be empty"}`, "422: Query cannot be empty"},
		{"plain", http.StatusBadGateway, "bad gateway\n", "502: bad gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Body: io.NopCloser(strings.NewReader(tt.body))}
			var out map[string]string
			err := decodeResponse(resp, &out)
			if tt.wantErr == "" {
				if err != nil || out["answer"] != "x" {
					t.Errorf("out = %v, err = %v", out, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestSeconds(t *testing.T) {
	if got := seconds(1.5); got != 1500*time.Millisecond {
		t.Errorf("seconds(1.5) = %v", got)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.Dimensions = 8
	cfg.Embedding.Provider = config.EmbeddingProviderMock
	cfg.VectorStore.Backend = config.BackendSQLite
	cfg.VectorStore.PersistDirectory = filepath.Join(dir, "vectors")
	cfg.Ingest.PDFDirectory = filepath.Join(dir, "pdfs")
	cfg.Ingest.ChunksDirectory = filepath.Join(dir, "chunks")
	cfg.Storage.DatabasePath = filepath.Join(dir, "ledger.db")
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(cfg.Ingest.PDFDirectory, 0755); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestInitializeComponents(t *testing.T) {
	cfg := testConfig(t)
	c, err := initializeComponents(context.Background(), cfg, zap.NewNop(), false)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Chat == nil || c.Summary == nil || c.Pipeline == nil || c.Store == nil || c.Ledger == nil {
		t.Fatalf("components not wired: %+v", c)
	}
	if c.Embedder.Dimensions() != 8 {
		t.Errorf("dimensions = %d", c.Embedder.Dimensions())
	}
	if c.Pipeline.Dir() != cfg.Ingest.PDFDirectory {
		t.Errorf("pipeline dir = %s", c.Pipeline.Dir())
	}
}

func TestStartWatcher_ingestsFilesAddedWhileDown(t *testing.T) {
	cfg := testConfig(t)
	// Not a parseable PDF: the ledger still records the attempt.
	if err := os.WriteFile(filepath.Join(cfg.Ingest.PDFDirectory, "offline.pdf"), []byte("%PDF-1.4 broken"), 0600); err != nil {
		t.Fatal(err)
	}
	c, err := initializeComponents(context.Background(), cfg, zap.NewNop(), false)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w, err := startWatcher(ctx, cfg.Ingest.PDFDirectory, c.Pipeline, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for {
		docs, err := c.Ledger.ListDocuments(ctx, 0, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(docs) == 1 {
			if docs[0].Source != "offline.pdf" {
				t.Errorf("source = %q", docs[0].Source)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("file present before start was never ingested")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestIngestDocuments_exitCode(t *testing.T) {
	tests := []struct {
		name     string
		files    []string
		wantCode int
		wantOut  string
	}{
		{"no pdfs", nil, 1, "No PDF files found"},
		{"all failed", []string{"broken.pdf"}, 1, "Failed to process all PDF files"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			for _, name := range tt.files {
				if err := os.WriteFile(filepath.Join(cfg.Ingest.PDFDirectory, name), []byte("not a pdf"), 0600); err != nil {
					t.Fatal(err)
				}
			}
			var out strings.Builder
			code := ingestDocuments(context.Background(), cfg, zap.NewNop(), false, "", cli.OutputJSON, &out)
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("output = %s", out.String())
			}

			// Components were closed on return, so the ledger opens cleanly again.
			ledger, err := storage.NewSQLiteLedger(cfg.Storage.DatabasePath)
			if err != nil {
				t.Fatal(err)
			}
			defer ledger.Close()
			n, err := ledger.CountDocuments(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if int(n) != len(tt.files) {
				t.Errorf("ledger documents = %d, want %d", n, len(tt.files))
			}
		})
	}
}
