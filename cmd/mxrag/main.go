// Package main is the mxrag CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mxrag/internal/chat"
	"github.com/hyperjump/mxrag/internal/chunker"
	"github.com/hyperjump/mxrag/internal/cli"
	"github.com/hyperjump/mxrag/internal/config"
	"github.com/hyperjump/mxrag/internal/cost"
	"github.com/hyperjump/mxrag/internal/embedding"
	"github.com/hyperjump/mxrag/internal/extract"
	"github.com/hyperjump/mxrag/internal/ingest"
	"github.com/hyperjump/mxrag/internal/llm"
	"github.com/hyperjump/mxrag/internal/models"
	"github.com/hyperjump/mxrag/internal/openai"
	"github.com/hyperjump/mxrag/internal/server"
	"github.com/hyperjump/mxrag/internal/storage"
	"github.com/hyperjump/mxrag/internal/summary"
	"github.com/hyperjump/mxrag/internal/telemetry"
	"github.com/hyperjump/mxrag/internal/vectorstore"
	"github.com/hyperjump/mxrag/internal/watcher"
	"github.com/hyperjump/mxrag/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/mxrag/config.yaml"
	defaultServerURL  = "http://localhost:8000"
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory wins if present; when neither exists the configuration
// comes from the environment alone. Returns the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	resolved := path
	if path == defaultConfigPath {
		resolved = ""
		if cwd, err := os.Getwd(); err == nil {
			if fallback := filepath.Join(cwd, "config.yaml"); fileExists(fallback) {
				resolved = fallback
			}
		}
		if resolved == "" && fileExists(defaultConfigPath) {
			resolved = defaultConfigPath
		}
	}
	cfg, err := config.Load(resolved)
	if err != nil {
		return nil, "", err
	}
	return cfg, resolved, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "chat":
		runChat()
	case "summary":
		runSummary()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("mxrag version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and builds the logger shared by every local subcommand.
func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, bool) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	return cfg, logger, debugMode
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, debugMode := setup(*configPath, *debug)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Init(ctx, logger, cfg.Telemetry, version)

	components, err := initializeComponents(ctx, cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if cfg.Ingest.Watch {
		w, err := startWatcher(ctx, cfg.Ingest.PDFDirectory, components.Pipeline, logger)
		if err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(server.Dependencies{
		Chat:    components.Chat,
		Summary: components.Summary,
		Ingest:  components.Pipeline,
		Store:   components.Store,
		Ledger:  components.Ledger,
	}, cfg, version, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown failed", zap.Error(err))
	}
}

// startWatcher keeps the store in step with the PDF directory. Files that
// arrived while the server was down are ingested in the background.
func startWatcher(ctx context.Context, dir string, pipeline *ingest.Pipeline, logger *zap.Logger) (*watcher.Watcher, error) {
	w := watcher.New(dir,
		func(path string) {
			if res := pipeline.IngestFile(ctx, path); !res.Succeeded() {
				logger.Warn("watch ingest failed", zap.String("path", path), zap.String("error", res.Error))
			}
		},
		func(path string) {
			if err := pipeline.RemoveFile(ctx, path); err != nil {
				logger.Warn("watch remove failed", zap.String("path", path), zap.Error(err))
			}
		},
		watcher.WithLogger(logger),
	)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	go func() {
		if err := w.SyncExistingFiles(); err != nil {
			logger.Warn("initial sync of pdf directory failed", zap.String("dir", dir), zap.Error(err))
		}
	}()
	return w, nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	file := fs.String("file", "", "ingest a single PDF instead of the whole directory")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, logger, debugMode := setup(*configPath, *debug)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := ingestDocuments(ctx, cfg, logger, debugMode, *file, format, os.Stdout)
	stop()
	_ = logger.Sync()
	if code != 0 {
		os.Exit(code)
	}
}

// ingestDocuments runs the pipeline once and returns the process exit code.
// Components are closed before it returns.
func ingestDocuments(ctx context.Context, cfg *config.Config, logger *zap.Logger, debug bool, file string, format cli.OutputFormat, out io.Writer) int {
	components, err := initializeComponents(ctx, cfg, logger, debug)
	if err != nil {
		logger.Error("Failed to initialize components", zap.Error(err))
		return 1
	}
	defer components.Close()

	var results []models.IngestResult
	if file != "" {
		abs, err := filepath.Abs(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid path: %v\n", err)
			return 1
		}
		results = []models.IngestResult{components.Pipeline.IngestFile(ctx, abs)}
	} else {
		results, err = components.Pipeline.IngestDirectory(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during ingestion: %v\n", err)
			return 1
		}
	}
	resp := models.NewIngestResponse(results)
	if err := cli.WriteIngest(out, &resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		return 1
	}
	if resp.Status != models.StatusSuccess {
		return 1
	}
	return 0
}

// argsReorder moves flags that appear after the positional query to the front,
// since flag parsing stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildQuery joins positional args so multi-word queries work without quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func readHistoryFile(path string) (models.History, error) {
	if path == "" {
		return models.History{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return cli.ReadHistory(f)
}

func runChat() {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	raw := fs.Bool("raw", false, "ask the model directly, without retrieval")
	historyPath := fs.String("history", "", "JSON file with [[user, assistant], ...] turns")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	query := buildQuery(fs.Args())
	if query == "" {
		fmt.Fprintln(os.Stderr, "Usage: mxrag chat [flags] <query>")
		os.Exit(1)
	}
	history, err := readHistoryFile(*historyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read history: %v\n", err)
		os.Exit(1)
	}
	req := models.ChatRequest{Query: query, History: history}

	if *raw {
		var resp models.RawChatResponse
		if err := postJSON(*serverURL+"/chat/raw", req, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Chat failed: %v\n", err)
			os.Exit(1)
		}
		_ = cli.WriteRawChat(os.Stdout, &resp, format)
		return
	}
	var resp models.ChatResponse
	if err := postJSON(*serverURL+"/chat", req, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Chat failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteChat(os.Stdout, &resp, format)
}

func runSummary() {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	historyPath := fs.String("history", "", "JSON file with [[user, assistant], ...] turns (required)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *historyPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: mxrag summary --history file.json")
		os.Exit(1)
	}
	history, err := readHistoryFile(*historyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read history: %v\n", err)
		os.Exit(1)
	}
	var resp models.SummaryResponse
	if err := postJSON(*serverURL+"/summary", models.ChatRequest{History: history}, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Summary failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteSummary(os.Stdout, &resp, format)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open the stores directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var status map[string]any
	if *serverURL != "" {
		if err := getJSON(*serverURL+"/status", &status); err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		status, err = statusDirect(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// statusDirect reads counts without a running server.
func statusDirect(configPath string) (map[string]any, error) {
	cfg, logger, _ := setup(configPath, false)
	defer logger.Sync()
	ctx := context.Background()

	store, err := vectorstore.New(ctx, cfg, cfg.OpenAI.Dimensions, logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	vectors, err := store.Count(ctx)
	if err != nil {
		return nil, err
	}
	ledger, err := storage.NewSQLiteLedger(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer ledger.Close()
	docs, err := ledger.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	status := map[string]any{
		"version":   version,
		"vectors":   vectors,
		"documents": docs,
		"config": map[string]any{
			"vector_store_backend": cfg.VectorStore.Backend,
			"collection_name":      cfg.VectorStore.CollectionName,
			"pdf_directory":        cfg.Ingest.PDFDirectory,
		},
	}
	if diskBytes, err := storage.DiskUsageBytes(cfg.VectorStore.PersistDirectory, cfg.Ingest.ChunksDirectory, cfg.Storage.DatabasePath); err == nil {
		status["disk_usage_bytes"] = diskBytes
	}
	return status, nil
}

var httpClient = &http.Client{Timeout: 5 * time.Minute}

func postJSON(url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func getJSON(url string, out any) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// decodeResponse decodes a 200 body into out, or turns the {"detail"} body of
// a failure into an error.
func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		var e struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(b, &e) == nil && e.Detail != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Detail)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Components holds the long-lived services shared by the server and local commands.
type Components struct {
	Ledger   storage.Ledger
	Embedder embedding.Embedder
	Store    vectorstore.Store
	Pipeline *ingest.Pipeline
	Chat     *chat.Service
	Summary  *summary.Service
}

func (c *Components) Close() {
	if c.Ledger != nil {
		_ = c.Ledger.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	c := &Components{}
	fail := func(err error) (*Components, error) {
		c.Close()
		return nil, err
	}

	ledger, err := storage.NewSQLiteLedger(cfg.Storage.DatabasePath)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize ledger: %w", err))
	}
	c.Ledger = ledger

	client, err := openai.NewClient(openai.Config{
		APIKey:     cfg.OpenAI.APIKey,
		BaseURL:    cfg.OpenAI.BaseURL,
		Timeout:    seconds(cfg.OpenAI.TimeoutSeconds),
		MaxRetries: cfg.OpenAI.MaxRetriesOrDefault(),
		RetryMin:   seconds(cfg.OpenAI.RetryMinOrDefault()),
		RetryMax:   seconds(cfg.OpenAI.RetryMaxOrDefault()),
	}, openai.WithLogger(logger))
	if err != nil {
		return fail(err)
	}

	embedder, err := embedding.New(cfg, client, logger)
	if err != nil {
		return fail(err)
	}
	c.Embedder = embedder

	store, err := vectorstore.New(ctx, cfg, embedder.Dimensions(), logger)
	if err != nil {
		return fail(err)
	}
	c.Store = store

	ch, err := chunker.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlapOrDefault())
	if err != nil {
		return fail(err)
	}
	pipelineOpts := []ingest.Option{ingest.WithLogger(logger), ingest.WithLedger(ledger)}
	if cfg.Ingest.SaveChunksOrDefault() {
		pipelineOpts = append(pipelineOpts, ingest.WithChunkWriter(ingest.NewChunkWriter(cfg.Ingest.ChunksDirectory)))
	}
	c.Pipeline = ingest.New(cfg.Ingest.PDFDirectory, extract.NewPDFExtractor(), ch, embedder, store, pipelineOpts...)

	tok, err := cost.NewTiktokenTokenizer(cfg.Pricing.Encoding)
	if err != nil {
		return fail(err)
	}
	accountant := cost.NewAccountant(tok, cost.Rates{
		Input:       cfg.Pricing.InputRate(),
		CachedInput: cfg.Pricing.CachedInputRate(),
		Output:      cfg.Pricing.OutputRate(),
	})

	modelOpts := []llm.Option{llm.WithStreaming(cfg.Chat.Streaming)}
	if debug {
		modelOpts = append(modelOpts, llm.WithLogger(logger))
	}
	model := llm.NewOpenAIModel(client, cfg.Chat.ModelName, cfg.Chat.Temperature, cfg.Chat.MaxTokens, modelOpts...)

	sanitize := cfg.Chat.SanitizeHistoryOrDefault()
	c.Chat = chat.NewService(store, embedder, model, accountant, chat.Settings{
		TopK:            cfg.Chat.TopK,
		ReturnSources:   cfg.Chat.ReturnSourceDocsOrDefault(),
		SanitizeHistory: sanitize,
	}, chat.WithLogger(logger))
	c.Summary = summary.NewService(model, accountant, sanitize, logger)
	return c, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func printUsage() {
	fmt.Println(`mxrag - Retrieval-augmented chat over your PDF library

Usage:
  mxrag server [flags]            Start the HTTP server
  mxrag ingest [flags]            Ingest the PDF directory (or one file with --file)
  mxrag chat [flags] <query>      Ask a question through the running server
  mxrag summary --history <file>  Summarise a conversation through the running server
  mxrag status [flags]            Show vector store and ledger status
  mxrag version                   Show version
  mxrag help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/mxrag/config.yaml, or ./config.yaml)
  --debug            Enable debug logging

Ingest Flags:
  --config string    Config file path
  --file string      Ingest a single PDF
  --output string    Output format: text or json (default: text)

Chat Flags:
  --server string    Server URL (default: http://localhost:8000)
  --raw              Ask the model directly, without retrieval
  --history string   JSON file with [[user, assistant], ...] turns
  --output string    Output format: text or json (default: text)

Status Flags:
  --server string    Server URL. Use empty (--server "") to open the stores directly.
  --output string    Output format: text or json (default: text)

Examples:
  mxrag server
  mxrag ingest
  mxrag chat "What is the refund policy?"
  mxrag chat --raw --history turns.json and what about shipping
  mxrag summary --history turns.json
  mxrag status --output json`)
}
