// Package server provides the HTTP API for mxrag.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/mxrag/internal/chat"
	"github.com/hyperjump/mxrag/internal/config"
	"github.com/hyperjump/mxrag/internal/ingest"
	"github.com/hyperjump/mxrag/internal/storage"
	"github.com/hyperjump/mxrag/internal/summary"
	"github.com/hyperjump/mxrag/internal/vectorstore"
)

// Dependencies are the services behind the routes. Ledger may be nil.
type Dependencies struct {
	Chat    *chat.Service
	Summary *summary.Service
	Ingest  *ingest.Pipeline
	Store   vectorstore.Store
	Ledger  storage.Ledger
}

// Server is the HTTP server for the mxrag API.
type Server struct {
	deps    Dependencies
	config  *config.Config
	version string
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Dependencies, cfg *config.Config, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		deps:    deps,
		config:  cfg,
		version: version,
		logger:  logger,
	}
}

// Handler returns the routed and instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Duration(s.config.Server.RequestTimeoutSeconds) * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Post("/chat", s.handleChat)
	r.Post("/chat/", s.handleChat)
	r.Post("/chat/raw", s.handleChatRaw)
	r.Post("/summary", s.handleSummary)
	r.Post("/summary/", s.handleSummary)
	r.Post("/ingest", s.handleIngest)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/documents", s.handleDocuments)

	return otelhttp.NewHandler(r, "mxrag.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
