package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hyperjump/mxrag/internal/apperr"
	"github.com/hyperjump/mxrag/internal/models"
	"github.com/hyperjump/mxrag/internal/storage"
)

const maxBodyBytes = 1 << 20

// decodeRequest reads a ChatRequest. A missing body decodes to the zero value
// so that field validation reports the problem.
func decodeRequest(r *http.Request) (models.ChatRequest, error) {
	var req models.ChatRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, apperr.Validation("invalid request body: " + err.Error())
	}
	return req, nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.logger.Debug("chat request", zap.Int("query_len", len(req.Query)), zap.Int("history", len(req.History)))
	resp, err := s.deps.Chat.Chat(r.Context(), req)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatRaw(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.logger.Debug("raw chat request", zap.Int("query_len", len(req.Query)), zap.Int("history", len(req.History)))
	resp, err := s.deps.Chat.ChatRaw(r.Context(), req)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	resp, err := s.deps.Summary.Summarize(r.Context(), req.History)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	results, err := s.deps.Ingest.IngestDirectory(r.Context())
	if err != nil {
		s.logger.Error("ingestion failed", zap.Error(err))
		s.respondJSON(w, http.StatusInternalServerError, models.IngestResponse{
			Status: models.StatusError,
			Detail: "Error during ingestion: " + err.Error(),
		})
		return
	}
	status, body := ingestOutcome(results)
	s.respondJSON(w, status, body)
}

// ingestOutcome maps per-file results to the response status and body.
func ingestOutcome(results []models.IngestResult) (int, models.IngestResponse) {
	body := models.NewIngestResponse(results)
	switch {
	case len(results) == 0:
		return http.StatusNotFound, body
	case body.Status == models.StatusError:
		return http.StatusInternalServerError, body
	case body.Status == models.StatusPartial:
		return http.StatusMultiStatus, body
	default:
		return http.StatusOK, body
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vectors, err := s.deps.Store.Count(ctx)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	resp := map[string]any{
		"version": s.version,
		"vectors": vectors,
	}
	if s.deps.Ledger != nil {
		docs, err := s.deps.Ledger.CountDocuments(ctx)
		if err != nil {
			s.respondFailure(w, err)
			return
		}
		resp["documents"] = docs
	}

	cfg := s.config
	resp["config"] = map[string]any{
		"vector_store_backend": cfg.VectorStore.Backend,
		"collection_name":      cfg.VectorStore.CollectionName,
		"embedding_provider":   cfg.Embedding.Provider,
		"embedding_model":      cfg.OpenAI.Model,
		"embedding_dimensions": cfg.OpenAI.Dimensions,
		"chat_model":           cfg.Chat.ModelName,
		"chunk_size":           cfg.Ingest.ChunkSize,
		"chunk_overlap":        cfg.Ingest.ChunkOverlapOrDefault(),
		"top_k":                cfg.Chat.TopK,
		"pdf_directory":        cfg.Ingest.PDFDirectory,
	}
	if diskBytes, err := storage.DiskUsageBytes(
		cfg.VectorStore.PersistDirectory,
		cfg.Ingest.ChunksDirectory,
		cfg.Storage.DatabasePath,
	); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		s.respondError(w, http.StatusNotImplemented, "document ledger not enabled")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	docs, err := s.deps.Ledger.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	total, err := s.deps.Ledger.CountDocuments(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	if docs == nil {
		docs = []*models.IngestedDocument{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"total":     total,
		"offset":    offset,
		"limit":     limit,
	})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation(key + " must be a non-negative integer")
	}
	return n, nil
}

// respondFailure maps err to a status: validation errors are the client's
// fault (422), everything else is a server failure (500).
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	if apperr.IsKind(err, apperr.KindValidation) {
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.logger.Error("request failed", zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"detail": message})
}
