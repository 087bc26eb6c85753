package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hyperjump/mxrag/internal/apperr"
)

const (
	payloadEntryID  = "entry_id"
	payloadText     = "text"
	payloadSource   = "source"
	payloadMetadata = "metadata"

	maxErrorBodyBytes = 1024
)

// Qdrant point ids must be UUIDs or integers; entry ids are mapped with a
// name-based UUID so upserts stay idempotent.
var pointIDNamespace = uuid.MustParse("6f1c0b7e-8d0a-4f47-9a59-0c8a2b6e4d21")

// QdrantConfig holds the REST endpoint and collection settings.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Dimensions int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// QdrantStore talks to Qdrant over its REST API with cosine distance.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	collection string
	dimensions int
	http       *http.Client
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

// NewQdrantStore connects to Qdrant and creates the collection when it does not exist.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, apperr.Storef("open", "dimensions must be positive")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, apperr.Configuration("qdrant url is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	s := &QdrantStore{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
		http:       hc,
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(s.collection) + suffix
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	var info struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	status, err := s.do(ctx, "open", http.MethodGet, s.collectionPath(""), nil, &info)
	if err == nil {
		if size := info.Config.Params.Vectors.Size; size != 0 && size != s.dimensions {
			return apperr.Storef("open", "collection %q has vector size %d, expected %d", s.collection, size, s.dimensions)
		}
		return nil
	}
	if status != http.StatusNotFound {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{"size": s.dimensions, "distance": "Cosine"},
	}
	_, err = s.do(ctx, "open", http.MethodPut, s.collectionPath(""), body, nil)
	return err
}

// PointID returns the Qdrant point id for an entry id.
func PointID(entryID string) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(entryID)).String()
}

// Upsert writes all entries in a single request and waits for it to apply.
func (s *QdrantStore) Upsert(ctx context.Context, entries []Entry) error {
	const op = "upsert"
	if err := checkEntries(op, entries, s.dimensions); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		points[i] = map[string]any{
			"id":     PointID(e.ID),
			"vector": e.Vector,
			"payload": map[string]any{
				payloadEntryID:  e.ID,
				payloadText:     e.Text,
				payloadSource:   e.Source(),
				payloadMetadata: e.Metadata,
			},
		}
	}
	_, err := s.do(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
	return err
}

// Query runs a nearest-neighbour search; Qdrant returns cosine similarity as the score.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	const op = "query"
	if err := checkVector(op, vector, s.dimensions); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	var hits []struct {
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	}
	body := map[string]any{"vector": vector, "limit": k, "with_payload": true}
	if _, err := s.do(ctx, op, http.MethodPost, s.collectionPath("/points/search"), body, &hits); err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		e := Entry{}
		e.ID, _ = h.Payload[payloadEntryID].(string)
		e.Text, _ = h.Payload[payloadText].(string)
		if meta, ok := h.Payload[payloadMetadata].(map[string]any); ok {
			e.Metadata = meta
		}
		matches = append(matches, Match{Entry: e, Score: h.Score})
	}
	return matches, nil
}

// DeleteBySource removes points whose payload source matches. Qdrant does not
// report how many points a filter delete removed, so the count is -1.
func (s *QdrantStore) DeleteBySource(ctx context.Context, source string) (int, error) {
	body := map[string]any{
		"filter": map[string]any{
			"must": []any{
				map[string]any{"key": payloadSource, "match": map[string]any{"value": source}},
			},
		},
	}
	if _, err := s.do(ctx, "delete", http.MethodPost, s.collectionPath("/points/delete?wait=true"), body, nil); err != nil {
		return 0, err
	}
	return -1, nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	var res struct {
		Count int `json:"count"`
	}
	if _, err := s.do(ctx, "count", http.MethodPost, s.collectionPath("/points/count"), map[string]any{"exact": true}, &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

// Close releases idle connections.
func (s *QdrantStore) Close() error {
	s.http.CloseIdleConnections()
	return nil
}

// do sends one request and decodes the envelope's result into out. The HTTP
// status is returned even on failure so callers can branch on 404.
func (s *QdrantStore) do(ctx context.Context, op, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, apperr.Store(op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return 0, apperr.Store(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return 0, apperr.Store(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return resp.StatusCode, apperr.Storef(op, "qdrant %s %s: status %d: %s",
			method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	var env qdrantEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return resp.StatusCode, apperr.Store(op, fmt.Errorf("decode response: %w", err))
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return resp.StatusCode, apperr.Store(op, fmt.Errorf("decode result: %w", err))
	}
	return resp.StatusCode, nil
}
