package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mxrag/internal/apperr"
	"github.com/hyperjump/mxrag/internal/config"
	"github.com/hyperjump/mxrag/internal/openai"
)

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()
	a, err := e.Embed(ctx, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.Embed(ctx, "alpha")
	c, _ := e.Embed(ctx, "beta")
	if len(a) != 16 || e.Dimensions() != 16 {
		t.Fatalf("dimensions: %d", len(a))
	}
	var norm float64
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text must embed identically")
		}
		norm += float64(a[i] * a[i])
	}
	if math.Abs(norm-1) > 1e-4 {
		t.Errorf("vector should be unit length, norm^2 = %f", norm)
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("different texts should embed differently")
	}
}

func TestMockEmbedder_canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockEmbedder(4).EmbedBatch(ctx, []string{"a"}); err == nil {
		t.Fatal("expected context error")
	}
}

// fakeEmbeddings serves /v1/embeddings with vectors whose first element is the
// global input position, so batching order can be checked.
func fakeEmbeddings(t *testing.T, dims int, calls *int32) *httptest.Server {
	var seen int32
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
			return
		}
		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			v := make([]float32, dims)
			v[0] = float32(atomic.AddInt32(&seen, 1) - 1)
			data[i] = item{Index: i, Embedding: v}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func newClient(t *testing.T, url string) *openai.Client {
	t.Helper()
	c, err := openai.NewClient(openai.Config{
		APIKey:   "sk-test",
		BaseURL:  url,
		Timeout:  time.Second,
		RetryMin: time.Millisecond,
		RetryMax: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestOpenAIEmbedder_batches(t *testing.T) {
	var calls int32
	srv := fakeEmbeddings(t, 4, &calls)
	defer srv.Close()

	e := NewOpenAIEmbedder(newClient(t, srv.URL), OpenAIOptions{Model: "m", Dimensions: 4, BatchSize: 2}, zap.NewNop())
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 5 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	for i, v := range vecs {
		if v[0] != float32(i) {
			t.Errorf("vector %d out of order: %v", i, v)
		}
	}
	if calls != 3 {
		t.Errorf("expected 3 provider calls for 5 inputs in batches of 2, got %d", calls)
	}
}

func TestOpenAIEmbedder_dimensionMismatch(t *testing.T) {
	var calls int32
	srv := fakeEmbeddings(t, 3, &calls)
	defer srv.Close()

	e := NewOpenAIEmbedder(newClient(t, srv.URL), OpenAIOptions{Model: "m", Dimensions: 4}, nil)
	_, err := e.Embed(context.Background(), "a")
	if !apperr.IsKind(err, apperr.KindProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestNew(t *testing.T) {
	cfg := &config.Config{}
	cfg.OpenAI.APIKey = "sk-test"
	config.ApplyDefaults(cfg)

	tests := []struct {
		name     string
		provider string
		client   bool
		wantErr  bool
	}{
		{"mock", config.EmbeddingProviderMock, false, false},
		{"openai", config.EmbeddingProviderOpenAI, true, false},
		{"openai without client", config.EmbeddingProviderOpenAI, false, true},
		{"unknown", "word2vec", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *cfg
			c.Embedding.Provider = tt.provider
			var client *openai.Client
			if tt.client {
				client = newClient(t, "http://127.0.0.1:0")
			}
			e, err := New(&c, client, zap.NewNop())
			if tt.wantErr {
				if !apperr.IsKind(err, apperr.KindConfiguration) {
					t.Fatalf("expected configuration error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if e.Dimensions() != cfg.OpenAI.Dimensions {
				t.Errorf("dimensions = %d", e.Dimensions())
			}
		})
	}
}
