package memory

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

// stubEmbedder maps known texts to fixed vectors.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func TestSemanticSearchRanksBySimilarity(t *testing.T) {
	s := openTestStore(t, 0)
	s.SetEmbedder(&stubEmbedder{vectors: map[string][]float32{
		"the garden needs watering":   {1, 0, 0},
		"quantum computing basics":    {0, 1, 0},
		"tomato plants in the garden": {0.9, 0.1, 0},
	}})

	ctx := context.Background()
	s.Index(ctx, "conversation", "the garden needs watering")
	s.Index(ctx, "conversation", "quantum computing basics")

	s.SetEmbedder(&stubEmbedder{vectors: map[string][]float32{
		"tomato plants in the garden": {0.9, 0.1, 0},
	}})
	hits := s.SemanticSearch(ctx, "tomato plants in the garden", 2)
	if len(hits) != 2 {
		t.Fatalf("SemanticSearch() = %d hits, want 2", len(hits))
	}
	if hits[0].Content != "the garden needs watering" {
		t.Errorf("top hit = %q, want the garden entry", hits[0].Content)
	}
	if hits[0].Score <= hits[1].Score {
		t.Error("hits not ordered by descending score")
	}
}

func TestIndexSkipsShortText(t *testing.T) {
	s := openTestStore(t, 0)
	s.SetEmbedder(&stubEmbedder{})

	s.Index(context.Background(), "conversation", "hi there")

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM memory_vectors`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("short text was indexed, rows = %d", count)
	}
}

func TestSemanticDegradesWithoutEmbedder(t *testing.T) {
	s := openTestStore(t, 0)

	s.Index(context.Background(), "conversation", "long enough text to index normally")
	if hits := s.SemanticSearch(context.Background(), "long enough query text", 3); hits != nil {
		t.Errorf("search without embedder = %v, want nil", hits)
	}
}

func TestIndexSwallowsEmbeddingErrors(t *testing.T) {
	s := openTestStore(t, 0)
	s.SetEmbedder(&stubEmbedder{err: errors.New("ollama down")})

	s.Index(context.Background(), "conversation", "this text is long enough to index")
	if hits := s.SemanticSearch(context.Background(), "query long enough here", 3); hits != nil {
		t.Errorf("search with failing embedder = %v, want nil", hits)
	}
}

func TestVectorEncodingRoundTrip(t *testing.T) {
	in := []float32{0.5, -1.25, 3.75, 0}
	out := decodeVector(encodeVector(in))
	if len(out) != len(in) {
		t.Fatalf("round trip length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("element %d = %f, want %f", i, out[i], in[i])
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		got := cosineSimilarity(tt.a, tt.b)
		if math.Abs(float64(got-tt.want)) > 1e-6 {
			t.Errorf("%s: cosine = %f, want %f", tt.name, got, tt.want)
		}
	}
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"embedding": [0.1, 0.2, 0.3]}`))
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "")
	vec, err := e.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("embedding length = %d, want 3", len(vec))
	}
}

func TestOllamaEmbedderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "nomic-embed-text")
	if _, err := e.Embed(context.Background(), "text"); err == nil {
		t.Error("Embed() should surface non-200 status")
	}
}
