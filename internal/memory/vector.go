package memory

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/emberhearth/ember/internal/httpkit"
)

// minIndexableChars is the shortest text worth embedding. Fragments
// below this carry no retrievable meaning.
const minIndexableChars = 12

// Embedder turns text into a vector. A nil Embedder disables semantic
// recall without affecting the rest of the store.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OllamaEmbedder generates embeddings through Ollama's embedding API.
type OllamaEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaEmbedder creates an embedder against the given Ollama URL.
func NewOllamaEmbedder(baseURL, model string) *OllamaEmbedder {
	if model == "" {
		model = "nomic-embed-text"
	}
	return &OllamaEmbedder{
		baseURL: baseURL,
		model:   model,
		client:  httpkit.NewClient(httpkit.WithTimeout(30 * time.Second)),
	}
}

// Embed implements Embedder.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]string{
		"model":  e.model,
		"prompt": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, errBody)
	}

	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return parsed.Embedding, nil
}

// SetEmbedder wires semantic recall into the store.
func (s *Store) SetEmbedder(e Embedder) {
	s.embedder = e
}

// SemanticResult is one scored recall hit.
type SemanticResult struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float32 `json:"score"`
}

// Index embeds text and stores the vector. Short fragments and a
// missing embedder are silent no-ops; embedding failures degrade to a
// logged skip rather than an error, the store works without vectors.
func (s *Store) Index(ctx context.Context, source, text string) {
	if s.embedder == nil || len(text) < minIndexableChars {
		return
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Debug("embedding unavailable, skipping index", "error", err)
		return
	}

	id, _ := uuid.NewV7()
	_, err = s.db.Exec(`
		INSERT INTO memory_vectors (id, source, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id.String(), source, text, encodeVector(vec), s.nowFunc().UTC())
	if err != nil {
		s.logger.Warn("store vector", "error", err)
	}
}

// SemanticSearch returns the k stored memories most similar to query.
// Returns nil when semantic recall is unavailable.
func (s *Store) SemanticSearch(ctx context.Context, query string, k int) []SemanticResult {
	if s.embedder == nil || len(query) < minIndexableChars {
		return nil
	}
	if k <= 0 {
		k = 5
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Debug("embedding unavailable, skipping search", "error", err)
		return nil
	}

	rows, err := s.db.Query(`SELECT source, content, embedding FROM memory_vectors`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var results []SemanticResult
	for rows.Next() {
		var source, content string
		var blob []byte
		if err := rows.Scan(&source, &content, &blob); err != nil {
			continue
		}
		vec := decodeVector(blob)
		results = append(results, SemanticResult{
			Content: content,
			Source:  source,
			Score:   cosineSimilarity(queryVec, vec),
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// cosineSimilarity computes cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

// encodeVector packs a float32 slice into a little-endian blob.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
