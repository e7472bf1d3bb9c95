// Package knowledge maintains a triple-based knowledge graph of what
// the agent has learned: (subject, relation, object) edges with
// confidence scores, persisted as JSON and mined from conversation.
package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emberhearth/ember/internal/paths"
)

// Triple is one edge in the graph.
type Triple struct {
	Subject    string    `json:"subject"`
	Relation   string    `json:"relation"`
	Object     string    `json:"object"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source,omitempty"`
	LearnedAt  time.Time `json:"learned_at"`
}

// Graph is the in-memory knowledge graph. Safe for concurrent use.
type Graph struct {
	mu      sync.RWMutex
	triples map[string]Triple // keyed by subject|relation|object

	statePath string
	logger    *slog.Logger
	nowFunc   func() time.Time
}

// NewGraph creates a knowledge graph persisting to statePath.
func NewGraph(statePath string, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		triples:   make(map[string]Triple),
		statePath: statePath,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// SetNowFunc overrides the clock for tests.
func (g *Graph) SetNowFunc(f func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nowFunc = f
}

func tripleKey(subject, relation, object string) string {
	return strings.ToLower(subject) + "|" + strings.ToLower(relation) + "|" + strings.ToLower(object)
}

// Add inserts a triple. An existing edge keeps the higher confidence
// and its original learned time.
func (g *Graph) Add(subject, relation, object string, confidence float64, source string) {
	subject = strings.TrimSpace(subject)
	relation = strings.TrimSpace(relation)
	object = strings.TrimSpace(object)
	if subject == "" || relation == "" || object == "" {
		return
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	key := tripleKey(subject, relation, object)
	if existing, ok := g.triples[key]; ok {
		if confidence > existing.Confidence {
			existing.Confidence = confidence
			existing.Source = source
			g.triples[key] = existing
		}
		return
	}
	g.triples[key] = Triple{
		Subject:    subject,
		Relation:   relation,
		Object:     object,
		Confidence: confidence,
		Source:     source,
		LearnedAt:  g.nowFunc().UTC(),
	}
}

// Connections returns every triple touching the entity as subject or
// object, ordered by descending confidence then lexically so repeated
// calls are stable.
func (g *Graph) Connections(entity string) []Triple {
	needle := strings.ToLower(strings.TrimSpace(entity))
	if needle == "" {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Triple
	for _, t := range g.triples {
		if strings.ToLower(t.Subject) == needle || strings.ToLower(t.Object) == needle {
			out = append(out, t)
		}
	}
	sortTriples(out)
	return out
}

// Query returns triples matching the non-empty fields of the pattern.
func (g *Graph) Query(subject, relation, object string) []Triple {
	subject = strings.ToLower(strings.TrimSpace(subject))
	relation = strings.ToLower(strings.TrimSpace(relation))
	object = strings.ToLower(strings.TrimSpace(object))

	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Triple
	for _, t := range g.triples {
		if subject != "" && strings.ToLower(t.Subject) != subject {
			continue
		}
		if relation != "" && strings.ToLower(t.Relation) != relation {
			continue
		}
		if object != "" && strings.ToLower(t.Object) != object {
			continue
		}
		out = append(out, t)
	}
	sortTriples(out)
	return out
}

// All returns every triple, deterministically ordered.
func (g *Graph) All() []Triple {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Triple, 0, len(g.triples))
	for _, t := range g.triples {
		out = append(out, t)
	}
	sortTriples(out)
	return out
}

// Len returns the number of triples.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.triples)
}

func sortTriples(ts []Triple) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Confidence != ts[j].Confidence {
			return ts[i].Confidence > ts[j].Confidence
		}
		if ts[i].Subject != ts[j].Subject {
			return ts[i].Subject < ts[j].Subject
		}
		if ts[i].Relation != ts[j].Relation {
			return ts[i].Relation < ts[j].Relation
		}
		return ts[i].Object < ts[j].Object
	})
}

// persistedGraph is the on-disk shape.
type persistedGraph struct {
	Triples []Triple  `json:"triples"`
	SavedAt time.Time `json:"saved_at"`
}

// Save writes the graph to its state path atomically.
func (g *Graph) Save() error {
	if g.statePath == "" {
		return nil
	}
	snapshot := persistedGraph{Triples: g.All(), SavedAt: g.nowFunc().UTC()}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal knowledge graph: %w", err)
	}
	tmp := g.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write knowledge graph: %w", err)
	}
	if err := os.Rename(tmp, g.statePath); err != nil {
		return fmt.Errorf("replace knowledge graph: %w", err)
	}
	return nil
}

// Load reads persisted triples. A missing file is an empty graph; a
// corrupt file is backed up and the graph starts empty.
func (g *Graph) Load() error {
	if g.statePath == "" {
		return nil
	}
	data, err := os.ReadFile(g.statePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read knowledge graph: %w", err)
	}

	var p persistedGraph
	if err := json.Unmarshal(data, &p); err != nil {
		g.logger.Warn("knowledge graph corrupt, starting empty", "path", g.statePath, "error", err)
		if bakErr := paths.BackupCorrupt(g.statePath); bakErr != nil {
			return fmt.Errorf("backup corrupt knowledge graph: %w", bakErr)
		}
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range p.Triples {
		g.triples[tripleKey(t.Subject, t.Relation, t.Object)] = t
	}
	return nil
}
