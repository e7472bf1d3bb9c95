// Package ingest re-imports workspace artifacts into memory. The
// autonomous loop writes its research notes and project logs as
// markdown; after a data wipe or on a new install, `ember ingest`
// walks the workspace and turns those files back into persistent
// memories and knowledge triples.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/emberhearth/ember/internal/knowledge"
	"github.com/emberhearth/ember/internal/memory"
)

// ingestImportance is the importance assigned to re-imported
// memories. Below conversation anchors, above idle musings.
const ingestImportance = 0.5

// maxChunkChars bounds one chunk; overlong sections are cut rather
// than split to keep the importer simple.
const maxChunkChars = 2000

// Chunk is one heading-delimited unit of a document.
type Chunk struct {
	Section string
	Content string
}

// Ingester imports markdown into the memory store and, when wired,
// the knowledge graph.
type Ingester struct {
	store  *memory.Store
	graph  *knowledge.Graph
	md     goldmark.Markdown
	logger *slog.Logger
}

// New creates an ingester. graph may be nil.
func New(store *memory.Store, graph *knowledge.Graph, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		store:  store,
		graph:  graph,
		md:     goldmark.New(),
		logger: logger,
	}
}

// IngestDir walks dir recursively and imports every markdown file.
// Returns the number of chunks stored.
func (i *Ingester) IngestDir(ctx context.Context, dir string) (int, error) {
	total := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		n, err := i.IngestFile(ctx, path)
		if err != nil {
			i.logger.Warn("ingest failed, skipping file", "path", path, "error", err)
			return nil
		}
		total += n
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("walking %s: %w", dir, err)
	}
	return total, nil
}

// IngestFile imports one markdown file.
func (i *Ingester) IngestFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	n, err := i.IngestString(ctx, data)
	if err != nil {
		return 0, err
	}
	i.logger.Info("ingested document", "path", path, "chunks", n)
	return n, nil
}

// IngestString imports markdown content. Each heading-delimited chunk
// becomes one persistent memory; identical content refreshes instead
// of duplicating, so re-ingesting is idempotent.
func (i *Ingester) IngestString(ctx context.Context, source []byte) (int, error) {
	chunks := i.parse(source)
	count := 0
	for _, c := range chunks {
		content := c.Content
		if c.Section != "" {
			content = c.Section + ": " + content
		}
		if len(content) > maxChunkChars {
			content = content[:maxChunkChars]
		}
		if err := i.store.Remember("learning", content, ingestImportance); err != nil {
			i.logger.Warn("storing chunk failed", "error", err)
			continue
		}
		i.store.Index(ctx, "ingest", content)
		if i.graph != nil {
			i.graph.Learn(c.Content)
		}
		count++
	}
	return count, nil
}

// parse walks the goldmark AST and groups block content under the
// nearest heading. Code blocks are skipped; prose is what matters to
// memory.
func (i *Ingester) parse(source []byte) []Chunk {
	doc := i.md.Parser().Parse(text.NewReader(source))

	var chunks []Chunk
	var section string
	var content strings.Builder

	flush := func() {
		if body := strings.TrimSpace(content.String()); body != "" {
			chunks = append(chunks, Chunk{Section: section, Content: body})
		}
		content.Reset()
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch n.Kind() {
		case ast.KindHeading:
			flush()
			section = string(n.Text(source))
		case ast.KindFencedCodeBlock, ast.KindCodeBlock, ast.KindHTMLBlock, ast.KindThematicBreak:
			// Not prose.
		case ast.KindList:
			for item := n.FirstChild(); item != nil; item = item.NextSibling() {
				if line := strings.TrimSpace(string(item.Text(source))); line != "" {
					content.WriteString(line)
					content.WriteString("\n")
				}
			}
		default:
			if line := strings.TrimSpace(string(n.Text(source))); line != "" {
				content.WriteString(line)
				content.WriteString("\n")
			}
		}
	}
	flush()
	return chunks
}
