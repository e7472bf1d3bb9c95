package ingest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emberhearth/ember/internal/memory"
)

const sampleDoc = `# Honeybees

_Sun, 24 Aug 2025_

Honeybees communicate the location of food through a waggle dance.
The angle of the dance encodes direction relative to the sun.

## Hive Structure

A colony holds one queen and tens of thousands of workers.

` + "```" + `
this code block should be skipped entirely
` + "```" + `

- workers live about six weeks in summer
- drones exist only to mate
`

func newTestIngester(t *testing.T) (*Ingester, *memory.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := memory.Open(filepath.Join(t.TempDir(), "memory.db"), 50, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, nil, logger), store
}

func TestParseChunksByHeading(t *testing.T) {
	ing, _ := newTestIngester(t)

	chunks := ing.parse([]byte(sampleDoc))
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %+v", len(chunks), chunks)
	}
	if chunks[0].Section != "Honeybees" {
		t.Errorf("section = %q", chunks[0].Section)
	}
	if chunks[1].Section != "Hive Structure" {
		t.Errorf("section = %q", chunks[1].Section)
	}
	for _, c := range chunks {
		if c.Content == "" {
			t.Errorf("empty chunk under %q", c.Section)
		}
	}
	if got := chunks[1].Content; !contains(got, "six weeks") {
		t.Errorf("list items missing from chunk: %q", got)
	}
	if contains(chunks[0].Content, "code block") || contains(chunks[1].Content, "code block") {
		t.Error("code block leaked into a chunk")
	}
}

func TestIngestStringStoresMemories(t *testing.T) {
	ing, store := newTestIngester(t)

	n, err := ing.IngestString(context.Background(), []byte(sampleDoc))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("ingested %d chunks, want 2", n)
	}

	memories := store.Recall("learning", 10)
	if len(memories) != 2 {
		t.Fatalf("recalled %d memories, want 2", len(memories))
	}
}

func TestReingestIsIdempotent(t *testing.T) {
	ing, store := newTestIngester(t)
	ctx := context.Background()

	if _, err := ing.IngestString(ctx, []byte(sampleDoc)); err != nil {
		t.Fatal(err)
	}
	if _, err := ing.IngestString(ctx, []byte(sampleDoc)); err != nil {
		t.Fatal(err)
	}

	memories := store.Recall("learning", 10)
	if len(memories) != 2 {
		t.Errorf("re-ingest duplicated memories: %d", len(memories))
	}
}

func TestIngestDirWalksMarkdownOnly(t *testing.T) {
	ing, store := newTestIngester(t)
	dir := t.TempDir()

	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("notes.md", "# Notes\n\nSomething worth keeping.\n")
	write("data.json", `{"ignored": true}`)
	if err := os.MkdirAll(filepath.Join(dir, "Research"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Research", "owls.md"), []byte("# Owls\n\nOwls fly silently.\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := ing.IngestDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("ingested %d chunks, want 2", n)
	}
	if got := len(store.Recall("learning", 10)); got != 2 {
		t.Errorf("recalled %d memories, want 2", got)
	}
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }
