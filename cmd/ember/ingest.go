package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/emberhearth/ember/internal/ingest"
	"github.com/emberhearth/ember/internal/knowledge"
	"github.com/emberhearth/ember/internal/memory"
	"github.com/emberhearth/ember/internal/paths"
)

// runIngest re-imports markdown into memory. Given a directory it
// walks recursively; given a file it imports just that file. Without
// an argument callers pass the workspace root to restore the agent's
// own artifacts after a data wipe.
func runIngest(ctx context.Context, stdout io.Writer, configPath, target string) error {
	logger := newLogger(stdout, slog.LevelInfo)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	layout := paths.Resolve(cfg.DataDir, cfg.WorkspaceDir)
	if err := layout.Ensure(); err != nil {
		return fmt.Errorf("preparing directories: %w", err)
	}

	store, err := memory.Open(layout.Data("memory.db"), 1000, logger)
	if err != nil {
		return fmt.Errorf("opening memory database: %w", err)
	}
	defer store.Close()
	if cfg.Embeddings.Enabled {
		store.SetEmbedder(memory.NewOllamaEmbedder(cfg.Embeddings.BaseURL, cfg.Embeddings.Model))
	}

	graph := knowledge.NewGraph(layout.Data("knowledge_graph.json"), logger)
	if err := graph.Load(); err != nil {
		logger.Warn("knowledge graph not loaded", "error", err)
	}

	ing := ingest.New(store, graph, logger)

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("checking %s: %w", target, err)
	}

	var count int
	if info.IsDir() {
		count, err = ing.IngestDir(ctx, target)
	} else {
		count, err = ing.IngestFile(ctx, target)
	}
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", target, err)
	}

	if err := graph.Save(); err != nil {
		logger.Warn("graph persist failed", "error", err)
	}
	fmt.Fprintf(stdout, "Ingested %d chunks from %s\n", count, target)
	return nil
}
