package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emberhearth/ember/internal/affect"
	"github.com/emberhearth/ember/internal/agent"
	"github.com/emberhearth/ember/internal/memory"
	"github.com/emberhearth/ember/internal/metacog"
	"github.com/emberhearth/ember/internal/paths"
)

// runAsk processes a single turn without starting the server. It uses
// the real persistent stores so a quick question still leaves a
// memory, but skips the background loops entirely.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn)
	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	layout := paths.Resolve(cfg.DataDir, cfg.WorkspaceDir)
	if err := layout.Ensure(); err != nil {
		return fmt.Errorf("preparing directories: %w", err)
	}

	client := buildClient(cfg, logger)
	if err := client.Ping(ctx); err != nil && cfg.RequireLLM {
		return fmt.Errorf("no LLM provider reachable: %w", err)
	}

	store, err := memory.Open(layout.Data("memory.db"), 1000, logger)
	if err != nil {
		return fmt.Errorf("opening memory database: %w", err)
	}
	defer store.Close()

	emotions := affect.NewEngine(layout.Data("emotional_state.json"), nil, logger)
	if err := emotions.Restore(); err != nil {
		logger.Warn("emotional state not restored", "error", err)
	}

	ag := agent.New(agent.Options{
		Logger:   logger,
		Client:   client,
		Model:    cfg.Models.Default,
		Persona:  cfg.PersonaName,
		Store:    store,
		Emotions: emotions,
		Assessor: metacog.New(logger),
	})

	res := ag.ProcessTurn(ctx, question)
	fmt.Fprintln(stdout, res.Reply)
	return emotions.Save()
}
