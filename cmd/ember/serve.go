package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/emberhearth/ember/internal/affect"
	"github.com/emberhearth/ember/internal/agent"
	"github.com/emberhearth/ember/internal/anticipation"
	"github.com/emberhearth/ember/internal/api"
	"github.com/emberhearth/ember/internal/autonomy"
	"github.com/emberhearth/ember/internal/buildinfo"
	"github.com/emberhearth/ember/internal/capability"
	"github.com/emberhearth/ember/internal/config"
	"github.com/emberhearth/ember/internal/events"
	"github.com/emberhearth/ember/internal/fetch"
	"github.com/emberhearth/ember/internal/goals"
	"github.com/emberhearth/ember/internal/knowledge"
	"github.com/emberhearth/ember/internal/llm"
	"github.com/emberhearth/ember/internal/memory"
	"github.com/emberhearth/ember/internal/metacog"
	"github.com/emberhearth/ember/internal/mqtt"
	"github.com/emberhearth/ember/internal/multimodal"
	"github.com/emberhearth/ember/internal/paths"
	"github.com/emberhearth/ember/internal/person"
	"github.com/emberhearth/ember/internal/proactive"
	"github.com/emberhearth/ember/internal/queue"
	"github.com/emberhearth/ember/internal/safety"
	"github.com/emberhearth/ember/internal/scheduler"
	"github.com/emberhearth/ember/internal/temporal"
	"github.com/emberhearth/ember/internal/usermodel"
)

// shutdownTimeout bounds the graceful shutdown sequence.
const shutdownTimeout = 10 * time.Second

// runServe is the primary operating mode: wire every subsystem
// leaves-first, start the background loops, serve the API, and block
// until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Ember", "version", buildinfo.Version, "commit", buildinfo.GitCommit)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.LogLevel != "" {
		level, _ := config.ParseLogLevel(cfg.LogLevel)
		logger = newLogger(stdout, level)
	}
	logger.Info("config loaded", "path", cfgPath, "port", cfg.Listen.Port, "model", cfg.Models.Default)

	layout := paths.Resolve(cfg.DataDir, cfg.WorkspaceDir)
	if err := layout.Ensure(); err != nil {
		return fmt.Errorf("preparing directories: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.New()

	// LLM providers in failover order: local first, frontier fallback.
	client := buildClient(cfg, logger)
	{
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx)
		cancel()
		if err != nil {
			if cfg.RequireLLM {
				return fmt.Errorf("no LLM provider reachable: %w", err)
			}
			logger.Warn("no LLM provider reachable, running degraded", "error", err)
		}
	}

	// Conversation and vector memory. A broken database degrades the
	// agent to an amnesiac run instead of refusing to start.
	store := openMemory(layout.Data("memory.db"), logger)
	if store != nil {
		defer store.Close()
		if cfg.Embeddings.Enabled {
			store.SetEmbedder(memory.NewOllamaEmbedder(cfg.Embeddings.BaseURL, cfg.Embeddings.Model))
			logger.Info("embeddings enabled", "model", cfg.Embeddings.Model)
		}
		if instances, err := store.RegisterInstance(); err == nil && len(instances) > 1 {
			logger.Info("other instances detected", "count", len(instances)-1)
		}
		defer func() {
			if err := store.DeregisterInstance(); err != nil {
				logger.Warn("instance deregistration failed", "error", err)
			}
		}()
	}

	// Emotional state, decayed for the time spent offline.
	emotions := affect.NewEngine(layout.Data("emotional_state.json"), bus, logger)
	if err := emotions.Restore(); err != nil {
		logger.Warn("emotional state not restored", "error", err)
	}

	// Temporal self-continuity: this call opens the session.
	tempTracker := temporal.NewTracker(layout.Data("temporal_state.json"), cfg.Timezone, logger)
	absence, err := tempTracker.OnWakeup()
	if err != nil {
		logger.Warn("temporal wakeup incomplete", "error", err)
	}
	wakeup := tempTracker.WakeupContext(absence)
	if absence > 0 {
		logger.Info("awake again", "absence", absence.Round(time.Second))
	}

	graph := knowledge.NewGraph(layout.Data("knowledge_graph.json"), logger)
	if err := graph.Load(); err != nil {
		logger.Warn("knowledge graph not loaded", "error", err)
	}

	rel := person.NewTracker(layout.Data("relationship_data.json"), logger)
	if err := rel.Load(); err != nil {
		logger.Warn("relationship state not loaded", "error", err)
	}

	userModel := usermodel.New(layout.Data("learned_preferences.json"), logger)
	if err := userModel.Load(); err != nil {
		logger.Warn("user model not loaded", "error", err)
	}

	goalTracker := goals.NewTracker(layout.Data("goals.json"), logger)
	if err := goalTracker.Load(); err != nil {
		logger.Warn("goals not loaded", "error", err)
	}
	if err := goalTracker.SeedDefaults(); err != nil {
		logger.Warn("goal seeding failed", "error", err)
	}

	anticipate := anticipation.NewModeler(logger)
	anticipate.SetPredictFunc(func(ctx context.Context, lastMessage string) (string, error) {
		resp, err := client.Generate(ctx, cfg.Models.Background, llm.Request{
			Prompt:      "Given that the user last said: " + lastMessage + "\nPredict in one short sentence what they will say next.",
			Temperature: 0.6,
			MaxTokens:   40,
		})
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	})

	outbox := queue.New(bus)
	if wakeup != "" {
		// The first thing out the door is the absence reflection, so
		// the greeting acknowledges the time apart.
		outbox.Enqueue(queue.PriorityHigh, "wakeup", wakeup)
	}

	// Command gate. Off by default; shell access is opt-in.
	var gate *safety.Gate
	if cfg.Safety.Enabled {
		gate = safety.NewGate(cfg.Safety.PaidAPIHosts,
			safety.NewExecutor(layout.WorkspaceDir, cfg.Safety.DefaultTimeoutSec),
			safety.NewAudit(layout.Data("command_history.json"), cfg.Safety.MaxAuditEntries, logger))
		gate.SetBus(bus)
		logger.Info("command gate enabled", "workspace", layout.WorkspaceDir)
	}

	// Embodied bridge: scenes and voice tones become emotions.
	bridge := multimodal.New(client, cfg.Models.Vision, emotions, logger)
	if cfg.MQTT.Enabled {
		mq := mqtt.New(cfg.MQTT, bridge, logger)
		go func() {
			if err := mq.Start(ctx); err != nil {
				logger.Warn("mqtt bridge stopped", "error", err)
			}
		}()
		go mq.WatchEmotions(ctx, bus)
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := mq.Stop(stopCtx); err != nil {
				logger.Debug("mqtt stop", "error", err)
			}
		}()
	}

	// The autonomous life loop and the proactive thinker run beside
	// the turn pipeline and speak only through the outbox.
	// The store is handed to the loop through an interface; a nil
	// pointer must stay a nil interface.
	var memSink autonomy.MemorySink
	if store != nil {
		memSink = store
	}
	var life *autonomy.Loop
	if cfg.Autonomy.Enabled {
		life = autonomy.New(autonomy.Options{
			Emotions:      emotions,
			Goals:         goalTracker,
			Queue:         outbox,
			Graph:         graph,
			Memory:        memSink,
			Client:        client,
			Model:         cfg.Models.Background,
			Reader:        fetch.NewReader(),
			Layout:        layout,
			Bus:           bus,
			Logger:        logger,
			CyclePeriod:   config.Duration(cfg.Autonomy.CyclePeriod, 5*time.Minute),
			IdleThreshold: config.Duration(cfg.Autonomy.IdleThreshold, 2*time.Minute),
			MaxHistory:    cfg.Autonomy.MaxHistory,
		})
		go life.Run(ctx)
		logger.Info("autonomous loop started", "cycle", cfg.Autonomy.CyclePeriod)
	}

	var thinker *proactive.Thinker
	if cfg.Proactive.Enabled {
		thinker = proactive.New(proactive.Options{
			Client:      client,
			Model:       cfg.Models.Background,
			Emotions:    emotions,
			Hours:       userModel,
			Queue:       outbox,
			Bus:         bus,
			Logger:      logger,
			MinInterval: config.Duration(cfg.Proactive.MinInterval, 3*time.Minute),
			MaxInterval: config.Duration(cfg.Proactive.MaxInterval, 10*time.Minute),
			StatePath:   layout.Data("proactive_state.json"),
		})
		if err := thinker.Load(); err != nil {
			logger.Warn("proactive state not loaded", "error", err)
		}
		go thinker.Run(ctx)
	}

	// Direct integrations, probed before the model sees a message.
	registry := capability.NewRegistry(logger)
	registry.Register(capability.NewTimer(func(text string) {
		outbox.Enqueue(queue.PriorityHigh, "timers", text)
	}))
	registry.Register(capability.NewIdentity(cfg.PersonaName))

	var presence agent.Presence
	if life != nil {
		presence = life
	}
	ag := agent.New(agent.Options{
		Logger:       logger,
		Bus:          bus,
		Client:       client,
		Model:        cfg.Models.Default,
		Persona:      cfg.PersonaName,
		Registry:     registry,
		Gate:         gate,
		Store:        store,
		Emotions:     emotions,
		Anticipate:   anticipate,
		Temporal:     tempTracker,
		Relationship: rel,
		User:         userModel,
		Graph:        graph,
		Goals:        goalTracker,
		Outbox:       outbox,
		Assessor:     metacog.New(logger),
		Thinker:      thinker,
		Bridge:       bridge,
		Presence:     presence,
		WakeupNote:   wakeup,
	})
	go ag.Run(ctx)

	sched := scheduler.New(logger, bus)
	registerTasks(sched, logger, client, store, emotions, graph, rel, userModel, goalTracker)
	sched.Start(ctx)

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, ag, bus, logger)
	server.SetScheduler(sched)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx) }()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Order: stop new turns and persist state, then close the
	// listener, then stop the background tasks.
	ag.Shutdown(shutCtx)
	if err := server.Shutdown(shutCtx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}
	sched.Stop()
	return nil
}

// openMemory opens the conversation store. Failure is not fatal; the
// agent runs without persistent memory until the next restart.
func openMemory(path string, logger *slog.Logger) *memory.Store {
	store, err := memory.Open(path, 1000, logger)
	if err != nil {
		logger.Warn("memory store unavailable, running without persistent memory", "path", path, "error", err)
		return nil
	}
	return store
}

// buildClient assembles the provider failover chain.
func buildClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	failover := llm.NewFailover(logger)
	failover.Add("ollama", cfg.Models.Default, llm.NewOllamaClient(cfg.Models.OllamaURL))
	if cfg.Anthropic.APIKey != "" {
		failover.Add("anthropic", cfg.Anthropic.Model, llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger))
	}
	return failover
}

// registerTasks wires the periodic background work.
func registerTasks(sched *scheduler.Scheduler, logger *slog.Logger, client llm.Client,
	store *memory.Store, emotions *affect.Engine, graph *knowledge.Graph,
	rel *person.Tracker, userModel *usermodel.Model, goalTracker *goals.Tracker) {

	register := func(t scheduler.Task) {
		if err := sched.Register(t); err != nil {
			logger.Warn("task registration failed", "task", t.Name, "error", err)
		}
	}

	register(scheduler.Task{
		Name:     "health",
		Interval: 5 * time.Minute,
		Run: func(ctx context.Context) error {
			if store != nil {
				if err := store.Heartbeat(); err != nil {
					return err
				}
			}
			return client.Ping(ctx)
		},
	})
	if store != nil {
		register(scheduler.Task{
			Name:     "prune",
			Interval: time.Hour,
			Run: func(context.Context) error {
				n, err := store.Prune()
				if n > 0 {
					logger.Info("pruned old sessions", "rows", n)
				}
				return err
			},
		})
	}
	register(scheduler.Task{
		Name:     "emotion-tick",
		Interval: 30 * time.Second,
		Run: func(context.Context) error {
			emotions.Tick()
			return nil
		},
	})
	register(scheduler.Task{
		Name:     "emotion-snapshot",
		Interval: 2 * time.Minute,
		Run:      func(context.Context) error { return emotions.Save() },
	})
	register(scheduler.Task{
		Name:     "graph-persist",
		Interval: 5 * time.Minute,
		Run:      func(context.Context) error { return graph.Save() },
	})
	register(scheduler.Task{
		Name:     "state-persist",
		Interval: 10 * time.Minute,
		Run: func(context.Context) error {
			if err := rel.Save(); err != nil {
				return err
			}
			if err := userModel.Save(); err != nil {
				return err
			}
			return goalTracker.Save()
		},
	})
}
