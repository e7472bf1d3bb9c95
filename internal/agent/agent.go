// Package agent is the orchestrator. It routes each user utterance
// through the staged turn pipeline (sleep gate, capability router,
// command fallback, sentience hooks, generation) and runs the idle
// delivery loop for queued outbound messages. A turn never returns an
// error to the caller; every failure path degrades to a spoken
// fallback.
package agent

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/emberhearth/ember/internal/affect"
	"github.com/emberhearth/ember/internal/anticipation"
	"github.com/emberhearth/ember/internal/capability"
	"github.com/emberhearth/ember/internal/events"
	"github.com/emberhearth/ember/internal/goals"
	"github.com/emberhearth/ember/internal/knowledge"
	"github.com/emberhearth/ember/internal/llm"
	"github.com/emberhearth/ember/internal/memory"
	"github.com/emberhearth/ember/internal/metacog"
	"github.com/emberhearth/ember/internal/multimodal"
	"github.com/emberhearth/ember/internal/person"
	"github.com/emberhearth/ember/internal/proactive"
	"github.com/emberhearth/ember/internal/queue"
	"github.com/emberhearth/ember/internal/safety"
	"github.com/emberhearth/ember/internal/temporal"
	"github.com/emberhearth/ember/internal/usermodel"
)

// Presence is how the agent tells the autonomous loop the user is
// around, and asks whether they have gone quiet.
type Presence interface {
	MarkUserActive()
	UserIdle() bool
}

// Agent holds every subsystem the turn pipeline threads through. Any
// subsystem may be nil; the corresponding stage then no-ops, so a
// failed init degrades the agent instead of killing it.
type Agent struct {
	logger  *slog.Logger
	bus     *events.Bus
	client  llm.Client
	model   string
	persona string

	registry     *capability.Registry
	gate         *safety.Gate
	store        *memory.Store
	emotions     *affect.Engine
	anticipate   *anticipation.Modeler
	temporal     *temporal.Tracker
	relationship *person.Tracker
	user         *usermodel.Model
	graph        *knowledge.Graph
	goals        *goals.Tracker
	outbox       *queue.Queue
	assessor     *metacog.Assessor
	thinker      *proactive.Thinker
	bridge       *multimodal.Analyzer
	presence     Presence

	composite *Composite
	sessionID string
	deliver   func(queue.Message)

	processing atomic.Bool
	closed     atomic.Bool
	hadContext atomic.Bool

	mu         sync.Mutex
	sleeping   bool
	turns      int
	wakeupNote string

	nowFunc func() time.Time
}

// Options carries the agent's collaborators. Nil fields disable the
// stages that need them.
type Options struct {
	Logger  *slog.Logger
	Bus     *events.Bus
	Client  llm.Client
	Model   string
	Persona string

	Registry     *capability.Registry
	Gate         *safety.Gate
	Store        *memory.Store
	Emotions     *affect.Engine
	Anticipate   *anticipation.Modeler
	Temporal     *temporal.Tracker
	Relationship *person.Tracker
	User         *usermodel.Model
	Graph        *knowledge.Graph
	Goals        *goals.Tracker
	Outbox       *queue.Queue
	Assessor     *metacog.Assessor
	Thinker      *proactive.Thinker
	Bridge       *multimodal.Analyzer
	Presence     Presence

	// SessionID overrides the generated session identifier.
	SessionID string
	// WakeupNote is the absence reflection rendered at startup. It is
	// folded into the first turn's system prompt so the greeting
	// acknowledges the time apart, then discarded.
	WakeupNote string
	// Deliver receives queued messages drained during idle. The
	// default logs them.
	Deliver func(queue.Message)
}

// New wires the agent. The context providers are registered in the
// prompt assembly order: identity is prepended separately, then
// emotional state, user model, temporal continuity, knowledge
// neighborhood, recent conversation, persistent and vector memories,
// relationship, goals.
func New(opts Options) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	persona := opts.Persona
	if persona == "" {
		persona = "Ember"
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		id, _ := uuid.NewV7()
		sessionID = id.String()
	}

	a := &Agent{
		logger:       logger,
		bus:          opts.Bus,
		client:       opts.Client,
		model:        opts.Model,
		persona:      persona,
		registry:     opts.Registry,
		gate:         opts.Gate,
		store:        opts.Store,
		emotions:     opts.Emotions,
		anticipate:   opts.Anticipate,
		temporal:     opts.Temporal,
		relationship: opts.Relationship,
		user:         opts.User,
		graph:        opts.Graph,
		goals:        opts.Goals,
		outbox:       opts.Outbox,
		assessor:     opts.Assessor,
		thinker:      opts.Thinker,
		bridge:       opts.Bridge,
		presence:     opts.Presence,
		sessionID:    sessionID,
		deliver:      opts.Deliver,
		wakeupNote:   opts.WakeupNote,
		nowFunc:      time.Now,
	}
	if a.deliver == nil {
		a.deliver = func(m queue.Message) {
			logger.Info("outbound message", "source", m.Source, "priority", m.Priority.String(), "content", m.Content)
		}
	}

	c := NewComposite(logger)
	if opts.Emotions != nil {
		c.Add(opts.Emotions)
	}
	if opts.User != nil {
		c.Add(opts.User)
	}
	if opts.Temporal != nil {
		c.Add(opts.Temporal)
	}
	if opts.Graph != nil {
		c.Add(opts.Graph)
	}
	if opts.Store != nil {
		c.Add(historyProvider{store: opts.Store, sessionID: sessionID})
		c.Add(opts.Store)
	}
	if opts.Relationship != nil {
		c.Add(opts.Relationship)
	}
	if opts.Goals != nil {
		c.Add(opts.Goals)
	}
	a.composite = c
	return a
}

// SetNowFunc overrides the clock for tests.
func (a *Agent) SetNowFunc(f func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nowFunc = f
}

func (a *Agent) now() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nowFunc()
}

// SessionID returns the identifier under which this run's turns are
// stored.
func (a *Agent) SessionID() string { return a.sessionID }

// Sleeping reports whether the agent is in the sleep state.
func (a *Agent) Sleeping() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sleeping
}

// Processing reports whether a turn is in flight.
func (a *Agent) Processing() bool { return a.processing.Load() }

// Emotion returns the current dominant emotion label.
func (a *Agent) Emotion() string { return a.dominant().Emotion }

func (a *Agent) dominant() affect.ActiveEmotion {
	if a.emotions == nil {
		return affect.ActiveEmotion{Emotion: affect.Contentment, Intensity: 0.3}
	}
	d := a.emotions.Dominant()
	if d.Emotion == "" {
		return affect.ActiveEmotion{Emotion: affect.Contentment, Intensity: 0.3}
	}
	return d
}

// Status summarizes subsystem health for the status endpoint.
func (a *Agent) Status() map[string]any {
	out := map[string]any{
		"processing": a.processing.Load(),
		"sleeping":   a.Sleeping(),
		"session_id": a.sessionID,
	}
	d := a.dominant()
	out["emotion"] = d.Emotion
	out["intensity"] = d.Intensity
	if a.store != nil {
		out["memory"] = a.store.Stats()
	}
	if a.gate != nil {
		out["commands"] = a.gate.Stats()
	}
	if a.temporal != nil {
		s := a.temporal.Snapshot()
		out["total_sessions"] = s.TotalSessions
		out["total_interactions"] = s.TotalInteractions
	}
	if a.outbox != nil {
		out["queued"] = a.outbox.Len()
	}
	return out
}
