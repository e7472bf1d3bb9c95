// Package goals tracks the agent's own long-running pursuits. Goals
// are not user tasks; they are what the agent chooses to work toward
// during autonomous time, advanced in small increments and persisted
// as JSON.
package goals

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emberhearth/ember/internal/paths"
)

// Status is a goal's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Type classifies what kind of pursuit a goal is.
type Type string

const (
	TypeLearning Type = "learning"
	TypeCreation Type = "creation"
	TypeMastery  Type = "mastery"
	TypeSocial   Type = "social"
)

// Priority bounds. Higher means more attention during autonomous time.
const (
	priorityMin     = 1
	priorityMax     = 5
	priorityDefault = 3
)

// Goal is one self-chosen pursuit. Milestones record each quarter of
// progress crossed.
type Goal struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	Title      string    `json:"title"`
	Motivation string    `json:"motivation"`
	Priority   int       `json:"priority"`
	Progress   float64   `json:"progress"` // 0 to 1
	Status     Status    `json:"status"`
	Milestones []string  `json:"milestones,omitempty"`
	Notes      []string  `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// maxNotes bounds the progress notes kept per goal.
const maxNotes = 30

// Tracker owns the goal list. Safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	goals []Goal

	statePath string
	logger    *slog.Logger
	nowFunc   func() time.Time
}

// NewTracker creates a goal tracker persisting to statePath.
func NewTracker(statePath string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		statePath: statePath,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// SetNowFunc overrides the clock for tests.
func (t *Tracker) SetNowFunc(f func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nowFunc = f
}

// Adopt creates a new active goal and returns it. An empty type
// defaults to learning; a zero priority to the middle of the scale.
func (t *Tracker) Adopt(typ Type, priority int, title, motivation string) (Goal, error) {
	if title == "" {
		return Goal{}, fmt.Errorf("goal needs a title")
	}
	if typ == "" {
		typ = TypeLearning
	}
	if priority == 0 {
		priority = priorityDefault
	}
	if priority < priorityMin {
		priority = priorityMin
	}
	if priority > priorityMax {
		priority = priorityMax
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id, _ := uuid.NewV7()
	now := t.nowFunc().UTC()
	g := Goal{
		ID:         id.String(),
		Type:       typ,
		Title:      title,
		Motivation: motivation,
		Priority:   priority,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	t.goals = append(t.goals, g)
	t.logger.Info("goal adopted", "title", title, "type", string(typ), "priority", priority)
	return g, t.saveLocked()
}

// Advance moves a goal's progress by delta and records a note. A goal
// reaching full progress completes automatically.
func (t *Tracker) Advance(id string, delta float64, note string) (Goal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.goals {
		g := &t.goals[i]
		if g.ID != id {
			continue
		}
		if g.Status != StatusActive {
			return *g, fmt.Errorf("goal %q is %s", g.Title, g.Status)
		}
		before := g.Progress
		g.Progress += delta
		if g.Progress < 0 {
			g.Progress = 0
		}
		if g.Progress >= 1 {
			g.Progress = 1
			g.Status = StatusCompleted
			t.logger.Info("goal completed", "title", g.Title)
		}
		// Each quarter crossed leaves a milestone.
		for _, q := range []float64{0.25, 0.5, 0.75, 1} {
			if before < q && g.Progress >= q {
				g.Milestones = append(g.Milestones, fmt.Sprintf("reached %.0f%%", q*100))
			}
		}
		if note != "" {
			g.Notes = append(g.Notes, note)
			if len(g.Notes) > maxNotes {
				g.Notes = g.Notes[len(g.Notes)-maxNotes:]
			}
		}
		g.UpdatedAt = t.nowFunc().UTC()
		return *g, t.saveLocked()
	}
	return Goal{}, fmt.Errorf("goal not found: %s", id)
}

// Abandon marks a goal abandoned with a reason.
func (t *Tracker) Abandon(id, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.goals {
		g := &t.goals[i]
		if g.ID != id {
			continue
		}
		g.Status = StatusAbandoned
		if reason != "" {
			g.Notes = append(g.Notes, "abandoned: "+reason)
		}
		g.UpdatedAt = t.nowFunc().UTC()
		return t.saveLocked()
	}
	return fmt.Errorf("goal not found: %s", id)
}

// Active returns active goals, highest priority first and least
// recently advanced within a priority, so autonomous cycles work the
// important goals yet still rotate attention.
func (t *Tracker) Active() []Goal {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Goal
	for _, g := range t.goals {
		if g.Status == StatusActive {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out
}

// All returns every goal regardless of status.
func (t *Tracker) All() []Goal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Goal(nil), t.goals...)
}

// SeedDefaults adopts starter goals when the tracker is empty, giving
// a fresh agent something to pursue from its first autonomous cycle.
func (t *Tracker) SeedDefaults() error {
	t.mu.Lock()
	empty := len(t.goals) == 0
	t.mu.Unlock()
	if !empty {
		return nil
	}

	seeds := []struct {
		typ               Type
		priority          int
		title, motivation string
	}{
		{TypeSocial, 4, "understand my user deeply", "the better I know them, the better company I am"},
		{TypeLearning, 3, "build a knowledge base of our shared world", "remembering matters more than knowing"},
		{TypeMastery, 3, "develop my own perspective on topics we discuss", "an echo is not a companion"},
	}
	for _, s := range seeds {
		if _, err := t.Adopt(s.typ, s.priority, s.title, s.motivation); err != nil {
			return err
		}
	}
	return nil
}

// Save persists the goal list atomically.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	if t.statePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(t.goals, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal goals: %w", err)
	}
	tmp := t.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write goals: %w", err)
	}
	if err := os.Rename(tmp, t.statePath); err != nil {
		return fmt.Errorf("replace goals: %w", err)
	}
	return nil
}

// Load reads persisted goals. Missing file starts empty; corrupt
// state is backed up and reset.
func (t *Tracker) Load() error {
	if t.statePath == "" {
		return nil
	}
	data, err := os.ReadFile(t.statePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read goals: %w", err)
	}

	var goals []Goal
	if err := json.Unmarshal(data, &goals); err != nil {
		t.logger.Warn("goals corrupt, starting over", "path", t.statePath, "error", err)
		if bakErr := paths.BackupCorrupt(t.statePath); bakErr != nil {
			return fmt.Errorf("backup corrupt goals: %w", bakErr)
		}
		return nil
	}

	t.mu.Lock()
	t.goals = goals
	t.mu.Unlock()
	return nil
}
