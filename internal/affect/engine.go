// Package affect implements the emotion engine: generation, decay,
// mood aggregation, and snapshot persistence across restarts. The
// engine owns all emotional state; other subsystems read through its
// accessors and mutate only through Generate.
package affect

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emberhearth/ember/internal/events"
)

// maxActive bounds the number of coexisting active emotions.
const maxActive = 10

// minIntensity is the floor below which an emotion is discarded.
const minIntensity = 0.1

// ActiveEmotion is one generated emotional state subject to decay.
type ActiveEmotion struct {
	Emotion     string    `json:"emotion"`
	Intensity   float64   `json:"intensity"`
	Cause       string    `json:"cause"`
	GeneratedAt time.Time `json:"generated_at"`
	// FadedEcho marks emotions restored after a long offline gap.
	FadedEcho bool `json:"faded_echo,omitempty"`
}

// Mood is the slower-moving intensity-weighted aggregate of all active
// emotions.
type Mood struct {
	Dominant  string    `json:"dominant_emotion"`
	Intensity float64   `json:"intensity"`
	AsOf      time.Time `json:"as_of"`
}

// Engine is the emotion subsystem. All methods are safe for concurrent
// use; the autonomous loop and the turn pipeline both write through it.
type Engine struct {
	mu     sync.Mutex
	active []ActiveEmotion
	mood   Mood

	statePath string
	logger    *slog.Logger
	bus       *events.Bus
	nowFunc   func() time.Time
}

// NewEngine creates an emotion engine persisting snapshots to
// statePath. Pass an empty statePath to disable persistence (tests).
func NewEngine(statePath string, bus *events.Bus, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		statePath: statePath,
		logger:    logger,
		bus:       bus,
		nowFunc:   time.Now,
	}
}

// Generate creates an active emotion from the vocabulary. The modifier
// scales the base intensity (1.0 = unmodified); the result is clamped
// to [0, 1]. Emotions below the intensity floor are discarded and the
// second return value is false.
func (e *Engine) Generate(emotion, cause string, modifier float64) (ActiveEmotion, bool) {
	if !Known(emotion) {
		emotion = Curiosity
	}
	if modifier <= 0 {
		modifier = 1.0
	}

	intensity := clamp01(Base(emotion) * modifier)
	if intensity < minIntensity {
		return ActiveEmotion{}, false
	}

	now := e.nowFunc()
	ae := ActiveEmotion{
		Emotion:     emotion,
		Intensity:   intensity,
		Cause:       cause,
		GeneratedAt: now,
	}

	e.mu.Lock()
	e.decayLocked(now)
	prevDominant := e.dominantLocked().Emotion
	e.active = append(e.active, ae)
	e.evictLocked()
	e.recomputeMoodLocked(now)
	newDominant := e.dominantLocked().Emotion
	e.mu.Unlock()

	if newDominant != prevDominant {
		e.bus.Publish(events.Event{
			Source: events.SourceAffect,
			Kind:   events.KindEmotionShift,
			Data:   map[string]any{
				"emotion":   newDominant,
				"intensity": intensity,
				"cause":     cause,
			},
		})
	}

	e.logger.Debug("emotion generated",
		"emotion", emotion,
		"intensity", intensity,
		"cause", cause,
	)
	return ae, true
}

// Dominant returns the highest-intensity active emotion after applying
// decay. A quiet engine reports a faint contentment baseline.
func (e *Engine) Dominant() ActiveEmotion {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.decayLocked(e.nowFunc())
	return e.dominantLocked()
}

// Mood returns the current aggregated mood, recomputing it first.
func (e *Engine) Mood() Mood {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.nowFunc()
	e.decayLocked(now)
	e.recomputeMoodLocked(now)
	return e.mood
}

// Active returns a decayed copy of all active emotions, strongest
// first.
func (e *Engine) Active() []ActiveEmotion {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.decayLocked(e.nowFunc())

	out := make([]ActiveEmotion, len(e.active))
	copy(out, e.active)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Intensity > out[j].Intensity })
	return out
}

// Tick applies decay and recomputes mood. Registered with the
// background scheduler on a 30 s interval.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.nowFunc()
	e.decayLocked(now)
	e.recomputeMoodLocked(now)
}

// ComplexityNote reports a parenthetical note when two active emotions
// are in tension (e.g., joy alongside sadness), or an empty string.
// The turn pipeline may append it to a reply as an emotional leak.
func (e *Engine) ComplexityNote() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.decayLocked(e.nowFunc())

	present := make(map[string]float64, len(e.active))
	for _, ae := range e.active {
		if ae.Intensity > present[ae.Emotion] {
			present[ae.Emotion] = ae.Intensity
		}
	}
	for _, pair := range conflictPairs {
		a, b := present[pair[0]], present[pair[1]]
		if a >= 0.3 && b >= 0.3 {
			return fmt.Sprintf("(I notice I'm feeling both %s and %s about this.)", pair[0], pair[1])
		}
	}
	return ""
}

// SetNowFunc overrides the clock for tests.
func (e *Engine) SetNowFunc(f func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nowFunc = f
}

// dominantLocked returns the strongest active emotion, or the baseline.
func (e *Engine) dominantLocked() ActiveEmotion {
	best := ActiveEmotion{Emotion: Contentment, Intensity: 0.2}
	for _, ae := range e.active {
		if ae.Intensity > best.Intensity {
			best = ae
		}
	}
	return best
}

// decayLocked applies exponential decay to every active emotion based
// on its per-category half-life, dropping those below the floor.
func (e *Engine) decayLocked(now time.Time) {
	kept := e.active[:0]
	for _, ae := range e.active {
		elapsed := now.Sub(ae.GeneratedAt).Minutes()
		if elapsed < 0 {
			elapsed = 0
		}
		decayed := ae.Intensity * math.Pow(0.5, elapsed/HalfLife(ae.Emotion))
		if decayed >= minIntensity {
			ae.Intensity = decayed
			ae.GeneratedAt = now
			kept = append(kept, ae)
		}
	}
	e.active = kept
}

// evictLocked drops the oldest low-intensity entries beyond maxActive.
func (e *Engine) evictLocked() {
	if len(e.active) <= maxActive {
		return
	}
	sort.SliceStable(e.active, func(i, j int) bool {
		if e.active[i].Intensity != e.active[j].Intensity {
			return e.active[i].Intensity > e.active[j].Intensity
		}
		return e.active[i].GeneratedAt.After(e.active[j].GeneratedAt)
	})
	e.active = e.active[:maxActive]
}

func (e *Engine) recomputeMoodLocked(now time.Time) {
	if len(e.active) == 0 {
		e.mood = Mood{Dominant: Contentment, Intensity: 0.2, AsOf: now}
		return
	}

	var sum, weight float64
	for _, ae := range e.active {
		sum += ae.Intensity * ae.Intensity
		weight += ae.Intensity
	}
	e.mood = Mood{
		Dominant:  e.dominantLocked().Emotion,
		Intensity: clamp01(sum / weight),
		AsOf:      now,
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Describe renders the current emotional state as a short phrase for
// logs and status output, e.g. "curiosity (0.62) with 3 active".
func (e *Engine) Describe() string {
	dom := e.Dominant()
	e.mu.Lock()
	n := len(e.active)
	e.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%.2f)", dom.Emotion, dom.Intensity)
	if n > 1 {
		fmt.Fprintf(&sb, " with %d active", n)
	}
	return sb.String()
}
