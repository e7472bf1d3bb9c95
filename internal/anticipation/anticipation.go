// Package anticipation builds pre-turn expectations about what the
// user will do next and evaluates the arriving utterance against them.
// Expectations are ephemeral — rebuilt every turn, never persisted.
// Violations above the surprise threshold become SurpriseEvents that
// feed the emotion engine and update the learned user patterns.
package anticipation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Category classifies what an expectation predicts.
type Category string

const (
	CategoryTopic    Category = "topic"
	CategoryEmotion  Category = "emotion"
	CategoryBehavior Category = "behavior"
	CategoryContent  Category = "content"
)

// maxExpectations bounds how many expectations are built per turn.
const maxExpectations = 5

// maxEvents bounds the retained surprise event history.
const maxEvents = 50

// SurpriseThreshold is the minimum violation score that produces an
// event.
const SurpriseThreshold = 0.3

// Expectation is a single pre-turn prediction.
type Expectation struct {
	Prediction string    `json:"prediction_text"`
	Category   Category  `json:"category"`
	Confidence float64   `json:"confidence"`
	Basis      string    `json:"basis"`
	CreatedAt  time.Time `json:"created_at"`
}

// SurpriseEvent records an expectation violation.
type SurpriseEvent struct {
	Expected        string    `json:"expected"`
	Actual          string    `json:"actual"`
	Magnitude       float64   `json:"magnitude"`
	Category        Category  `json:"category"`
	EmotionalImpact string    `json:"emotional_impact"`
	Timestamp       time.Time `json:"timestamp"`
}

// Patterns holds the learned user baseline that expectations are
// derived from. Updated after every evaluated turn.
type Patterns struct {
	TypicalMood   string   `json:"typical_mood"`
	TypicalLength int      `json:"typical_length"` // words
	RecentTopics  []string `json:"recent_topics"`
	LastMessage   string   `json:"last_message"`
	Samples       int      `json:"samples"`
}

// PredictFunc optionally asks the LLM for one content prediction given
// the user's last message. A nil func or an error skips the content
// expectation.
type PredictFunc func(ctx context.Context, lastMessage string) (string, error)

// Modeler owns expectation state. Safe for concurrent use.
type Modeler struct {
	mu           sync.Mutex
	patterns     Patterns
	expectations []Expectation
	events       []SurpriseEvent

	predict PredictFunc
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewModeler creates an expectation modeler.
func NewModeler(logger *slog.Logger) *Modeler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Modeler{
		patterns: Patterns{TypicalMood: "neutral", TypicalLength: 10},
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// SetPredictFunc wires the optional LLM content predictor.
func (m *Modeler) SetPredictFunc(f PredictFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predict = f
}

// SetNowFunc overrides the clock for tests.
func (m *Modeler) SetNowFunc(f func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFunc = f
}

// Build clears the previous turn's expectations and constructs up to
// five new ones from the learned patterns. Called before every user
// turn.
func (m *Modeler) Build(ctx context.Context) []Expectation {
	m.mu.Lock()
	patterns := m.patterns
	predict := m.predict
	now := m.nowFunc()
	m.mu.Unlock()

	exps := make([]Expectation, 0, maxExpectations)

	exps = append(exps, Expectation{
		Prediction: patterns.TypicalMood,
		Category:   CategoryEmotion,
		Confidence: confidenceFromSamples(patterns.Samples),
		Basis:      "typical mood across recent turns",
		CreatedAt:  now,
	})

	exps = append(exps, Expectation{
		Prediction: lengthClass(patterns.TypicalLength),
		Category:   CategoryContent,
		Confidence: confidenceFromSamples(patterns.Samples) * 0.8,
		Basis:      fmt.Sprintf("typical message length ~%d words", patterns.TypicalLength),
		CreatedAt:  now,
	})

	if len(patterns.RecentTopics) > 0 {
		exps = append(exps, Expectation{
			Prediction: strings.Join(patterns.RecentTopics, " "),
			Category:   CategoryTopic,
			Confidence: 0.5,
			Basis:      "recent conversation topics",
			CreatedAt:  now,
		})
	}

	exps = append(exps, Expectation{
		Prediction: "continue",
		Category:   CategoryBehavior,
		Confidence: 0.4,
		Basis:      "conversations usually continue rather than end abruptly",
		CreatedAt:  now,
	})

	if predict != nil && patterns.LastMessage != "" && len(exps) < maxExpectations {
		if p, err := predict(ctx, patterns.LastMessage); err == nil && p != "" {
			exps = append(exps, Expectation{
				Prediction: p,
				Category:   CategoryContent,
				Confidence: 0.35,
				Basis:      "model content prediction",
				CreatedAt:  now,
			})
		}
	}

	if len(exps) > maxExpectations {
		exps = exps[:maxExpectations]
	}

	m.mu.Lock()
	m.expectations = exps
	m.mu.Unlock()
	return exps
}

// Current returns a copy of the active expectations.
func (m *Modeler) Current() []Expectation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Expectation, len(m.expectations))
	copy(out, m.expectations)
	return out
}

// Events returns the retained surprise events, newest last.
func (m *Modeler) Events() []SurpriseEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SurpriseEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Patterns returns a copy of the learned user patterns.
func (m *Modeler) Patterns() Patterns {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.patterns
	p.RecentTopics = append([]string(nil), m.patterns.RecentTopics...)
	return p
}

// Evaluate scores the arriving utterance against the active
// expectations, learns updated patterns, and returns a SurpriseEvent
// when the maximum violation meets the threshold. Returns nil below
// threshold.
func (m *Modeler) Evaluate(utterance string) *SurpriseEvent {
	m.mu.Lock()
	exps := m.expectations
	now := m.nowFunc()
	m.mu.Unlock()

	var best *SurpriseEvent
	for _, exp := range exps {
		score, actual := scoreViolation(exp, utterance)
		if score < SurpriseThreshold {
			continue
		}
		if best == nil || score > best.Magnitude {
			best = &SurpriseEvent{
				Expected:        exp.Prediction,
				Actual:          actual,
				Magnitude:       score,
				Category:        exp.Category,
				EmotionalImpact: impactFor(score),
				Timestamp:       now,
			}
		}
	}

	m.learn(utterance)

	if best != nil {
		m.mu.Lock()
		m.events = append(m.events, *best)
		if len(m.events) > maxEvents {
			m.events = m.events[len(m.events)-maxEvents:]
		}
		m.mu.Unlock()

		m.logger.Info("surprise",
			"category", best.Category,
			"magnitude", best.Magnitude,
			"expected", best.Expected,
		)
	}
	return best
}

// learn folds the utterance into the running user patterns.
func (m *Modeler) learn(utterance string) {
	mood := detectMood(utterance)
	words := len(strings.Fields(utterance))
	topics := contentWords(utterance, 3)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.patterns.Samples++
	if m.patterns.Samples == 1 {
		m.patterns.TypicalMood = mood
		m.patterns.TypicalLength = words
	} else {
		// Mood shifts only after repeated evidence; length is a
		// running average.
		if mood == m.patterns.TypicalMood || mood != "neutral" {
			m.patterns.TypicalMood = mood
		}
		m.patterns.TypicalLength = (m.patterns.TypicalLength*3 + words) / 4
	}
	m.patterns.LastMessage = utterance
	m.patterns.RecentTopics = mergeTopics(m.patterns.RecentTopics, topics, 8)
}

func confidenceFromSamples(n int) float64 {
	switch {
	case n >= 20:
		return 0.9
	case n >= 5:
		return 0.7
	default:
		return 0.4
	}
}

func impactFor(magnitude float64) string {
	switch {
	case magnitude >= 0.7:
		return "awe"
	case magnitude >= 0.5:
		return "surprise"
	default:
		return "curiosity"
	}
}

func mergeTopics(existing, incoming []string, cap_ int) []string {
	seen := make(map[string]bool, len(existing))
	merged := make([]string, 0, cap_)
	for _, t := range incoming {
		if !seen[t] {
			seen[t] = true
			merged = append(merged, t)
		}
	}
	for _, t := range existing {
		if len(merged) >= cap_ {
			break
		}
		if !seen[t] {
			seen[t] = true
			merged = append(merged, t)
		}
	}
	return merged
}
