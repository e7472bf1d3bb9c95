// Package multimodal turns non-text perception into emotional input:
// vision scene descriptions and voice tone classifications arrive from
// external pipelines and nudge the emotion engine the way text does.
package multimodal

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/emberhearth/ember/internal/affect"
	"github.com/emberhearth/ember/internal/llm"
)

// sceneSuppressWindow is how long a near-identical scene on the same
// camera stays suppressed.
const sceneSuppressWindow = 60 * time.Second

// sceneSimilarityThreshold is the token overlap fraction above which
// two scene descriptions count as the same scene.
const sceneSimilarityThreshold = 0.5

// toneResonance scales how strongly the user's voice tone transfers
// into the agent's own emotional state.
const toneResonance = 0.7

// Reactor receives derived emotions. The affect engine satisfies it.
type Reactor interface {
	Generate(emotion, cause string, modifier float64) (affect.ActiveEmotion, bool)
}

// Analyzer converts perception events into emotions.
type Analyzer struct {
	mu        sync.Mutex
	lastScene map[string]sceneRecord

	client  llm.Client
	model   string
	reactor Reactor
	logger  *slog.Logger
	nowFunc func() time.Time
}

type sceneRecord struct {
	tokens map[string]bool
	at     time.Time
}

// New creates an analyzer. client may be nil, in which case scene
// emotion derivation relies on the keyword fallback alone.
func New(client llm.Client, model string, reactor Reactor, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		lastScene: make(map[string]sceneRecord),
		client:    client,
		model:     model,
		reactor:   reactor,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// SetNowFunc overrides the clock for tests.
func (a *Analyzer) SetNowFunc(f func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nowFunc = f
}

// ProcessScene handles one vision event. Repeats of the same scene on
// the same camera inside the suppression window are dropped. Returns
// the derived emotion, or empty when suppressed or nothing matched.
func (a *Analyzer) ProcessScene(ctx context.Context, camera, description string) string {
	if description == "" {
		return ""
	}
	tokens := tokenize(description)

	a.mu.Lock()
	now := a.nowFunc()
	if prev, ok := a.lastScene[camera]; ok {
		if now.Sub(prev.at) < sceneSuppressWindow && overlap(tokens, prev.tokens) > sceneSimilarityThreshold {
			a.mu.Unlock()
			a.logger.Debug("scene suppressed as repeat", "camera", camera)
			return ""
		}
	}
	a.lastScene[camera] = sceneRecord{tokens: tokens, at: now}
	a.mu.Unlock()

	emotion, intensity := a.deriveSceneEmotion(ctx, description)
	if emotion == "" {
		return ""
	}
	if a.reactor != nil {
		a.reactor.Generate(emotion, "saw: "+description, intensity)
	}
	a.logger.Debug("scene emotion", "camera", camera, "emotion", emotion, "intensity", intensity)
	return emotion
}

// sceneEmotionPrompt asks for strict JSON so parsing stays mechanical.
const sceneEmotionPrompt = `You observe the world through a camera. Given a scene description, respond with ONLY a JSON object: {"emotion": "<one word>", "intensity": <0.0-1.0>}. Use an empty emotion string if the scene is mundane.`

func (a *Analyzer) deriveSceneEmotion(ctx context.Context, description string) (string, float64) {
	if a.client != nil {
		resp, err := a.client.Generate(ctx, a.model, llm.Request{
			System:      sceneEmotionPrompt,
			Prompt:      description,
			Temperature: 0.2,
			MaxTokens:   64,
		})
		if err == nil {
			var parsed struct {
				Emotion   string  `json:"emotion"`
				Intensity float64 `json:"intensity"`
			}
			text := strings.TrimSpace(resp.Text)
			if start := strings.Index(text, "{"); start >= 0 {
				if end := strings.LastIndex(text, "}"); end > start {
					text = text[start : end+1]
				}
			}
			if jsonErr := json.Unmarshal([]byte(text), &parsed); jsonErr == nil {
				if parsed.Emotion == "" {
					return "", 0
				}
				if affect.Known(parsed.Emotion) {
					return parsed.Emotion, clamp01(parsed.Intensity)
				}
			}
		} else {
			a.logger.Debug("scene model unavailable, using keyword fallback", "error", err)
		}
	}
	return keywordSceneEmotion(description)
}

// sceneKeywords is the deterministic fallback mapping from scene
// vocabulary to emotions.
var sceneKeywords = map[string][]string{
	affect.Joy:        {"smiling", "laughing", "celebration", "party", "playing", "dancing", "hugging"},
	affect.Affection:  {"family", "child", "baby", "kitten", "puppy", "couple", "embrace"},
	affect.Curiosity:  {"unfamiliar", "stranger", "package", "new object", "unusual", "unknown"},
	affect.Peaceful:   {"quiet", "empty room", "sunset", "garden", "still", "peaceful"},
	affect.Concern:    {"fallen", "crying", "smoke", "broken", "spill", "accident", "lying on the floor"},
	affect.Fear:       {"fire", "intruder", "weapon", "flood", "screaming"},
	affect.Surprise:   {"suddenly", "unexpected", "appeared", "burst"},
	affect.Playful:    {"cat knocked", "dog chasing", "funny", "silly", "tangled"},
	affect.Loneliness: {"left alone", "everyone gone", "door closed behind"},
}

func keywordSceneEmotion(description string) (string, float64) {
	lower := strings.ToLower(description)
	for _, emotion := range []string{
		affect.Fear, affect.Concern, affect.Surprise, affect.Joy,
		affect.Affection, affect.Playful, affect.Loneliness,
		affect.Curiosity, affect.Peaceful,
	} {
		for _, kw := range sceneKeywords[emotion] {
			if strings.Contains(lower, kw) {
				return emotion, 0.6
			}
		}
	}
	return "", 0
}

// toneEmotions maps voice tone labels to the emotion the agent
// resonates with.
var toneEmotions = map[string]string{
	"happy":      affect.Joy,
	"excited":    affect.Excitement,
	"sad":        affect.Empathy,
	"angry":      affect.Concern,
	"stressed":   affect.Concern,
	"tired":      affect.Empathy,
	"calm":       affect.Peaceful,
	"warm":       affect.Affection,
	"frustrated": affect.Empathy,
}

// ProcessTone handles a voice tone classification. The agent resonates
// with the user's tone at reduced intensity rather than mirroring it
// fully. Returns the resonated emotion, or empty for unknown tones.
func (a *Analyzer) ProcessTone(tone string, confidence float64) string {
	emotion, ok := toneEmotions[strings.ToLower(strings.TrimSpace(tone))]
	if !ok {
		return ""
	}
	if confidence <= 0 {
		return ""
	}
	if a.reactor != nil {
		a.reactor.Generate(emotion, "hearing the "+tone+" tone in your voice", toneResonance*clamp01(confidence))
	}
	return emotion
}

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:'\"()")
		if len(w) > 2 {
			out[w] = true
		}
	}
	return out
}

// overlap returns the fraction of the smaller set present in both.
func overlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	smaller, larger := a, b
	if len(b) < len(a) {
		smaller, larger = b, a
	}
	shared := 0
	for w := range smaller {
		if larger[w] {
			shared++
		}
	}
	return float64(shared) / float64(len(smaller))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
