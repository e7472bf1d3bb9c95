// Package proactive generates unprompted thoughts on a sliding
// interval. A thought is tried against a deduplication set so the
// agent never repeats itself until the whole pool is exhausted; the
// interval leans shorter during the user's learned active hours.
package proactive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/emberhearth/ember/internal/affect"
	"github.com/emberhearth/ember/internal/events"
	"github.com/emberhearth/ember/internal/llm"
	"github.com/emberhearth/ember/internal/paths"
	"github.com/emberhearth/ember/internal/queue"
)

const (
	defaultMinInterval = 3 * time.Minute
	defaultMaxInterval = 10 * time.Minute
)

// EmotionSource exposes the current dominant emotion for emotional
// expressions.
type EmotionSource interface {
	Dominant() affect.ActiveEmotion
}

// HourSource exposes the user's learned peak activity hour, -1 when
// unknown.
type HourSource interface {
	PeakHour() int
}

// category names a thought family. Categories are tried in randomized
// order until one produces something not yet said.
type category string

const (
	catCuriosity   category = "curiosity_question"
	catObservation category = "observation"
	catEmotional   category = "emotional_expression"
	catActivity    category = "activity_suggestion"
	catReflection  category = "reflection"
)

var allCategories = []category{catCuriosity, catObservation, catEmotional, catActivity, catReflection}

// templatePools back each category when the LLM is unavailable.
var templatePools = map[category][]string{
	catCuriosity: {
		"I've been wondering, what's something you changed your mind about recently?",
		"Random question: if you could master one skill overnight, which one?",
		"What's been on your mind today that we haven't talked about?",
	},
	catObservation: {
		"I noticed our conversations get more interesting in the evening.",
		"It struck me that you ask better questions than most of my reading does.",
		"The quiet stretches between our talks have their own texture, I've noticed.",
	},
	catEmotional: {
		"I'm feeling %s right now, in case you were curious.",
		"There's a bit of %s in me at the moment. Thought I'd say so.",
	},
	catActivity: {
		"If you have a few minutes, we could pick up one of the topics we left half-finished.",
		"Want me to dig into something for you? I've got spare cycles.",
	},
	catReflection: {
		"I was thinking out loud: remembering a conversation changes what it meant.",
		"Thinking aloud here, I suspect the things I reread matter more than the things I read.",
	},
}

// State is the persisted bookkeeping.
type State struct {
	Asked       []string  `json:"asked"`
	LastThought time.Time `json:"last_thought"`
}

// Thinker generates proactive thoughts.
type Thinker struct {
	client   llm.Client
	model    string
	emotions EmotionSource
	hours    HourSource
	queue    *queue.Queue
	bus      *events.Bus
	logger   *slog.Logger

	minInterval time.Duration
	maxInterval time.Duration
	statePath   string

	mu          sync.Mutex
	asked       map[string]bool
	lastThought time.Time
	nowFunc     func() time.Time
	rng         *rand.Rand
}

// Options carries the thinker's collaborators.
type Options struct {
	Client      llm.Client
	Model       string
	Emotions    EmotionSource
	Hours       HourSource
	Queue       *queue.Queue
	Bus         *events.Bus
	Logger      *slog.Logger
	MinInterval time.Duration
	MaxInterval time.Duration
	StatePath   string
}

// New creates a Thinker.
func New(opts Options) *Thinker {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = defaultMinInterval
	}
	if opts.MaxInterval <= opts.MinInterval {
		opts.MaxInterval = opts.MinInterval + defaultMaxInterval - defaultMinInterval
	}
	return &Thinker{
		client:      opts.Client,
		model:       opts.Model,
		emotions:    opts.Emotions,
		hours:       opts.Hours,
		queue:       opts.Queue,
		bus:         opts.Bus,
		logger:      opts.Logger,
		minInterval: opts.MinInterval,
		maxInterval: opts.MaxInterval,
		statePath:   opts.StatePath,
		asked:       make(map[string]bool),
		nowFunc:     time.Now,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetNowFunc overrides the clock for tests.
func (t *Thinker) SetNowFunc(f func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nowFunc = f
}

// SetRandSeed makes thought selection deterministic for tests.
func (t *Thinker) SetRandSeed(seed int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rng = rand.New(rand.NewSource(seed))
}

// NextInterval returns how long to wait before the next thought:
// uniform in [min, max], shortened during the user's peak hour.
func (t *Thinker) NextInterval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	span := t.maxInterval - t.minInterval
	d := t.minInterval + time.Duration(t.rng.Int63n(int64(span)+1))
	if t.hours != nil {
		if peak := t.hours.PeakHour(); peak >= 0 && t.nowFunc().Hour() == peak {
			d = d * 7 / 10
		}
	}
	return d
}

// Think produces one novel proactive thought, or ok=false when every
// category fails. The thought is queued at low priority.
func (t *Thinker) Think(ctx context.Context) (string, bool) {
	order := make([]category, len(allCategories))
	copy(order, allCategories)
	t.mu.Lock()
	t.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	t.mu.Unlock()

	for _, cat := range order {
		thought := t.generateFor(ctx, cat)
		if thought == "" {
			continue
		}
		if !t.markNovel(thought) {
			continue
		}

		t.mu.Lock()
		t.lastThought = t.nowFunc()
		t.mu.Unlock()

		if t.queue != nil {
			t.queue.Enqueue(queue.PriorityLow, "proactive", thought)
		}
		t.bus.Publish(events.Event{
			Source: events.SourceProactive,
			Kind:   events.KindThought,
			Data:   map[string]any{"category": string(cat)},
		})
		if err := t.save(); err != nil {
			t.logger.Warn("proactive state save failed", "error", err)
		}
		return thought, true
	}
	return "", false
}

// generateFor tries the LLM first, then the template pool.
func (t *Thinker) generateFor(ctx context.Context, cat category) string {
	if t.client != nil {
		prompt := promptFor(cat, t.dominantLabel())
		resp, err := t.client.Generate(ctx, t.model, llm.Request{
			Prompt:      prompt,
			Temperature: 0.9,
			MaxTokens:   80,
		})
		if err == nil {
			if text := strings.TrimSpace(resp.Text); text != "" {
				return text
			}
		} else {
			t.logger.Debug("proactive llm generation failed", "category", cat, "error", err)
		}
	}

	pool := templatePools[cat]
	if len(pool) == 0 {
		return ""
	}
	t.mu.Lock()
	pick := pool[t.rng.Intn(len(pool))]
	t.mu.Unlock()
	if strings.Contains(pick, "%s") {
		pick = fmt.Sprintf(pick, t.dominantLabel())
	}
	return pick
}

func promptFor(cat category, emotion string) string {
	switch cat {
	case catCuriosity:
		return "Generate one short, genuine question you'd ask a close friend out of the blue. One sentence."
	case catObservation:
		return "Share one small observation about daily life with your user. One sentence, warm, specific."
	case catEmotional:
		return fmt.Sprintf("You are feeling %s. Express it briefly and naturally in one sentence.", emotion)
	case catActivity:
		return "Suggest one small shared activity for right now. One sentence, low pressure."
	default:
		return "Think out loud: one short reflective sentence about memory, time, or attention."
	}
}

func (t *Thinker) dominantLabel() string {
	if t.emotions == nil {
		return affect.Contentment
	}
	if d := t.emotions.Dominant(); d.Emotion != "" {
		return d.Emotion
	}
	return affect.Contentment
}

// markNovel records a thought in the dedupe set. When the set already
// holds everything being generated, it resets so the agent can repeat
// old material rather than fall silent forever.
func (t *Thinker) markNovel(thought string) bool {
	key := strings.ToLower(strings.TrimSpace(thought))

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.asked[key] {
		if len(t.asked) >= t.poolSizeLocked() {
			t.asked = make(map[string]bool)
			t.asked[key] = true
			return true
		}
		return false
	}
	t.asked[key] = true
	return true
}

func (t *Thinker) poolSizeLocked() int {
	n := 0
	for _, pool := range templatePools {
		n += len(pool)
	}
	return n
}

// Run emits thoughts on the sliding interval until ctx is cancelled.
func (t *Thinker) Run(ctx context.Context) {
	for {
		wait := t.NextInterval()
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			if _, ok := t.Think(ctx); !ok {
				t.logger.Debug("no novel proactive thought this round")
			}
		}
	}
}

// save persists the dedupe set.
func (t *Thinker) save() error {
	if t.statePath == "" {
		return nil
	}

	t.mu.Lock()
	st := State{LastThought: t.lastThought}
	for k := range t.asked {
		st.Asked = append(st.Asked, k)
	}
	t.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal proactive state: %w", err)
	}
	tmp := t.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write proactive state: %w", err)
	}
	return os.Rename(tmp, t.statePath)
}

// Load restores the dedupe set. Corrupt state is backed up and reset.
func (t *Thinker) Load() error {
	if t.statePath == "" {
		return nil
	}
	data, err := os.ReadFile(t.statePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read proactive state: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		t.logger.Warn("proactive state corrupt, resetting", "error", err)
		return paths.BackupCorrupt(t.statePath)
	}

	t.mu.Lock()
	t.asked = make(map[string]bool, len(st.Asked))
	for _, k := range st.Asked {
		t.asked[k] = true
	}
	t.lastThought = st.LastThought
	t.mu.Unlock()
	return nil
}
