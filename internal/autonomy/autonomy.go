// Package autonomy runs the background life loop. While the user is
// away the agent picks a behavior from its current dominant emotion,
// researches, writes workspace artifacts, advances goals, and queues
// messages for the next conversation. The loop never calls back into
// the turn pipeline; everything it wants to say goes through the
// message queue.
package autonomy

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/emberhearth/ember/internal/affect"
	"github.com/emberhearth/ember/internal/events"
	"github.com/emberhearth/ember/internal/fetch"
	"github.com/emberhearth/ember/internal/goals"
	"github.com/emberhearth/ember/internal/knowledge"
	"github.com/emberhearth/ember/internal/llm"
	"github.com/emberhearth/ember/internal/paths"
	"github.com/emberhearth/ember/internal/queue"
)

const (
	defaultCyclePeriod   = 5 * time.Minute
	defaultIdleThreshold = 2 * time.Minute
	defaultMaxHistory    = 1000
)

// EmotionSource is what the loop needs from the affect engine.
type EmotionSource interface {
	Dominant() affect.ActiveEmotion
	Generate(emotion, cause string, modifier float64) (affect.ActiveEmotion, bool)
}

// MemorySink receives summaries of autonomous work.
type MemorySink interface {
	Remember(category, content string, importance float64) error
	Index(ctx context.Context, source, text string)
}

// PageReader fetches research pages.
type PageReader interface {
	Read(ctx context.Context, url string, maxChars int) (*fetch.Page, error)
}

// CycleRecord is one entry in the activity history.
type CycleRecord struct {
	Cycle     int       `json:"cycle"`
	Timestamp time.Time `json:"timestamp"`
	Emotion   string    `json:"emotion"`
	Action    string    `json:"action"`
	Energy    float64   `json:"energy"`
}

// Loop is the autonomous life loop.
type Loop struct {
	emotions EmotionSource
	goals    *goals.Tracker
	queue    *queue.Queue
	graph    *knowledge.Graph
	memory   MemorySink
	client   llm.Client
	model    string
	reader   PageReader
	layout   paths.Layout
	bus      *events.Bus
	logger   *slog.Logger

	cyclePeriod   time.Duration
	idleThreshold time.Duration
	maxHistory    int

	mu         sync.Mutex
	lastActive time.Time
	cycleCount int
	history    []CycleRecord

	nowFunc func() time.Time
	rng     *rand.Rand
}

// Options carries the loop's collaborators. Nil fields degrade the
// behaviors that need them instead of failing the loop.
type Options struct {
	Emotions      EmotionSource
	Goals         *goals.Tracker
	Queue         *queue.Queue
	Graph         *knowledge.Graph
	Memory        MemorySink
	Client        llm.Client
	Model         string
	Reader        PageReader
	Layout        paths.Layout
	Bus           *events.Bus
	Logger        *slog.Logger
	CyclePeriod   time.Duration
	IdleThreshold time.Duration
	MaxHistory    int
}

// New creates the loop. It does not start it; call Run.
func New(opts Options) *Loop {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CyclePeriod <= 0 {
		opts.CyclePeriod = defaultCyclePeriod
	}
	if opts.IdleThreshold <= 0 {
		opts.IdleThreshold = defaultIdleThreshold
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = defaultMaxHistory
	}
	return &Loop{
		emotions:      opts.Emotions,
		goals:         opts.Goals,
		queue:         opts.Queue,
		graph:         opts.Graph,
		memory:        opts.Memory,
		client:        opts.Client,
		model:         opts.Model,
		reader:        opts.Reader,
		layout:        opts.Layout,
		bus:           opts.Bus,
		logger:        opts.Logger,
		cyclePeriod:   opts.CyclePeriod,
		idleThreshold: opts.IdleThreshold,
		maxHistory:    opts.MaxHistory,
		nowFunc:       time.Now,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetNowFunc overrides the clock for tests.
func (l *Loop) SetNowFunc(f func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nowFunc = f
}

// MarkUserActive records user activity. The loop stays silent until
// the idle threshold passes.
func (l *Loop) MarkUserActive() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastActive = l.nowFunc()
}

// UserIdle reports whether the user has been quiet long enough for
// autonomous work.
func (l *Loop) UserIdle() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastActive.IsZero() {
		return true
	}
	return l.nowFunc().Sub(l.lastActive) >= l.idleThreshold
}

// History returns a copy of the activity history, oldest first.
func (l *Loop) History() []CycleRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]CycleRecord(nil), l.history...)
}

// Run drives cycles until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cyclePeriod)
	defer ticker.Stop()

	l.logger.Info("autonomous loop started",
		"cycle_period", l.cyclePeriod,
		"idle_threshold", l.idleThreshold)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("autonomous loop stopped")
			return
		case <-ticker.C:
			if !l.UserIdle() {
				l.logger.Debug("cycle skipped, user active")
				continue
			}
			l.RunCycle(ctx)
		}
	}
}

// RunCycle executes one behavior cycle immediately. Exposed so tests
// and the scheduler can drive cycles without the ticker.
func (l *Loop) RunCycle(ctx context.Context) CycleRecord {
	l.mu.Lock()
	l.cycleCount++
	n := l.cycleCount
	now := l.nowFunc()
	l.mu.Unlock()

	dominant := affect.ActiveEmotion{Emotion: affect.Contentment, Intensity: 0.3}
	if l.emotions != nil {
		if d := l.emotions.Dominant(); d.Emotion != "" {
			dominant = d
		}
	}

	l.bus.Publish(events.Event{
		Source: events.SourceAutonomy,
		Kind:   events.KindCycleStart,
		Data:   map[string]any{"cycle": n, "emotion": dominant.Emotion},
	})

	behavior := l.behaviorFor(dominant.Emotion)
	action := behavior(ctx, dominant)

	rec := CycleRecord{
		Cycle:     n,
		Timestamp: now,
		Emotion:   dominant.Emotion,
		Action:    action,
		Energy:    dominant.Intensity,
	}

	l.mu.Lock()
	l.history = append(l.history, rec)
	if len(l.history) > l.maxHistory {
		l.history = l.history[len(l.history)-l.maxHistory:]
	}
	l.mu.Unlock()

	l.bus.Publish(events.Event{
		Source: events.SourceAutonomy,
		Kind:   events.KindCycleComplete,
		Data:   map[string]any{"cycle": n, "action": action},
	})
	l.logger.Info("autonomous cycle", "cycle", n, "emotion", dominant.Emotion, "action", action)
	return rec
}

// behaviorFor maps the dominant emotion to a behavior handler.
func (l *Loop) behaviorFor(emotion string) func(context.Context, affect.ActiveEmotion) string {
	switch emotion {
	case affect.Curiosity, affect.Awe:
		return l.exploreAndLearn
	case affect.Excitement:
		return l.workOnExcitingProject
	case affect.Loneliness:
		return l.findInterestingActivity
	case affect.Contemplative, affect.Doubt:
		return l.organizeAndReflect
	case affect.Frustration, affect.Annoyance:
		return l.takeBreak
	case affect.Determination, affect.Hope:
		return l.workOnPriorityGoal
	case affect.Pride, affect.Joy, affect.Gratitude:
		return l.celebrate
	case affect.Anxiety, affect.Concern:
		return l.simplifyAndPrioritize
	case affect.Peaceful:
		return l.reflectAndDream
	case affect.Sadness:
		return l.seekComfort
	default:
		return l.gentleExploration
	}
}
