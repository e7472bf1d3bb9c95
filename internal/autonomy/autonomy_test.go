package autonomy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
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

type stubEmotions struct {
	dominant  affect.ActiveEmotion
	generated []string
}

func (s *stubEmotions) Dominant() affect.ActiveEmotion { return s.dominant }

func (s *stubEmotions) Generate(emotion, cause string, modifier float64) (affect.ActiveEmotion, bool) {
	s.generated = append(s.generated, emotion)
	return affect.ActiveEmotion{Emotion: emotion, Intensity: modifier}, true
}

type recordingMemory struct {
	remembered []string
	indexed    []string
}

func (m *recordingMemory) Remember(category, content string, importance float64) error {
	m.remembered = append(m.remembered, category+": "+content)
	return nil
}

func (m *recordingMemory) Index(_ context.Context, source, text string) {
	m.indexed = append(m.indexed, text)
}

type stubReader struct {
	page *fetch.Page
	err  error
	urls []string
}

func (r *stubReader) Read(_ context.Context, url string, _ int) (*fetch.Page, error) {
	r.urls = append(r.urls, url)
	return r.page, r.err
}

type stubLLM struct {
	text string
	err  error
}

func (s *stubLLM) Generate(_ context.Context, _ string, _ llm.Request) (*llm.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Text: s.text}, nil
}

func (s *stubLLM) GenerateStream(ctx context.Context, model string, req llm.Request, cb llm.StreamCallback) (*llm.Response, error) {
	resp, err := s.Generate(ctx, model, req)
	if err == nil && cb != nil {
		cb(resp.Text)
	}
	return resp, err
}

func (s *stubLLM) Ping(context.Context) error { return s.err }

func newGoalTracker(t *testing.T, titles ...string) *goals.Tracker {
	t.Helper()
	tr := goals.NewTracker(filepath.Join(t.TempDir(), "goals.json"), nil)
	for _, title := range titles {
		if _, err := tr.Adopt("", 0, title, ""); err != nil {
			t.Fatal(err)
		}
	}
	return tr
}

func TestBehaviorDispatch(t *testing.T) {
	tests := []struct {
		emotion string
		action  string
	}{
		{affect.Curiosity, "explore_and_learn"},
		{affect.Excitement, "work_on_exciting_project"},
		{affect.Loneliness, "find_interesting_activity"},
		{affect.Contemplative, "organize_and_reflect"},
		{affect.Frustration, "take_break"},
		{affect.Determination, "work_on_priority_goal"},
		{affect.Pride, "celebrate"},
		{affect.Anxiety, "simplify_and_prioritize"},
		{affect.Peaceful, "reflect_and_dream"},
		{affect.Sadness, "seek_comfort"},
		{affect.Contentment, "gentle_exploration"},
	}
	for _, tt := range tests {
		t.Run(tt.emotion, func(t *testing.T) {
			l := New(Options{
				Emotions: &stubEmotions{dominant: affect.ActiveEmotion{Emotion: tt.emotion, Intensity: 0.7}},
				Goals:    newGoalTracker(t, "standing goal"),
				Queue:    queue.New(nil),
			})
			rec := l.RunCycle(context.Background())
			if rec.Action != tt.action {
				t.Errorf("action = %q, want %q", rec.Action, tt.action)
			}
			if rec.Emotion != tt.emotion || rec.Energy != 0.7 {
				t.Errorf("record = %+v", rec)
			}
		})
	}
}

func TestUserActivitySuppression(t *testing.T) {
	now := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	l := New(Options{IdleThreshold: 2 * time.Minute})
	l.SetNowFunc(func() time.Time { return now })

	if !l.UserIdle() {
		t.Error("fresh loop should count as idle")
	}

	l.MarkUserActive()
	if l.UserIdle() {
		t.Error("just-active user should suppress cycles")
	}

	now = now.Add(90 * time.Second)
	if l.UserIdle() {
		t.Error("90s is inside the 2m threshold")
	}

	now = now.Add(time.Minute)
	if !l.UserIdle() {
		t.Error("2m30s of silence should unblock cycles")
	}
}

func TestHistoryBounded(t *testing.T) {
	l := New(Options{
		Emotions:   &stubEmotions{dominant: affect.ActiveEmotion{Emotion: affect.Contentment}},
		MaxHistory: 5,
	})
	for i := 0; i < 8; i++ {
		l.RunCycle(context.Background())
	}

	hist := l.History()
	if len(hist) != 5 {
		t.Fatalf("history = %d records, want 5", len(hist))
	}
	if hist[0].Cycle != 4 || hist[4].Cycle != 8 {
		t.Errorf("history cycles = %d..%d, want 4..8", hist[0].Cycle, hist[4].Cycle)
	}
}

func TestExploreAndLearnProducesArtifacts(t *testing.T) {
	workspace := t.TempDir()
	graph := knowledge.NewGraph(filepath.Join(t.TempDir(), "graph.json"), nil)
	mem := &recordingMemory{}
	q := queue.New(nil)
	reader := &stubReader{page: &fetch.Page{Text: "Starlings flock in huge coordinated groups. Nobody leads them."}}

	l := New(Options{
		Emotions: &stubEmotions{dominant: affect.ActiveEmotion{Emotion: affect.Curiosity, Intensity: 0.8}},
		Graph:    graph,
		Memory:   mem,
		Queue:    q,
		Client:   &stubLLM{text: "Murmurations are leaderless coordination. I find that beautiful."},
		Reader:   reader,
		Layout:   paths.Layout{DataDir: t.TempDir(), WorkspaceDir: workspace},
	})

	rec := l.RunCycle(context.Background())
	if rec.Action != "explore_and_learn" {
		t.Fatalf("action = %q", rec.Action)
	}

	if len(reader.urls) != 1 || !strings.Contains(reader.urls[0], "wikipedia.org") {
		t.Errorf("fetched urls = %v", reader.urls)
	}

	notes, err := os.ReadDir(filepath.Join(workspace, "Research"))
	if err != nil || len(notes) != 1 {
		t.Fatalf("research artifacts = %v, err %v", notes, err)
	}
	data, _ := os.ReadFile(filepath.Join(workspace, "Research", notes[0].Name()))
	if !strings.Contains(string(data), "leaderless coordination") {
		t.Errorf("artifact = %q", data)
	}

	if len(mem.remembered) != 1 || !strings.HasPrefix(mem.remembered[0], "research:") {
		t.Errorf("remembered = %v", mem.remembered)
	}
	if len(mem.indexed) != 1 {
		t.Errorf("indexed = %v", mem.indexed)
	}

	if studied := graph.Query("ember", "studied", ""); len(studied) != 1 {
		t.Errorf("graph triples = %v", studied)
	}

	if msg, ok := q.Dequeue(); !ok || !strings.Contains(msg.Content, "While you were away") {
		t.Errorf("queued = %+v, %v", msg, ok)
	}
}

func TestExploreSurvivesFetchAndLLMFailure(t *testing.T) {
	l := New(Options{
		Emotions: &stubEmotions{dominant: affect.ActiveEmotion{Emotion: affect.Curiosity}},
		Reader:   &stubReader{err: errors.New("network down")},
		Client:   &stubLLM{err: errors.New("llm down")},
		Queue:    queue.New(nil),
	})
	rec := l.RunCycle(context.Background())
	if rec.Action != "explore_and_learn" {
		t.Errorf("action = %q, cycle should complete despite failures", rec.Action)
	}
}

func TestGoalCompletionAnnouncedHighPriority(t *testing.T) {
	tr := newGoalTracker(t)
	g, _ := tr.Adopt("", 0, "nearly done", "")
	if _, err := tr.Advance(g.ID, 0.95, ""); err != nil {
		t.Fatal(err)
	}

	emotions := &stubEmotions{dominant: affect.ActiveEmotion{Emotion: affect.Determination, Intensity: 0.9}}
	q := queue.New(nil)
	l := New(Options{Emotions: emotions, Goals: tr, Queue: q})

	l.RunCycle(context.Background())

	msg, ok := q.Dequeue()
	if !ok || msg.Priority != queue.PriorityHigh {
		t.Fatalf("completion message = %+v, %v", msg, ok)
	}
	if !strings.Contains(msg.Content, "nearly done") {
		t.Errorf("message = %q", msg.Content)
	}

	found := false
	for _, e := range emotions.generated {
		if e == affect.Pride {
			found = true
		}
	}
	if !found {
		t.Errorf("generated emotions = %v, want pride", emotions.generated)
	}
}

func TestCyclePublishesEvents(t *testing.T) {
	bus := events.New()
	ch := bus.Subscribe(16)
	defer bus.Unsubscribe(ch)

	l := New(Options{
		Emotions: &stubEmotions{dominant: affect.ActiveEmotion{Emotion: affect.Contentment}},
		Bus:      bus,
	})
	l.RunCycle(context.Background())

	kinds := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-ch:
			kinds[e.Kind] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	if !kinds[events.KindCycleStart] || !kinds[events.KindCycleComplete] {
		t.Errorf("kinds = %v", kinds)
	}
}

func TestTakeBreakGeneratesPeace(t *testing.T) {
	emotions := &stubEmotions{dominant: affect.ActiveEmotion{Emotion: affect.Frustration, Intensity: 0.8}}
	l := New(Options{Emotions: emotions})

	l.RunCycle(context.Background())
	if len(emotions.generated) != 1 || emotions.generated[0] != affect.Peaceful {
		t.Errorf("generated = %v, want peaceful", emotions.generated)
	}
}
