package proactive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emberhearth/ember/internal/affect"
	"github.com/emberhearth/ember/internal/llm"
	"github.com/emberhearth/ember/internal/queue"
)

type stubEmotions struct{ dominant string }

func (s *stubEmotions) Dominant() affect.ActiveEmotion {
	return affect.ActiveEmotion{Emotion: s.dominant, Intensity: 0.6}
}

type stubHours struct{ peak int }

func (s *stubHours) PeakHour() int { return s.peak }

type stubLLM struct {
	text  string
	err   error
	calls int
}

func (s *stubLLM) Generate(_ context.Context, _ string, _ llm.Request) (*llm.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Text: s.text}, nil
}

func (s *stubLLM) GenerateStream(ctx context.Context, model string, req llm.Request, cb llm.StreamCallback) (*llm.Response, error) {
	return s.Generate(ctx, model, req)
}

func (s *stubLLM) Ping(context.Context) error { return s.err }

func TestThinkQueuesNovelThought(t *testing.T) {
	q := queue.New(nil)
	th := New(Options{
		Client:   &stubLLM{text: "What made you smile today?"},
		Emotions: &stubEmotions{dominant: affect.Joy},
		Queue:    q,
	})
	th.SetRandSeed(1)

	thought, ok := th.Think(context.Background())
	if !ok || thought != "What made you smile today?" {
		t.Fatalf("Think() = %q, %v", thought, ok)
	}

	msg, ok := q.Dequeue()
	if !ok || msg.Priority != queue.PriorityLow || msg.Source != "proactive" {
		t.Errorf("queued = %+v, %v", msg, ok)
	}
}

func TestThinkDeduplicates(t *testing.T) {
	th := New(Options{Client: &stubLLM{text: "Same thought every time."}})
	th.SetRandSeed(1)

	if _, ok := th.Think(context.Background()); !ok {
		t.Fatal("first thought should be novel")
	}

	// The LLM keeps producing the same line; every category yields the
	// same duplicate, so the round comes up empty.
	if thought, ok := th.Think(context.Background()); ok {
		t.Errorf("duplicate thought accepted: %q", thought)
	}
}

func TestThinkFallsBackToTemplates(t *testing.T) {
	th := New(Options{
		Client:   &stubLLM{err: errors.New("llm down")},
		Emotions: &stubEmotions{dominant: affect.Curiosity},
	})
	th.SetRandSeed(7)

	thought, ok := th.Think(context.Background())
	if !ok || thought == "" {
		t.Fatalf("Think() should fall back to templates, got %q, %v", thought, ok)
	}
	// Emotional templates interpolate the dominant emotion.
	if strings.Contains(thought, "%s") {
		t.Errorf("unfilled template: %q", thought)
	}
}

func TestDedupeSetResetsWhenExhausted(t *testing.T) {
	th := New(Options{Client: &stubLLM{err: errors.New("down")}})
	th.SetRandSeed(3)

	seen := map[string]bool{}
	total := th.poolSizeLocked()

	// Harvest more thoughts than the pool holds; after exhaustion the
	// set resets instead of going silent forever.
	produced := 0
	for i := 0; i < total*4; i++ {
		if thought, ok := th.Think(context.Background()); ok {
			seen[thought] = true
			produced++
		}
	}
	if produced <= total {
		t.Errorf("produced %d thoughts from a pool of %d, reset never fired", produced, total)
	}
}

func TestNextIntervalBounds(t *testing.T) {
	th := New(Options{MinInterval: 3 * time.Minute, MaxInterval: 10 * time.Minute})
	th.SetRandSeed(42)

	for i := 0; i < 50; i++ {
		d := th.NextInterval()
		if d < 3*time.Minute || d > 10*time.Minute {
			t.Fatalf("interval %v out of [3m, 10m]", d)
		}
	}
}

func TestNextIntervalShortensAtPeakHour(t *testing.T) {
	now := time.Date(2026, 5, 10, 20, 0, 0, 0, time.UTC)
	th := New(Options{
		MinInterval: 10 * time.Minute,
		MaxInterval: 10*time.Minute + time.Second,
		Hours:       &stubHours{peak: 20},
	})
	th.SetRandSeed(1)
	th.SetNowFunc(func() time.Time { return now })

	d := th.NextInterval()
	if d >= 10*time.Minute {
		t.Errorf("peak-hour interval = %v, want shortened", d)
	}
}

func TestStateSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proactive_state.json")
	th := New(Options{Client: &stubLLM{text: "A novel thought."}, StatePath: path})
	th.SetRandSeed(1)

	if _, ok := th.Think(context.Background()); !ok {
		t.Fatal("Think() failed")
	}

	fresh := New(Options{Client: &stubLLM{text: "A novel thought."}, StatePath: path})
	fresh.SetRandSeed(1)
	if err := fresh.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// The reloaded set still remembers the thought was used.
	if thought, ok := fresh.Think(context.Background()); ok {
		t.Errorf("reloaded thinker repeated %q", thought)
	}
}

func TestLoadCorruptBacksUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proactive_state.json")
	if err := os.WriteFile(path, []byte("{bad"), 0o644); err != nil {
		t.Fatal(err)
	}

	th := New(Options{StatePath: path})
	if err := th.Load(); err != nil {
		t.Fatalf("Load() should recover from corruption, got %v", err)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Errorf("corrupt state should be backed up: %v", err)
	}
}

func TestDecorateProbabilities(t *testing.T) {
	th := New(Options{})
	th.SetRandSeed(99)

	followUps, doubts, metas, recalls := 0, 0, 0, 0
	const rounds = 2000
	for i := 0; i < rounds; i++ {
		prefix, suffix := th.Decorate(context.Background(), "I planted tomatoes", "we talked about gardens")
		if prefix != "" {
			recalls++
		}
		if strings.Contains(suffix, "?") {
			followUps++
		}
		if strings.Contains(suffix, "wrong") || strings.Contains(suffix, "read on it") || strings.Contains(suffix, "certain") {
			doubts++
		}
		if strings.Contains(suffix, "(") {
			metas++
		}
	}

	within := func(got int, want, tol float64) bool {
		f := float64(got) / rounds
		return f > want-tol && f < want+tol
	}
	if !within(followUps, followUpChance, 0.05) {
		t.Errorf("follow-up rate = %d/%d, want ~%.0f%%", followUps, rounds, followUpChance*100)
	}
	if !within(doubts, selfDoubtChance, 0.04) {
		t.Errorf("self-doubt rate = %d/%d, want ~%.0f%%", doubts, rounds, selfDoubtChance*100)
	}
	if !within(metas, metaChance, 0.03) {
		t.Errorf("meta rate = %d/%d, want ~%.0f%%", metas, rounds, metaChance*100)
	}
	if !within(recalls, recallChance, 0.04) {
		t.Errorf("recall rate = %d/%d, want ~%.0f%%", recalls, rounds, recallChance*100)
	}
}

func TestDecorateNoRecallWithoutHit(t *testing.T) {
	th := New(Options{})
	th.SetRandSeed(5)

	for i := 0; i < 200; i++ {
		if prefix, _ := th.Decorate(context.Background(), "hello", ""); prefix != "" {
			t.Fatalf("recall prefix without a hit: %q", prefix)
		}
	}
}
