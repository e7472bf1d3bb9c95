package affect

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGenerateClampsAndDiscards(t *testing.T) {
	e := NewEngine("", nil, nil)

	ae, ok := e.Generate(Joy, "good news", 1.0)
	if !ok {
		t.Fatal("Generate(joy) should succeed")
	}
	if ae.Intensity <= 0 || ae.Intensity > 1 {
		t.Errorf("intensity %f out of range", ae.Intensity)
	}

	if _, ok := e.Generate(Doubt, "barely there", 0.1); ok {
		t.Error("emotion below the intensity floor should be discarded")
	}

	// Unknown labels coerce to curiosity rather than failing.
	ae, ok = e.Generate("melancholy-ish", "unknown label", 1.0)
	if !ok || ae.Emotion != Curiosity {
		t.Errorf("unknown label -> %q, want curiosity", ae.Emotion)
	}
}

func TestActiveEmotionCap(t *testing.T) {
	e := NewEngine("", nil, nil)
	labels := []string{Joy, Sadness, Anger, Fear, Surprise, Disgust, Curiosity,
		Affection, Anxiety, Empathy, Loneliness, Hope, Frustration}

	for _, l := range labels {
		e.Generate(l, "test", 1.0)
	}

	if got := len(e.Active()); got > 10 {
		t.Errorf("active emotions = %d, want <= 10", got)
	}
}

func TestDominantIsHighestIntensity(t *testing.T) {
	e := NewEngine("", nil, nil)
	e.Generate(Contentment, "baseline", 1.0)
	e.Generate(Excitement, "big news", 1.2)

	if dom := e.Dominant(); dom.Emotion != Excitement {
		t.Errorf("Dominant() = %q, want excitement", dom.Emotion)
	}
}

func TestDecayHalvesAtHalfLife(t *testing.T) {
	e := NewEngine("", nil, nil)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.SetNowFunc(fixedClock(start))

	ae, _ := e.Generate(Anger, "provoked", 1.0)
	initial := ae.Intensity

	// Advance one anger half-life (120 minutes).
	e.SetNowFunc(fixedClock(start.Add(120 * time.Minute)))
	active := e.Active()
	if len(active) != 1 {
		t.Fatalf("got %d active emotions, want 1", len(active))
	}
	got := active[0].Intensity
	want := initial / 2
	if got < want-0.01 || got > want+0.01 {
		t.Errorf("after one half-life intensity = %f, want ~%f", got, want)
	}
}

func TestDecayDropsFaintEmotions(t *testing.T) {
	e := NewEngine("", nil, nil)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.SetNowFunc(fixedClock(start))
	e.Generate(Surprise, "startled", 1.0)

	// A week later nothing should remain.
	e.SetNowFunc(fixedClock(start.Add(7 * 24 * time.Hour)))
	if got := len(e.Active()); got != 0 {
		t.Errorf("after a week, active = %d, want 0", got)
	}
	if dom := e.Dominant(); dom.Emotion != Contentment {
		t.Errorf("empty engine dominant = %q, want contentment baseline", dom.Emotion)
	}
}

func TestMoodAggregates(t *testing.T) {
	e := NewEngine("", nil, nil)
	e.Generate(Joy, "a", 1.0)
	e.Generate(Gratitude, "b", 1.0)

	mood := e.Mood()
	if mood.Dominant != Joy {
		t.Errorf("mood dominant = %q, want joy", mood.Dominant)
	}
	if mood.Intensity <= 0 || mood.Intensity > 1 {
		t.Errorf("mood intensity %f out of range", mood.Intensity)
	}
}

func TestSnapshotRoundTripZeroOffline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "emotional_state.json")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	e := NewEngine(path, nil, nil)
	e.SetNowFunc(fixedClock(now))
	e.Generate(Curiosity, "new project", 1.2)
	e.Generate(Hope, "progress", 1.0)
	wantDom := e.Dominant().Emotion

	if err := e.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	// Reload with no offline time: same dominant emotion.
	r := NewEngine(path, nil, nil)
	r.SetNowFunc(fixedClock(now))
	if err := r.Restore(); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if got := r.Dominant().Emotion; got != wantDom {
		t.Errorf("restored dominant = %q, want %q", got, wantDom)
	}
}

func TestRestoreAppliesOfflineDecay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "emotional_state.json")
	saved := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	e := NewEngine(path, nil, nil)
	e.SetNowFunc(fixedClock(saved))
	ae, _ := e.Generate(Joy, "before shutdown", 1.2)
	if err := e.Save(); err != nil {
		t.Fatal(err)
	}

	// Ten minutes offline: intensity must be strictly reduced but present.
	r := NewEngine(path, nil, nil)
	r.SetNowFunc(fixedClock(saved.Add(10 * time.Minute)))
	if err := r.Restore(); err != nil {
		t.Fatal(err)
	}
	active := r.Active()
	if len(active) != 1 {
		t.Fatalf("restored %d emotions, want 1", len(active))
	}
	if active[0].Intensity >= ae.Intensity {
		t.Errorf("restored intensity %f not reduced from %f", active[0].Intensity, ae.Intensity)
	}
	if active[0].FadedEcho {
		t.Error("10 minute absence should not produce faded echoes")
	}
}

func TestRestoreFadedEchoAfterDay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "emotional_state.json")
	saved := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	e := NewEngine(path, nil, nil)
	e.SetNowFunc(fixedClock(saved))
	// Long half-life emotion so something survives 25h of decay.
	e.Generate(Contentment, "good day", 2.0)
	if err := e.Save(); err != nil {
		t.Fatal(err)
	}

	r := NewEngine(path, nil, nil)
	r.SetNowFunc(fixedClock(saved.Add(25 * time.Hour)))
	if err := r.Restore(); err != nil {
		t.Fatal(err)
	}
	for _, ae := range r.Active() {
		if !ae.FadedEcho {
			t.Errorf("emotion %q restored after 25h should be a faded echo", ae.Emotion)
		}
		if ae.Intensity > 0.3 {
			t.Errorf("faded echo intensity %f exceeds cap", ae.Intensity)
		}
	}
}

func TestRestoreCorruptFileBacksUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "emotional_state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(path, nil, nil)
	if err := e.Restore(); err != nil {
		t.Fatalf("Restore() on corrupt file should recover, got %v", err)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Error("corrupt file should be renamed to .bak")
	}
	if got := len(e.Active()); got != 0 {
		t.Errorf("fresh engine after corruption has %d active emotions", got)
	}
}

func TestRestoreMissingFileIsFreshStart(t *testing.T) {
	e := NewEngine(filepath.Join(t.TempDir(), "nope.json"), nil, nil)
	if err := e.Restore(); err != nil {
		t.Errorf("Restore() with no file should be nil, got %v", err)
	}
}

func TestComplexityNote(t *testing.T) {
	e := NewEngine("", nil, nil)
	e.Generate(Joy, "promotion", 1.0)
	e.Generate(Sadness, "friend moving away", 1.0)

	note := e.ComplexityNote()
	if note == "" {
		t.Fatal("conflicting emotions should produce a complexity note")
	}
	if !strings.Contains(note, Joy) || !strings.Contains(note, Sadness) {
		t.Errorf("note %q should mention both emotions", note)
	}

	quiet := NewEngine("", nil, nil)
	quiet.Generate(Joy, "simple happiness", 1.0)
	if note := quiet.ComplexityNote(); note != "" {
		t.Errorf("single emotion should not leak, got %q", note)
	}
}

func TestDetectFromText(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"That's wonderful, I'm delighted for you!", Joy},
		{"I wonder what's behind that behavior.", Curiosity},
		{"I'm sorry to hear about your loss.", Sadness},
		{"The weather is 14 degrees.", ""},
	}
	for _, tt := range tests {
		if got := DetectFromText(tt.text); got != tt.want {
			t.Errorf("DetectFromText(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestGetContextMentionsState(t *testing.T) {
	e := NewEngine("", nil, nil)
	e.Generate(Curiosity, "a new topic", 1.0)

	got, err := e.GetContext(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "Emotional State") || !strings.Contains(got, Curiosity) {
		t.Errorf("context missing expected content:\n%s", got)
	}
}
