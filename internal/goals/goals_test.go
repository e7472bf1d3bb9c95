package goals

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	return NewTracker(filepath.Join(t.TempDir(), "goals.json"), nil)
}

func TestAdoptAndAdvance(t *testing.T) {
	tr := newTestTracker(t)

	g, err := tr.Adopt(TypeSocial, 4, "learn the user's favorite music", "shared taste builds rapport")
	if err != nil {
		t.Fatalf("Adopt() error: %v", err)
	}
	if g.Status != StatusActive || g.Progress != 0 {
		t.Fatalf("new goal = %+v", g)
	}
	if g.Type != TypeSocial || g.Priority != 4 {
		t.Fatalf("goal shape = %+v, want social priority 4", g)
	}

	g, err = tr.Advance(g.ID, 0.25, "noted three artists they mentioned")
	if err != nil {
		t.Fatalf("Advance() error: %v", err)
	}
	if g.Progress != 0.25 {
		t.Errorf("progress = %v, want 0.25", g.Progress)
	}
	if len(g.Notes) != 1 {
		t.Errorf("notes = %v, want 1 entry", g.Notes)
	}
}

func TestAdvanceCompletesAtFull(t *testing.T) {
	tr := newTestTracker(t)
	g, _ := tr.Adopt(TypeLearning, 0, "finish the garden research", "")

	g, err := tr.Advance(g.ID, 1.5, "done")
	if err != nil {
		t.Fatalf("Advance() error: %v", err)
	}
	if g.Status != StatusCompleted || g.Progress != 1 {
		t.Errorf("goal = %+v, want completed at 1.0", g)
	}

	// Completed goals refuse further advancement.
	if _, err := tr.Advance(g.ID, 0.1, ""); err == nil {
		t.Error("advancing a completed goal should fail")
	}
	if len(tr.Active()) != 0 {
		t.Error("completed goal should not be active")
	}
}

func TestAdvanceClampsNegative(t *testing.T) {
	tr := newTestTracker(t)
	g, _ := tr.Adopt("", 0, "something", "")

	g, err := tr.Advance(g.ID, -0.5, "setback")
	if err != nil {
		t.Fatalf("Advance() error: %v", err)
	}
	if g.Progress != 0 {
		t.Errorf("progress = %v, want clamped to 0", g.Progress)
	}
}

func TestAdoptRequiresTitle(t *testing.T) {
	tr := newTestTracker(t)
	if _, err := tr.Adopt(TypeLearning, 3, "", "no title"); err == nil {
		t.Error("empty title should fail")
	}
}

func TestAbandon(t *testing.T) {
	tr := newTestTracker(t)
	g, _ := tr.Adopt(TypeMastery, 0, "learn fencing", "")

	if err := tr.Abandon(g.ID, "no interest after all"); err != nil {
		t.Fatalf("Abandon() error: %v", err)
	}
	if len(tr.Active()) != 0 {
		t.Error("abandoned goal should not be active")
	}
	all := tr.All()
	if len(all) != 1 || all[0].Status != StatusAbandoned {
		t.Errorf("All() = %+v", all)
	}
	if len(all[0].Notes) != 1 || !strings.HasPrefix(all[0].Notes[0], "abandoned:") {
		t.Errorf("notes = %v", all[0].Notes)
	}
}

func TestActiveRotatesLeastRecent(t *testing.T) {
	tr := newTestTracker(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tr.SetNowFunc(func() time.Time { return now })

	first, _ := tr.Adopt("", 0, "first", "")
	now = now.Add(time.Minute)
	second, _ := tr.Adopt("", 0, "second", "")

	// Advancing the first goal pushes it behind the second.
	now = now.Add(time.Minute)
	if _, err := tr.Advance(first.ID, 0.1, ""); err != nil {
		t.Fatal(err)
	}

	active := tr.Active()
	if len(active) != 2 {
		t.Fatalf("active = %d goals", len(active))
	}
	if active[0].ID != second.ID {
		t.Errorf("least recently advanced should come first, got %q", active[0].Title)
	}
}

func TestAdoptDefaults(t *testing.T) {
	tr := newTestTracker(t)
	g, err := tr.Adopt("", 0, "untyped pursuit", "")
	if err != nil {
		t.Fatalf("Adopt() error: %v", err)
	}
	if g.Type != TypeLearning {
		t.Errorf("type = %q, want learning default", g.Type)
	}
	if g.Priority != priorityDefault {
		t.Errorf("priority = %d, want %d", g.Priority, priorityDefault)
	}

	high, _ := tr.Adopt(TypeCreation, 99, "over-eager", "")
	if high.Priority != priorityMax {
		t.Errorf("priority = %d, want clamped to %d", high.Priority, priorityMax)
	}
}

func TestActiveOrdersByPriority(t *testing.T) {
	tr := newTestTracker(t)
	if _, err := tr.Adopt(TypeLearning, 1, "background reading", ""); err != nil {
		t.Fatal(err)
	}
	urgent, _ := tr.Adopt(TypeSocial, 5, "mend this morning's friction", "")

	active := tr.Active()
	if len(active) != 2 || active[0].ID != urgent.ID {
		t.Errorf("highest priority should lead, got %q first", active[0].Title)
	}
}

func TestAdvanceLeavesQuarterMilestones(t *testing.T) {
	tr := newTestTracker(t)
	g, _ := tr.Adopt(TypeCreation, 0, "write a poem cycle", "")

	if _, err := tr.Advance(g.ID, 0.3, ""); err != nil {
		t.Fatal(err)
	}
	g, err := tr.Advance(g.ID, 0.25, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Milestones) != 2 {
		t.Fatalf("milestones = %v, want the 25%% and 50%% marks", g.Milestones)
	}
	if g.Milestones[0] != "reached 25%" || g.Milestones[1] != "reached 50%" {
		t.Errorf("milestones = %v", g.Milestones)
	}

	// Finishing crosses the remaining quarters in one advance.
	g, _ = tr.Advance(g.ID, 0.5, "")
	if len(g.Milestones) != 4 {
		t.Errorf("milestones after completion = %v, want all four quarters", g.Milestones)
	}
}

func TestNotesBounded(t *testing.T) {
	tr := newTestTracker(t)
	g, _ := tr.Adopt("", 0, "long project", "")

	for i := 0; i < maxNotes+5; i++ {
		if _, err := tr.Advance(g.ID, 0.001, "step"); err != nil {
			t.Fatal(err)
		}
	}
	all := tr.All()
	if got := len(all[0].Notes); got != maxNotes {
		t.Errorf("notes = %d, want bounded to %d", got, maxNotes)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goals.json")
	tr := NewTracker(path, nil)
	g, _ := tr.Adopt(TypeCreation, 5, "persisted goal", "testing")
	if _, err := tr.Advance(g.ID, 0.4, "some progress"); err != nil {
		t.Fatal(err)
	}

	fresh := NewTracker(path, nil)
	if err := fresh.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	active := fresh.Active()
	if len(active) != 1 || active[0].Progress != 0.4 || active[0].Title != "persisted goal" {
		t.Errorf("reloaded = %+v", active)
	}
	if active[0].Type != TypeCreation || active[0].Priority != 5 {
		t.Errorf("type and priority lost in round trip: %+v", active[0])
	}
	if len(active[0].Milestones) != 1 {
		t.Errorf("milestones lost in round trip: %v", active[0].Milestones)
	}
}

func TestLoadCorruptBacksUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goals.json")
	if err := os.WriteFile(path, []byte("[nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := NewTracker(path, nil)
	if err := tr.Load(); err != nil {
		t.Fatalf("Load() on corrupt state should recover, got %v", err)
	}
	if len(tr.All()) != 0 {
		t.Error("corrupt state should start empty")
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Errorf("corrupt state should be backed up: %v", err)
	}
}

func TestSeedDefaults(t *testing.T) {
	tr := newTestTracker(t)
	if err := tr.SeedDefaults(); err != nil {
		t.Fatalf("SeedDefaults() error: %v", err)
	}
	seeded := len(tr.Active())
	if seeded == 0 {
		t.Fatal("seeding an empty tracker should adopt goals")
	}

	// Seeding again must not duplicate.
	if err := tr.SeedDefaults(); err != nil {
		t.Fatal(err)
	}
	if got := len(tr.Active()); got != seeded {
		t.Errorf("re-seed changed goal count: %d -> %d", seeded, got)
	}
}

func TestGetContext(t *testing.T) {
	tr := newTestTracker(t)
	g, _ := tr.Adopt(TypeLearning, 0, "map the night sky", "wonder is worth keeping")
	if _, err := tr.Advance(g.ID, 0.5, ""); err != nil {
		t.Fatal(err)
	}

	out, err := tr.GetContext(context.Background(), "hello")
	if err != nil {
		t.Fatalf("GetContext() error: %v", err)
	}
	if !strings.Contains(out, "map the night sky") || !strings.Contains(out, "50%") {
		t.Errorf("context = %q", out)
	}

	empty := newTestTracker(t)
	if out, _ := empty.GetContext(context.Background(), "hi"); out != "" {
		t.Errorf("empty tracker context = %q, want empty", out)
	}
}
