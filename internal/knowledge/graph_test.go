package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestAddMergesByMaxConfidence(t *testing.T) {
	g := NewGraph("", nil)
	g.Add("user", "likes", "tea", 0.5, "conversation")
	g.Add("user", "likes", "tea", 0.9, "conversation")
	g.Add("user", "likes", "tea", 0.3, "conversation")

	got := g.Query("user", "likes", "tea")
	if len(got) != 1 {
		t.Fatalf("Query() = %d triples, want 1", len(got))
	}
	if got[0].Confidence != 0.9 {
		t.Errorf("confidence = %f, want max 0.9", got[0].Confidence)
	}
}

func TestAddRejectsEmptyAndClamps(t *testing.T) {
	g := NewGraph("", nil)
	g.Add("", "likes", "tea", 0.5, "")
	g.Add("user", "", "tea", 0.5, "")
	if g.Len() != 0 {
		t.Errorf("empty fields should be rejected, len = %d", g.Len())
	}

	g.Add("user", "likes", "tea", 5.0, "")
	if got := g.All()[0].Confidence; got != 1.0 {
		t.Errorf("confidence = %f, want clamped to 1", got)
	}
}

func TestConnectionsDeterministic(t *testing.T) {
	g := NewGraph("", nil)
	g.Add("user", "likes", "gardening", 0.9, "")
	g.Add("user", "uses", "golang", 0.85, "")
	g.Add("gardening", "is_a", "hobby", 0.6, "")
	g.Add("ember", "knows", "user", 0.7, "")

	first := g.Connections("user")
	for i := 0; i < 5; i++ {
		if next := g.Connections("user"); !reflect.DeepEqual(first, next) {
			t.Fatal("Connections() ordering is not stable across calls")
		}
	}

	if len(first) != 3 {
		t.Fatalf("Connections(user) = %d, want 3 (subject and object matches)", len(first))
	}
	for i := 1; i < len(first); i++ {
		if first[i].Confidence > first[i-1].Confidence {
			t.Error("connections not ordered by descending confidence")
		}
	}
}

func TestQueryPatterns(t *testing.T) {
	g := NewGraph("", nil)
	g.Add("user", "likes", "tea", 0.9, "")
	g.Add("user", "likes", "hiking", 0.8, "")
	g.Add("user", "dislikes", "mornings", 0.9, "")

	if got := g.Query("user", "likes", ""); len(got) != 2 {
		t.Errorf("Query(user, likes, *) = %d, want 2", len(got))
	}
	if got := g.Query("", "", "tea"); len(got) != 1 {
		t.Errorf("Query(*, *, tea) = %d, want 1", len(got))
	}
	if got := g.Query("", "", ""); len(got) != 3 {
		t.Errorf("Query(*, *, *) = %d, want 3", len(got))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.json")
	g := NewGraph(path, nil)
	g.Add("user", "likes", "astronomy", 0.9, "conversation")
	g.Add("user", "uses", "golang", 0.85, "conversation")
	if err := g.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	r := NewGraph(path, nil)
	if err := r.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !reflect.DeepEqual(g.All(), r.All()) {
		t.Errorf("round trip mismatch:\nsaved:  %+v\nloaded: %+v", g.All(), r.All())
	}
}

func TestLoadCorruptBacksUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.json")
	if err := os.WriteFile(path, []byte("][not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	g := NewGraph(path, nil)
	if err := g.Load(); err != nil {
		t.Fatalf("Load() on corrupt file should recover, got %v", err)
	}
	if g.Len() != 0 {
		t.Errorf("corrupt load produced %d triples", g.Len())
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Error("corrupt graph should be renamed to .bak")
	}
}

func TestExtractPatterns(t *testing.T) {
	tests := []struct {
		utterance  string
		subject    string
		relation   string
		object     string
		confidence float64
	}{
		{"I love gardening on weekends.", "user", "likes", "gardening on weekends", 0.9},
		{"I use neovim for everything", "user", "uses", "neovim", 0.85},
		{"I'm learning woodworking!", "user", "is_learning", "woodworking", 0.9},
		{"I hate traffic.", "user", "dislikes", "traffic", 0.9},
		{"my dog is called Biscuit.", "user", "has_dog", "biscuit", 0.8},
		{"Rust is a systems language.", "rust", "is_a", "systems language", 0.6},
	}

	for _, tt := range tests {
		triples := Extract(tt.utterance)
		found := false
		for _, tr := range triples {
			if tr.Subject == tt.subject && tr.Relation == tt.relation && tr.Object == tt.object {
				found = true
				if tr.Confidence != tt.confidence {
					t.Errorf("%q: confidence = %f, want %f", tt.utterance, tr.Confidence, tt.confidence)
				}
			}
		}
		if !found {
			t.Errorf("Extract(%q) = %+v, missing (%s, %s, %s)",
				tt.utterance, triples, tt.subject, tt.relation, tt.object)
		}
	}
}

func TestExtractRejectsNoise(t *testing.T) {
	noisy := []string{
		"that is a problem",
		"it is a shame",
		"I use it",
	}
	for _, utterance := range noisy {
		for _, tr := range Extract(utterance) {
			if subjectStopwords[tr.Subject] {
				t.Errorf("Extract(%q) produced stopword subject: %+v", utterance, tr)
			}
			if len(tr.Object) < 3 {
				t.Errorf("Extract(%q) produced short object: %+v", utterance, tr)
			}
		}
	}
}

func TestLearnFoldsIntoGraph(t *testing.T) {
	g := NewGraph("", nil)
	learned := g.Learn("I love astronomy. I use golang every day.")
	if len(learned) < 2 {
		t.Fatalf("Learn() = %d triples, want >= 2", len(learned))
	}
	if got := g.Query("user", "likes", "astronomy"); len(got) != 1 {
		t.Error("likes triple not in graph")
	}
}

func TestGetContextSurfacesRelevantTriples(t *testing.T) {
	g := NewGraph("", nil)
	g.Add("user", "likes", "gardening", 0.9, "")
	g.Add("gardening", "is_a", "hobby", 0.6, "")
	g.Add("user", "uses", "golang", 0.85, "")

	got, err := g.GetContext(context.Background(), "how is the gardening going?")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "Known Facts") {
		t.Errorf("context missing header:\n%s", got)
	}
	if !strings.Contains(got, "gardening") {
		t.Errorf("context missing relevant triple:\n%s", got)
	}

	empty := NewGraph("", nil)
	if got, _ := empty.GetContext(context.Background(), "hello"); got != "" {
		t.Errorf("empty graph context = %q, want empty", got)
	}
}
