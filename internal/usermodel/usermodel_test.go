package usermodel

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestObserveReinforcement(t *testing.T) {
	m := New("", nil)

	m.Observe("response_style", "concise")
	p, ok := m.Get("response_style")
	if !ok || p.Confidence != 0.4 {
		t.Fatalf("single observation = %+v, want confidence 0.4", p)
	}

	for i := 0; i < 9; i++ {
		m.Observe("response_style", "concise")
	}
	p, _ = m.Get("response_style")
	if p.Confidence != 0.95 {
		t.Errorf("after 10 observations confidence = %f, want 0.95", p.Confidence)
	}
	if p.Observed != 10 {
		t.Errorf("observed = %d, want 10", p.Observed)
	}
}

func TestConflictingValueResets(t *testing.T) {
	m := New("", nil)
	for i := 0; i < 5; i++ {
		m.Observe("response_style", "concise")
	}

	m.Observe("response_style", "detailed")
	p, _ := m.Get("response_style")
	if p.Value != "detailed" {
		t.Errorf("value = %q, want replaced with detailed", p.Value)
	}
	if p.Confidence != 0.4 {
		t.Errorf("confidence = %f, want reset to 0.4", p.Confidence)
	}
}

func TestObserveIgnoresEmpty(t *testing.T) {
	m := New("", nil)
	m.Observe("", "value")
	m.Observe("key", "")
	if _, ok := m.Get("key"); ok {
		t.Error("empty value should not be stored")
	}
}

func TestTopTopicsDeterministic(t *testing.T) {
	m := New("", nil)
	for i := 0; i < 5; i++ {
		m.RecordTopic("gardening")
	}
	for i := 0; i < 3; i++ {
		m.RecordTopic("astronomy")
	}
	m.RecordTopic("cooking")
	m.RecordTopic("baking") // ties with cooking, lexical order breaks it

	want := []string{"gardening", "astronomy", "baking", "cooking"}
	if got := m.TopTopics(4); !reflect.DeepEqual(got, want) {
		t.Errorf("TopTopics(4) = %v, want %v", got, want)
	}
	if got := m.TopTopics(2); len(got) != 2 {
		t.Errorf("TopTopics(2) = %d entries", len(got))
	}
}

func TestRecordTopicRejectsShort(t *testing.T) {
	m := New("", nil)
	m.RecordTopic("ai")
	if got := m.TopTopics(5); len(got) != 0 {
		t.Errorf("short topic recorded: %v", got)
	}
}

func TestPeakHour(t *testing.T) {
	m := New("", nil)
	if got := m.PeakHour(); got != -1 {
		t.Errorf("empty model peak = %d, want -1", got)
	}

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		m.RecordActivity(day.Add(9 * time.Hour))
	}
	m.RecordActivity(day.Add(22 * time.Hour))

	if got := m.PeakHour(); got != 9 {
		t.Errorf("peak hour = %d, want 9", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usermodel.json")
	m := New(path, nil)
	for i := 0; i < 5; i++ {
		m.Observe("response_style", "concise")
	}
	m.RecordTopic("gardening")
	m.RecordActivity(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	if err := m.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	r := New(path, nil)
	if err := r.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	p, ok := r.Get("response_style")
	if !ok || p.Confidence != 0.8 || p.Observed != 5 {
		t.Errorf("loaded preference = %+v", p)
	}
	if got := r.TopTopics(1); len(got) != 1 || got[0] != "gardening" {
		t.Errorf("loaded topics = %v", got)
	}
	if got := r.PeakHour(); got != 9 {
		t.Errorf("loaded peak hour = %d, want 9", got)
	}
}

func TestLoadCorruptBacksUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usermodel.json")
	if err := os.WriteFile(path, []byte("%%%"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := New(path, nil)
	if err := m.Load(); err != nil {
		t.Fatalf("Load() on corrupt file should recover, got %v", err)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Error("corrupt file should be renamed to .bak")
	}
}

func TestGetContextFiltersLowConfidence(t *testing.T) {
	m := New("", nil)
	m.Observe("response_style", "concise") // 0.4, below threshold
	for i := 0; i < 3; i++ {
		m.Observe("humor", "dry") // 0.6
	}

	got, err := m.GetContext(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "concise") {
		t.Errorf("low-confidence preference leaked:\n%s", got)
	}
	if !strings.Contains(got, "dry") {
		t.Errorf("confident preference missing:\n%s", got)
	}

	empty := New("", nil)
	if got, _ := empty.GetContext(context.Background(), ""); got != "" {
		t.Errorf("empty model context = %q", got)
	}
}
