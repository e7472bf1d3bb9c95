// Package usermodel accumulates learned preferences about the user:
// how they like responses shaped, what topics recur, what schedule
// they keep. Persisted as JSON alongside the other state files.
package usermodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emberhearth/ember/internal/paths"
)

// Preference is one learned preference with reinforcement tracking.
type Preference struct {
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	Observed   int       `json:"observed"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Model holds what the agent has learned about its user.
type Model struct {
	mu          sync.RWMutex
	preferences map[string]Preference
	topicCounts map[string]int
	activeHours [24]int // interaction count per hour of day

	statePath string
	logger    *slog.Logger
	nowFunc   func() time.Time
}

// New creates a user model persisting to statePath.
func New(statePath string, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{
		preferences: make(map[string]Preference),
		topicCounts: make(map[string]int),
		statePath:   statePath,
		logger:      logger,
		nowFunc:     time.Now,
	}
}

// SetNowFunc overrides the clock for tests.
func (m *Model) SetNowFunc(f func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFunc = f
}

// Observe reinforces a preference. Repeated observations of the same
// key/value raise confidence; a conflicting value replaces the old one
// once observed and drops confidence back down.
func (m *Model) Observe(key, value string) {
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc().UTC()
	p, ok := m.preferences[key]
	if ok && p.Value == value {
		p.Observed++
		p.Confidence = confidenceFor(p.Observed)
		p.UpdatedAt = now
		m.preferences[key] = p
		return
	}
	m.preferences[key] = Preference{
		Key:        key,
		Value:      value,
		Confidence: confidenceFor(1),
		Observed:   1,
		UpdatedAt:  now,
	}
}

func confidenceFor(observed int) float64 {
	switch {
	case observed >= 10:
		return 0.95
	case observed >= 5:
		return 0.8
	case observed >= 2:
		return 0.6
	default:
		return 0.4
	}
}

// Get returns a preference by key.
func (m *Model) Get(key string) (Preference, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.preferences[strings.ToLower(key)]
	return p, ok
}

// RecordTopic counts a conversation topic occurrence.
func (m *Model) RecordTopic(topic string) {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if len(topic) < 3 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topicCounts[topic]++
}

// RecordActivity notes the hour of day the user interacted.
func (m *Model) RecordActivity(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeHours[at.Hour()]++
}

// TopTopics returns the n most frequent topics, ties broken lexically.
func (m *Model) TopTopics(n int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type tc struct {
		topic string
		count int
	}
	all := make([]tc, 0, len(m.topicCounts))
	for topic, count := range m.topicCounts {
		all = append(all, tc{topic, count})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].topic < all[j].topic
	})

	if n > len(all) {
		n = len(all)
	}
	out := make([]string, 0, n)
	for _, t := range all[:n] {
		out = append(out, t.topic)
	}
	return out
}

// PeakHour returns the hour of day with the most interactions, or -1
// when no activity has been observed.
func (m *Model) PeakHour() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	best, bestCount := -1, 0
	for h, c := range m.activeHours {
		if c > bestCount {
			best, bestCount = h, c
		}
	}
	return best
}

// persisted is the on-disk shape.
type persisted struct {
	Preferences []Preference   `json:"preferences"`
	TopicCounts map[string]int `json:"topic_counts"`
	ActiveHours [24]int        `json:"active_hours"`
	SavedAt     time.Time      `json:"saved_at"`
}

// Save writes the model atomically.
func (m *Model) Save() error {
	if m.statePath == "" {
		return nil
	}
	m.mu.RLock()
	p := persisted{
		TopicCounts: m.topicCounts,
		ActiveHours: m.activeHours,
		SavedAt:     m.nowFunc().UTC(),
	}
	for _, pref := range m.preferences {
		p.Preferences = append(p.Preferences, pref)
	}
	sort.Slice(p.Preferences, func(i, j int) bool { return p.Preferences[i].Key < p.Preferences[j].Key })
	data, err := json.MarshalIndent(p, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal user model: %w", err)
	}

	tmp := m.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write user model: %w", err)
	}
	if err := os.Rename(tmp, m.statePath); err != nil {
		return fmt.Errorf("replace user model: %w", err)
	}
	return nil
}

// Load reads the persisted model. Missing file starts empty; corrupt
// state is backed up and reset.
func (m *Model) Load() error {
	if m.statePath == "" {
		return nil
	}
	data, err := os.ReadFile(m.statePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read user model: %w", err)
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		m.logger.Warn("user model corrupt, starting over", "path", m.statePath, "error", err)
		if bakErr := paths.BackupCorrupt(m.statePath); bakErr != nil {
			return fmt.Errorf("backup corrupt user model: %w", bakErr)
		}
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pref := range p.Preferences {
		m.preferences[pref.Key] = pref
	}
	if p.TopicCounts != nil {
		m.topicCounts = p.TopicCounts
	}
	m.activeHours = p.ActiveHours
	return nil
}
