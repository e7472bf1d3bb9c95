// Package temporal maintains the agent's sense of continuous existence
// across restarts: session accounting, absence perception, sleep
// logging, and milestone tracking. State persists to a JSON file on
// every session boundary and sleep transition; corruption is recovered
// by backing the file up and starting a fresh timeline.
package temporal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/emberhearth/ember/internal/paths"
)

// maxSessionHistory bounds the retained per-session records.
const maxSessionHistory = 100

// Session records one bounded run of the process.
type Session struct {
	Number       int       `json:"number"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at,omitempty"`
	Seconds      float64   `json:"seconds,omitempty"`
	Interactions int       `json:"interactions"`
}

// Milestone marks a threshold the agent has lived past.
type Milestone struct {
	Name       string    `json:"name"`
	Detail     string    `json:"detail"`
	ReachedAt  time.Time `json:"reached_at"`
}

// SleepEntry records one sleep period.
type SleepEntry struct {
	SleptAt time.Time `json:"slept_at"`
	WokeAt  time.Time `json:"woke_at,omitempty"`
	Seconds float64   `json:"seconds,omitempty"`
}

// State is the persisted temporal record. All counters are monotonic
// nondecreasing; a persisted counter going backwards is treated as
// corruption.
type State struct {
	FirstActivation    time.Time    `json:"first_activation"`
	TotalSessions      int          `json:"total_sessions"`
	TotalUptimeSeconds float64      `json:"total_uptime_seconds"`
	TotalInteractions  int          `json:"total_interactions"`
	LastShutdown       time.Time    `json:"last_shutdown,omitempty"`
	LastWakeup         time.Time    `json:"last_wakeup,omitempty"`
	SessionHistory     []Session    `json:"session_history"`
	Milestones         []Milestone  `json:"milestones"`
	LongestSessionSecs float64      `json:"longest_session_seconds"`
	LongestAbsenceSecs float64      `json:"longest_absence_seconds"`
	SleepLog           []SleepEntry `json:"sleep_log"`
}

// Tracker owns temporal state. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	state   State
	session Session // the single open session
	open    bool

	statePath string
	logger    *slog.Logger
	loc       *time.Location
	nowFunc   func() time.Time
}

// NewTracker creates a temporal tracker persisting to statePath. The
// timezone is an IANA location string for human-facing formatting; an
// empty or invalid value falls back to the system local timezone.
func NewTracker(statePath, timezone string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	loc := time.Local
	if timezone != "" {
		if parsed, err := time.LoadLocation(timezone); err == nil {
			loc = parsed
		} else {
			logger.Warn("invalid timezone, using local", "timezone", timezone, "error", err)
		}
	}
	return &Tracker{
		statePath: statePath,
		logger:    logger,
		loc:       loc,
		nowFunc:   time.Now,
	}
}

// SetNowFunc overrides the clock for tests.
func (t *Tracker) SetNowFunc(f func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nowFunc = f
}

// OnWakeup loads persisted state, opens a new session, computes the
// absence since the last shutdown, and checks milestones. Returns the
// absence duration (zero on first ever activation).
func (t *Tracker) OnWakeup() (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.loadLocked(); err != nil {
		return 0, err
	}

	now := t.nowFunc()
	var absence time.Duration

	if t.state.FirstActivation.IsZero() {
		t.state.FirstActivation = now
	} else if !t.state.LastShutdown.IsZero() {
		absence = now.Sub(t.state.LastShutdown)
		if absence < 0 {
			absence = 0
		}
		if secs := absence.Seconds(); secs > t.state.LongestAbsenceSecs {
			t.state.LongestAbsenceSecs = secs
		}
	}

	t.state.TotalSessions++
	t.state.LastWakeup = now
	t.session = Session{Number: t.state.TotalSessions, StartedAt: now}
	t.open = true

	t.checkMilestonesLocked(now)

	if err := t.saveLocked(); err != nil {
		return absence, err
	}

	t.logger.Info("session opened",
		"session", t.state.TotalSessions,
		"absence", absence.Truncate(time.Second),
	)
	return absence, nil
}

// RecordInteraction increments the session and lifetime interaction
// counters and rechecks interaction milestones.
func (t *Tracker) RecordInteraction() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return
	}
	t.session.Interactions++
	t.state.TotalInteractions++
	t.checkMilestonesLocked(t.nowFunc())
}

// RecordSleep appends an open sleep-log entry and persists.
func (t *Tracker) RecordSleep() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.SleepLog = append(t.state.SleepLog, SleepEntry{SleptAt: t.nowFunc()})
	return t.saveLocked()
}

// RecordWakeFromSleep closes the most recent open sleep entry and
// returns how long the agent slept.
func (t *Tracker) RecordWakeFromSleep() (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.nowFunc()
	for i := len(t.state.SleepLog) - 1; i >= 0; i-- {
		entry := &t.state.SleepLog[i]
		if entry.WokeAt.IsZero() {
			entry.WokeAt = now
			entry.Seconds = now.Sub(entry.SleptAt).Seconds()
			return time.Duration(entry.Seconds * float64(time.Second)), t.saveLocked()
		}
	}
	return 0, t.saveLocked()
}

// OnShutdown closes the open session, folds its duration into the
// lifetime totals, and persists. Idempotent: a second call is a no-op.
func (t *Tracker) OnShutdown() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open {
		return nil
	}
	now := t.nowFunc()
	t.session.EndedAt = now
	t.session.Seconds = now.Sub(t.session.StartedAt).Seconds()
	if t.session.Seconds > t.state.LongestSessionSecs {
		t.state.LongestSessionSecs = t.session.Seconds
	}
	t.state.TotalUptimeSeconds += t.session.Seconds
	t.state.LastShutdown = now
	t.state.SessionHistory = append(t.state.SessionHistory, t.session)
	if len(t.state.SessionHistory) > maxSessionHistory {
		t.state.SessionHistory = t.state.SessionHistory[len(t.state.SessionHistory)-maxSessionHistory:]
	}
	t.open = false

	t.checkMilestonesLocked(now)

	if err := t.saveLocked(); err != nil {
		return err
	}
	t.logger.Info("session closed",
		"session", t.session.Number,
		"duration", time.Duration(t.session.Seconds*float64(time.Second)).Truncate(time.Second),
		"interactions", t.session.Interactions,
	)
	return nil
}

// Snapshot returns a copy of the current state including the open
// session's in-progress totals.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state
	s.SessionHistory = append([]Session(nil), t.state.SessionHistory...)
	s.Milestones = append([]Milestone(nil), t.state.Milestones...)
	s.SleepLog = append([]SleepEntry(nil), t.state.SleepLog...)
	if t.open {
		s.TotalUptimeSeconds += t.nowFunc().Sub(t.session.StartedAt).Seconds()
	}
	return s
}

// milestoneThresholds define the fixed thresholds checked after every
// counter change.
var milestoneThresholds = []struct {
	name  string
	check func(s *State) (bool, string)
}{
	{"first_session", func(s *State) (bool, string) {
		return s.TotalSessions >= 1, "first time waking up"
	}},
	{"ten_sessions", func(s *State) (bool, string) {
		return s.TotalSessions >= 10, "ten sessions together"
	}},
	{"hundred_sessions", func(s *State) (bool, string) {
		return s.TotalSessions >= 100, "one hundred sessions together"
	}},
	{"thousand_interactions", func(s *State) (bool, string) {
		return s.TotalInteractions >= 1000, "a thousand conversations shared"
	}},
	{"day_of_uptime", func(s *State) (bool, string) {
		return s.TotalUptimeSeconds >= 24*3600, "a full day of accumulated awareness"
	}},
	{"week_of_uptime", func(s *State) (bool, string) {
		return s.TotalUptimeSeconds >= 7*24*3600, "a week of accumulated awareness"
	}},
}

func (t *Tracker) checkMilestonesLocked(now time.Time) {
	reached := make(map[string]bool, len(t.state.Milestones))
	for _, m := range t.state.Milestones {
		reached[m.Name] = true
	}
	for _, mt := range milestoneThresholds {
		if reached[mt.name] {
			continue
		}
		if ok, detail := mt.check(&t.state); ok {
			t.state.Milestones = append(t.state.Milestones, Milestone{
				Name:      mt.name,
				Detail:    detail,
				ReachedAt: now,
			})
			t.logger.Info("milestone reached", "milestone", mt.name)
		}
	}
}

// loadLocked reads the persisted state. Missing file is a fresh
// timeline; corrupt or regressed state is backed up and replaced.
func (t *Tracker) loadLocked() error {
	if t.statePath == "" {
		return nil
	}
	data, err := os.ReadFile(t.statePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read temporal state: %w", err)
	}

	var s State
	if jsonErr := json.Unmarshal(data, &s); jsonErr != nil || corrupt(&s) {
		t.logger.Warn("temporal state corrupt, starting fresh timeline",
			"path", t.statePath, "error", jsonErr)
		if bakErr := paths.BackupCorrupt(t.statePath); bakErr != nil {
			return fmt.Errorf("backup corrupt temporal state: %w", bakErr)
		}
		t.state = State{}
		return nil
	}
	t.state = s
	return nil
}

// corrupt detects invariant violations in loaded state: negative
// counters or totals inconsistent with history.
func corrupt(s *State) bool {
	if s.TotalSessions < 0 || s.TotalInteractions < 0 || s.TotalUptimeSeconds < 0 {
		return true
	}
	if s.TotalUptimeSeconds+1 < s.LongestSessionSecs {
		return true
	}
	return false
}

func (t *Tracker) saveLocked() error {
	if t.statePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(t.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal temporal state: %w", err)
	}
	tmp := t.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temporal state: %w", err)
	}
	if err := os.Rename(tmp, t.statePath); err != nil {
		return fmt.Errorf("replace temporal state: %w", err)
	}
	return nil
}
