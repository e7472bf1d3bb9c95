// Package person tracks the relationship between the agent and its
// user: rapport, trust, interaction streaks, and the depth label the
// agent uses to describe the bond. State persists as JSON and evolves
// from per-interaction quality scoring.
package person

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/emberhearth/ember/internal/paths"
)

// Relationship is the persisted relationship state. Rapport and trust
// run 1 to 10. QualityInteractions counts the turns that scored high
// enough to matter; Milestones records each depth the bond has
// reached.
type Relationship struct {
	Rapport             float64   `json:"rapport"`
	Trust               float64   `json:"trust"`
	TotalInteractions   int       `json:"total_interactions"`
	QualityInteractions int       `json:"quality_interactions"`
	StreakDays          int       `json:"streak_days"`
	LastInteraction     time.Time `json:"last_interaction,omitempty"`
	SharedMoments       []string  `json:"shared_moments,omitempty"`
	Milestones          []string  `json:"milestones,omitempty"`
	StartedAt           time.Time `json:"started_at,omitempty"`
}

// Tracker owns relationship state. Safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	state Relationship

	statePath string
	logger    *slog.Logger
	nowFunc   func() time.Time
}

// maxSharedMoments bounds the remembered moment list.
const maxSharedMoments = 20

// NewTracker creates a relationship tracker persisting to statePath.
func NewTracker(statePath string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		state:     Relationship{Rapport: 1, Trust: 1},
		statePath: statePath,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// SetNowFunc overrides the clock for tests.
func (t *Tracker) SetNowFunc(f func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nowFunc = f
}

// QualitySignals describe one interaction for quality scoring.
type QualitySignals struct {
	UserExpressedThanks    bool
	UserSharedPersonal     bool
	UserExpressedHostility bool
	SurpriseOccurred       bool
	LongExchange           bool // more than a quick one-liner
}

// qualityFloor is the score at which an interaction counts as a
// quality one.
const qualityFloor = 7.0

// replyLengthMin and replyLengthMax bound, in words, a reply of
// appropriate length. One-word grunts and walls of text both miss the
// bonus.
const (
	replyLengthMin = 5
	replyLengthMax = 120
)

// scoreQuality rates an interaction on a 0 to 10 scale: base 5, plus
// 1.5 for a reply of appropriate length, up to 2 for echoing the
// user's words, 0.5 when context was available, plus the per-signal
// adjustments.
func scoreQuality(userText, reply string, hadContext bool, sig QualitySignals) float64 {
	score := 5.0
	if w := len(strings.Fields(reply)); w >= replyLengthMin && w <= replyLengthMax {
		score += 1.5
	}
	score += 2 * wordOverlap(userText, reply)
	if hadContext {
		score += 0.5
	}
	if sig.UserExpressedThanks {
		score += 2
	}
	if sig.UserSharedPersonal {
		score += 1.5
	}
	if sig.LongExchange {
		score += 0.5
	}
	if sig.SurpriseOccurred {
		score += 0.5
	}
	if sig.UserExpressedHostility {
		score -= 3
	}
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return score
}

// wordOverlap is the fraction of the user's content words (five or
// more letters) the reply picks up, 0 to 1.
func wordOverlap(userText, reply string) float64 {
	replyWords := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(reply)) {
		replyWords[strings.Trim(w, ".,!?;:'\"()")] = true
	}
	var total, echoed int
	for _, w := range strings.Fields(strings.ToLower(userText)) {
		w = strings.Trim(w, ".,!?;:'\"()")
		if len(w) <= 4 {
			continue
		}
		total++
		if replyWords[w] {
			echoed++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(echoed) / float64(total)
}

// RecordInteraction folds one exchange into the relationship. Rapport
// moves toward the interaction quality; trust rises slowly on good
// interactions and falls faster on bad ones. A depth change leaves a
// milestone. Returns the quality score assigned.
func (t *Tracker) RecordInteraction(userText, reply string, hadContext bool, sig QualitySignals) float64 {
	quality := scoreQuality(userText, reply, hadContext, sig)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.nowFunc()
	if t.state.StartedAt.IsZero() {
		t.state.StartedAt = now
	}
	prevDepth := depthLocked(t.state)

	// Rapport drifts a tenth of the way toward the quality score.
	t.state.Rapport += (quality - t.state.Rapport) * 0.1
	switch {
	case quality >= 6:
		t.state.Trust += 0.05
	case quality <= 3:
		t.state.Trust -= 0.3
	}
	t.state.Rapport = clampScale(t.state.Rapport)
	t.state.Trust = clampScale(t.state.Trust)

	t.updateStreakLocked(now)
	t.state.TotalInteractions++
	if quality >= qualityFloor {
		t.state.QualityInteractions++
	}
	t.state.LastInteraction = now

	if d := depthLocked(t.state); d != prevDepth && d != "stranger" {
		t.state.Milestones = append(t.state.Milestones,
			fmt.Sprintf("became %s after %d interactions", d, t.state.TotalInteractions))
	}
	return quality
}

// RecordSharedMoment remembers a notable moment by description.
func (t *Tracker) RecordSharedMoment(description string) {
	if description == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.SharedMoments = append(t.state.SharedMoments, description)
	if len(t.state.SharedMoments) > maxSharedMoments {
		t.state.SharedMoments = t.state.SharedMoments[len(t.state.SharedMoments)-maxSharedMoments:]
	}
}

func (t *Tracker) updateStreakLocked(now time.Time) {
	if t.state.LastInteraction.IsZero() {
		t.state.StreakDays = 1
		return
	}
	lastDay := t.state.LastInteraction.Truncate(24 * time.Hour)
	today := now.Truncate(24 * time.Hour)
	switch today.Sub(lastDay) {
	case 0:
		// Same day, streak unchanged.
	case 24 * time.Hour:
		t.state.StreakDays++
	default:
		t.state.StreakDays = 1
	}
}

func clampScale(v float64) float64 {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

// Depth returns the relationship depth label derived from rapport,
// trust, and accumulated interactions.
func (t *Tracker) Depth() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return depthLocked(t.state)
}

func depthLocked(r Relationship) string {
	avg := (r.Rapport + r.Trust) / 2
	switch {
	case r.TotalInteractions >= 500 && avg >= 8:
		return "companion"
	case r.TotalInteractions >= 200 && avg >= 6.5:
		return "close friend"
	case r.TotalInteractions >= 50 && avg >= 4.5:
		return "friend"
	case r.TotalInteractions >= 10 && avg >= 2.5:
		return "acquaintance"
	default:
		return "stranger"
	}
}

// State returns a copy of the relationship.
func (t *Tracker) State() Relationship {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.state
	s.SharedMoments = append([]string(nil), t.state.SharedMoments...)
	s.Milestones = append([]string(nil), t.state.Milestones...)
	return s
}

// Save writes relationship state atomically.
func (t *Tracker) Save() error {
	if t.statePath == "" {
		return nil
	}
	t.mu.RLock()
	data, err := json.MarshalIndent(t.state, "", "  ")
	t.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal relationship: %w", err)
	}
	tmp := t.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write relationship: %w", err)
	}
	if err := os.Rename(tmp, t.statePath); err != nil {
		return fmt.Errorf("replace relationship: %w", err)
	}
	return nil
}

// Load reads persisted relationship state. Missing file keeps the
// fresh defaults; corrupt state is backed up and reset.
func (t *Tracker) Load() error {
	if t.statePath == "" {
		return nil
	}
	data, err := os.ReadFile(t.statePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read relationship: %w", err)
	}

	var r Relationship
	if err := json.Unmarshal(data, &r); err != nil || r.Rapport < 0 || r.Trust < 0 {
		t.logger.Warn("relationship state corrupt, starting over", "path", t.statePath, "error", err)
		if bakErr := paths.BackupCorrupt(t.statePath); bakErr != nil {
			return fmt.Errorf("backup corrupt relationship: %w", bakErr)
		}
		return nil
	}
	if r.Rapport == 0 {
		r.Rapport = 1
	}
	if r.Trust == 0 {
		r.Trust = 1
	}

	t.mu.Lock()
	t.state = r
	t.mu.Unlock()
	return nil
}

// DetectSignals derives quality signals from the raw exchange text.
func DetectSignals(userMessage string, surpriseOccurred bool) QualitySignals {
	lower := strings.ToLower(userMessage)
	sig := QualitySignals{
		SurpriseOccurred: surpriseOccurred,
		LongExchange:     len(strings.Fields(userMessage)) > 15,
	}
	for _, w := range []string{"thank", "appreciate", "grateful", "you're the best"} {
		if strings.Contains(lower, w) {
			sig.UserExpressedThanks = true
			break
		}
	}
	for _, w := range []string{"i feel", "i felt", "my family", "my wife", "my husband", "my partner", "honestly", "to be honest", "i've never told"} {
		if strings.Contains(lower, w) {
			sig.UserSharedPersonal = true
			break
		}
	}
	for _, w := range []string{"shut up", "useless", "you're stupid", "hate you", "worthless"} {
		if strings.Contains(lower, w) {
			sig.UserExpressedHostility = true
			break
		}
	}
	return sig
}
