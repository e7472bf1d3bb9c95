package affect

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"time"

	"github.com/emberhearth/ember/internal/paths"
)

// fadedEchoAge is the offline gap beyond which restored emotions
// become faint echoes rather than live feelings.
const fadedEchoAge = 24 * time.Hour

// fadedEchoCap bounds the intensity of a faded echo.
const fadedEchoCap = 0.3

// Snapshot is the persisted emotional state written on shutdown, on
// the periodic persist task, and when entering sleep.
type Snapshot struct {
	Dominant struct {
		Emotion   string    `json:"emotion"`
		Intensity float64   `json:"intensity"`
		StartedAt time.Time `json:"started_at"`
	} `json:"dominant"`
	ActiveEmotions []ActiveEmotion `json:"active_emotions"`
	Mood           Mood            `json:"mood"`
	SavedAt        time.Time       `json:"saved_at"`
}

// Save writes the current emotional state to the configured state
// file. A no-op when persistence is disabled.
func (e *Engine) Save() error {
	if e.statePath == "" {
		return nil
	}

	e.mu.Lock()
	now := e.nowFunc()
	e.decayLocked(now)
	e.recomputeMoodLocked(now)

	var snap Snapshot
	dom := e.dominantLocked()
	snap.Dominant.Emotion = dom.Emotion
	snap.Dominant.Intensity = dom.Intensity
	snap.Dominant.StartedAt = dom.GeneratedAt
	snap.ActiveEmotions = make([]ActiveEmotion, len(e.active))
	copy(snap.ActiveEmotions, e.active)
	snap.Mood = e.mood
	snap.SavedAt = now
	e.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal emotional snapshot: %w", err)
	}

	tmp := e.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write emotional snapshot: %w", err)
	}
	if err := os.Rename(tmp, e.statePath); err != nil {
		return fmt.Errorf("replace emotional snapshot: %w", err)
	}
	return nil
}

// Restore loads the persisted snapshot, applying offline decay for the
// time spent shut down. A missing file is a fresh start, not an error.
// A corrupt file is renamed to .bak and the engine starts fresh.
func (e *Engine) Restore() error {
	if e.statePath == "" {
		return nil
	}

	data, err := os.ReadFile(e.statePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read emotional snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil || snap.SavedAt.IsZero() {
		e.logger.Warn("emotional snapshot corrupt, starting fresh", "path", e.statePath, "error", err)
		if bakErr := paths.BackupCorrupt(e.statePath); bakErr != nil {
			return fmt.Errorf("backup corrupt snapshot: %w", bakErr)
		}
		return nil
	}

	now := e.nowFunc()
	offline := now.Sub(snap.SavedAt)
	if offline < 0 {
		offline = 0
	}
	echo := offline > fadedEchoAge

	e.mu.Lock()
	defer e.mu.Unlock()

	e.active = e.active[:0]
	for _, ae := range snap.ActiveEmotions {
		intensity := ae.Intensity * math.Pow(0.5, offline.Minutes()/HalfLife(ae.Emotion))
		if echo {
			intensity = math.Min(intensity, fadedEchoCap)
			ae.FadedEcho = true
		}
		if intensity < minIntensity {
			continue
		}
		ae.Intensity = intensity
		ae.GeneratedAt = now
		e.active = append(e.active, ae)
	}
	e.recomputeMoodLocked(now)

	e.logger.Info("emotional state restored",
		"active", len(e.active),
		"offline", offline.Truncate(time.Second),
		"faded_echo", echo,
	)
	return nil
}
