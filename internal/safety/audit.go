package safety

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

// auditOutputCap bounds the stdout/stderr excerpts kept per entry.
// The full output goes to the caller; the audit keeps enough to show
// what happened.
const auditOutputCap = 500

// AuditEntry records one gate decision, executed or refused.
type AuditEntry struct {
	Command        string         `json:"command"`
	Classification Classification `json:"classification"`
	Reason         string         `json:"reason,omitempty"`
	Executed       bool           `json:"executed"`
	Success        bool           `json:"success"`
	Approved       bool           `json:"approved,omitempty"`
	Stdout         string         `json:"stdout,omitempty"`
	Stderr         string         `json:"stderr,omitempty"`
	ExitCode       int            `json:"exit_code,omitempty"`
	TimedOut       bool           `json:"timed_out,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// clipOutput trims captured output to the audit excerpt bound.
func clipOutput(s string) string {
	if len(s) <= auditOutputCap {
		return s
	}
	return s[:auditOutputCap]
}

// Audit is the bounded JSON audit log.
type Audit struct {
	mu      sync.Mutex
	entries []AuditEntry

	maxEntries int
	statePath  string
	logger     *slog.Logger
	nowFunc    func() time.Time
}

// NewAudit creates an audit log persisting to statePath, keeping at
// most maxEntries records.
func NewAudit(statePath string, maxEntries int, logger *slog.Logger) *Audit {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Audit{
		maxEntries: maxEntries,
		statePath:  statePath,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

// SetNowFunc overrides the clock for tests.
func (a *Audit) SetNowFunc(f func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nowFunc = f
}

// Record appends an entry, trims to the bound, and persists.
func (a *Audit) Record(entry AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = a.nowFunc().UTC()
	}
	a.entries = append(a.entries, entry)
	if len(a.entries) > a.maxEntries {
		a.entries = a.entries[len(a.entries)-a.maxEntries:]
	}
	if err := a.saveLocked(); err != nil {
		a.logger.Warn("audit log save failed", "error", err)
	}
}

// Entries returns a copy of the audit log, oldest first.
func (a *Audit) Entries() []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AuditEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Stats summarizes gate activity.
func (a *Audit) Stats() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()

	byClass := make(map[Classification]int)
	executed, blocked := 0, 0
	for _, e := range a.entries {
		byClass[e.Classification]++
		if e.Executed {
			executed++
		} else {
			blocked++
		}
	}
	return map[string]any{
		"total":          len(a.entries),
		"executed":       executed,
		"blocked":        blocked,
		"safe":           byClass[ClassSafe],
		"needs_approval": byClass[ClassNeedsApproval],
		"paid_api":       byClass[ClassPaidAPI],
	}
}

func (a *Audit) saveLocked() error {
	if a.statePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(a.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal audit log: %w", err)
	}
	tmp := a.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	if err := os.Rename(tmp, a.statePath); err != nil {
		return fmt.Errorf("replace audit log: %w", err)
	}
	return nil
}

// Load reads a persisted audit log. Missing or corrupt files start
// empty; the audit log is evidence, not critical state.
func (a *Audit) Load() error {
	if a.statePath == "" {
		return nil
	}
	data, err := os.ReadFile(a.statePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	var entries []AuditEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		a.logger.Warn("audit log corrupt, starting empty", "path", a.statePath, "error", err)
		if bakErr := paths.BackupCorrupt(a.statePath); bakErr != nil {
			return fmt.Errorf("backup corrupt audit log: %w", bakErr)
		}
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(entries) > a.maxEntries {
		entries = entries[len(entries)-a.maxEntries:]
	}
	a.entries = entries
	return nil
}
