// Package memory provides layered persistence for the agent's lived
// experience: session transcripts, persistent memories that survive
// restarts, emotional memories tied to notable moments, and instance
// registration so concurrent processes notice each other. Backed by a
// single SQLite database.
package memory

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed memory store.
type Store struct {
	db         *sql.DB
	maxSession int
	logger     *slog.Logger
	nowFunc    func() time.Time
	instanceID string
	embedder   Embedder
}

// Turn is one message in the session transcript.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // user, assistant, system
	Content   string    `json:"content"`
	Emotion   string    `json:"emotion,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Persistent is a long-lived memory surviving restarts.
type Persistent struct {
	ID           string    `json:"id"`
	Category     string    `json:"category"`
	Content      string    `json:"content"`
	Importance   float64   `json:"importance"`
	AccessCount  int       `json:"access_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
}

// EmotionalMemory ties an emotion to the moment that caused it.
type EmotionalMemory struct {
	ID        string    `json:"id"`
	Emotion   string    `json:"emotion"`
	Intensity float64   `json:"intensity"`
	Trigger   string    `json:"trigger"`
	Context   string    `json:"context,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Instance is a registered running process.
type Instance struct {
	ID            string    `json:"id"`
	PID           int       `json:"pid"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Open opens or creates the memory database at dbPath. maxSession
// bounds how many session turns survive pruning.
func Open(dbPath string, maxSession int, logger *slog.Logger) (*Store, error) {
	if maxSession <= 0 {
		maxSession = 200
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	id, _ := uuid.NewV7()
	s := &Store{
		db:         db,
		maxSession: maxSession,
		logger:     logger,
		nowFunc:    time.Now,
		instanceID: id.String(),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// SetNowFunc overrides the clock for tests.
func (s *Store) SetNowFunc(f func() time.Time) { s.nowFunc = f }

func (s *Store) migrate() error {
	schema := `
	-- Session transcript, pruned to a bounded tail
	CREATE TABLE IF NOT EXISTS session_memory (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		emotion TEXT DEFAULT '',
		timestamp TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_session_memory_session ON session_memory(session_id, timestamp);

	-- Memories that survive restarts
	CREATE TABLE IF NOT EXISTS persistent_memory (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		content TEXT NOT NULL,
		importance REAL DEFAULT 0.5,
		access_count INTEGER DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		last_accessed TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_persistent_category ON persistent_memory(category);

	-- Emotionally significant moments
	CREATE TABLE IF NOT EXISTS emotional_memory (
		id TEXT PRIMARY KEY,
		emotion TEXT NOT NULL,
		intensity REAL NOT NULL,
		trigger TEXT NOT NULL,
		context TEXT DEFAULT '',
		timestamp TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_emotional_emotion ON emotional_memory(emotion, timestamp);

	-- Running process registry
	CREATE TABLE IF NOT EXISTS active_instances (
		id TEXT PRIMARY KEY,
		pid INTEGER NOT NULL,
		started_at TIMESTAMP NOT NULL,
		last_heartbeat TIMESTAMP NOT NULL
	);

	-- Embedding index over memories
	CREATE TABLE IF NOT EXISTS memory_vectors (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Additive migrations for databases created by earlier versions.
	additive := []string{
		`ALTER TABLE session_memory ADD COLUMN emotion TEXT DEFAULT ''`,
		`ALTER TABLE persistent_memory ADD COLUMN access_count INTEGER DEFAULT 0`,
	}
	for _, stmt := range additive {
		if _, err := s.db.Exec(stmt); err != nil {
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddTurn appends one message to the session transcript.
func (s *Store) AddTurn(sessionID, role, content, emotion string) error {
	id, _ := uuid.NewV7()
	_, err := s.db.Exec(`
		INSERT INTO session_memory (id, session_id, role, content, emotion, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.String(), sessionID, role, content, emotion, s.nowFunc().UTC())
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// RecentTurns returns the newest limit turns of a session, oldest
// first.
func (s *Store) RecentTurns(sessionID string, limit int) []Turn {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, emotion, timestamp
		FROM (
			SELECT id, session_id, role, content, emotion, timestamp
			FROM session_memory
			WHERE session_id = ?
			ORDER BY timestamp DESC
			LIMIT ?
		)
		ORDER BY timestamp ASC
	`, sessionID, limit)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content, &t.Emotion, &t.Timestamp); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	return turns
}

// Remember stores or refreshes a persistent memory. Identical content
// in the same category refreshes importance instead of duplicating.
func (s *Store) Remember(category, content string, importance float64) error {
	if importance < 0 {
		importance = 0
	}
	if importance > 1 {
		importance = 1
	}
	now := s.nowFunc().UTC()

	res, err := s.db.Exec(`
		UPDATE persistent_memory
		SET importance = MAX(importance, ?), last_accessed = ?
		WHERE category = ? AND content = ?
	`, importance, now, category, content)
	if err != nil {
		return fmt.Errorf("refresh memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	id, _ := uuid.NewV7()
	_, err = s.db.Exec(`
		INSERT INTO persistent_memory (id, category, content, importance, created_at, last_accessed)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.String(), category, content, importance, now, now)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// Recall returns persistent memories by descending importance,
// optionally filtered by category. Recalled memories have their access
// count and last_accessed bumped.
func (s *Store) Recall(category string, limit int) []Persistent {
	if limit <= 0 {
		limit = 10
	}

	var rows *sql.Rows
	var err error
	if category != "" {
		rows, err = s.db.Query(`
			SELECT id, category, content, importance, access_count, created_at, last_accessed
			FROM persistent_memory WHERE category = ?
			ORDER BY importance DESC, last_accessed DESC LIMIT ?
		`, category, limit)
	} else {
		rows, err = s.db.Query(`
			SELECT id, category, content, importance, access_count, created_at, last_accessed
			FROM persistent_memory
			ORDER BY importance DESC, last_accessed DESC LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []Persistent
	for rows.Next() {
		var p Persistent
		if err := rows.Scan(&p.ID, &p.Category, &p.Content, &p.Importance,
			&p.AccessCount, &p.CreatedAt, &p.LastAccessed); err != nil {
			continue
		}
		out = append(out, p)
	}
	rows.Close()

	now := s.nowFunc().UTC()
	for _, p := range out {
		_, _ = s.db.Exec(`
			UPDATE persistent_memory
			SET access_count = access_count + 1, last_accessed = ?
			WHERE id = ?
		`, now, p.ID)
	}
	return out
}

// RecordEmotionalMemory stores a notable emotional moment.
func (s *Store) RecordEmotionalMemory(emotion string, intensity float64, trigger, context string) error {
	id, _ := uuid.NewV7()
	_, err := s.db.Exec(`
		INSERT INTO emotional_memory (id, emotion, intensity, trigger, context, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.String(), emotion, intensity, trigger, context, s.nowFunc().UTC())
	if err != nil {
		return fmt.Errorf("insert emotional memory: %w", err)
	}
	return nil
}

// EmotionalEchoes returns past moments that carried the given emotion,
// strongest and most recent first.
func (s *Store) EmotionalEchoes(emotion string, limit int) []EmotionalMemory {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.Query(`
		SELECT id, emotion, intensity, trigger, context, timestamp
		FROM emotional_memory
		WHERE emotion = ?
		ORDER BY intensity DESC, timestamp DESC
		LIMIT ?
	`, emotion, limit)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []EmotionalMemory
	for rows.Next() {
		var m EmotionalMemory
		if err := rows.Scan(&m.ID, &m.Emotion, &m.Intensity, &m.Trigger, &m.Context, &m.Timestamp); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

// RegisterInstance records this process in the instance registry and
// returns any other instances with a recent heartbeat.
func (s *Store) RegisterInstance() ([]Instance, error) {
	now := s.nowFunc().UTC()
	_, err := s.db.Exec(`
		INSERT INTO active_instances (id, pid, started_at, last_heartbeat)
		VALUES (?, ?, ?, ?)
	`, s.instanceID, os.Getpid(), now, now)
	if err != nil {
		return nil, fmt.Errorf("register instance: %w", err)
	}
	return s.liveInstances(now)
}

// Heartbeat refreshes this instance's liveness and sweeps stale rows.
func (s *Store) Heartbeat() error {
	now := s.nowFunc().UTC()
	if _, err := s.db.Exec(`
		UPDATE active_instances SET last_heartbeat = ? WHERE id = ?
	`, now, s.instanceID); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	_, _ = s.db.Exec(`
		DELETE FROM active_instances WHERE last_heartbeat < ?
	`, now.Add(-5*time.Minute))
	return nil
}

// DeregisterInstance removes this process from the registry.
func (s *Store) DeregisterInstance() error {
	_, err := s.db.Exec(`DELETE FROM active_instances WHERE id = ?`, s.instanceID)
	return err
}

func (s *Store) liveInstances(now time.Time) ([]Instance, error) {
	rows, err := s.db.Query(`
		SELECT id, pid, started_at, last_heartbeat
		FROM active_instances
		WHERE id != ? AND last_heartbeat > ?
	`, s.instanceID, now.Add(-5*time.Minute))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Instance
	for rows.Next() {
		var inst Instance
		if err := rows.Scan(&inst.ID, &inst.PID, &inst.StartedAt, &inst.LastHeartbeat); err != nil {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

// Prune trims the session transcript to the retention bound and drops
// low-importance persistent memories that have not been touched in 90
// days. Returns rows removed.
func (s *Store) Prune() (int64, error) {
	var removed int64

	res, err := s.db.Exec(`
		DELETE FROM session_memory WHERE id IN (
			SELECT id FROM session_memory
			ORDER BY timestamp DESC
			LIMIT -1 OFFSET ?
		)
	`, s.maxSession)
	if err != nil {
		return 0, fmt.Errorf("prune session memory: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	cutoff := s.nowFunc().UTC().Add(-90 * 24 * time.Hour)
	res, err = s.db.Exec(`
		DELETE FROM persistent_memory
		WHERE importance < 0.3 AND last_accessed < ?
	`, cutoff)
	if err != nil {
		return removed, fmt.Errorf("prune persistent memory: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	if removed > 0 {
		s.logger.Debug("memory pruned", "rows", removed)
	}
	return removed, nil
}

// Stats returns memory statistics for the status surface.
func (s *Store) Stats() map[string]any {
	var turns, persistent, emotional, vectors int
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM session_memory`).Scan(&turns)
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM persistent_memory`).Scan(&persistent)
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM emotional_memory`).Scan(&emotional)
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM memory_vectors`).Scan(&vectors)

	return map[string]any{
		"session_turns":     turns,
		"persistent":        persistent,
		"emotional":         emotional,
		"vectors":           vectors,
		"session_retention": s.maxSession,
		"storage":           "sqlite",
	}
}
