// Package scheduler runs the periodic background tasks: health
// checks, old-session pruning, snapshot persistence. Each task has
// its own interval and timeout; a failing task is logged and retried
// on its next tick, never terminating the scheduler.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emberhearth/ember/internal/events"
)

// TaskFunc is one periodic unit of work. It must respect ctx; the
// scheduler cancels it at the task's timeout.
type TaskFunc func(ctx context.Context) error

// defaultTaskTimeout bounds a single invocation when the task does
// not declare its own.
const defaultTaskTimeout = time.Minute

// Task is a registered periodic job.
type Task struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      TaskFunc
}

// Scheduler runs registered tasks on their intervals.
type Scheduler struct {
	logger *slog.Logger
	bus    *events.Bus

	mu      sync.Mutex
	tasks   []Task
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// lastRun and lastErr track per-task health for the status API.
	lastRun map[string]time.Time
	lastErr map[string]string
}

// New creates a scheduler. bus may be nil.
func New(logger *slog.Logger, bus *events.Bus) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger:  logger,
		bus:     bus,
		stopCh:  make(chan struct{}),
		lastRun: make(map[string]time.Time),
		lastErr: make(map[string]string),
	}
}

// Register adds a task. Must be called before Start.
func (s *Scheduler) Register(t Task) error {
	if t.Name == "" || t.Run == nil {
		return fmt.Errorf("task needs a name and a function")
	}
	if t.Interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", t.Name)
	}
	if t.Timeout <= 0 {
		t.Timeout = defaultTaskTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("task %s: scheduler already started", t.Name)
	}
	s.tasks = append(s.tasks, t)
	return nil
}

// Start launches one goroutine per task. Idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	tasks := s.tasks
	s.mu.Unlock()

	for _, t := range tasks {
		task := t
		s.wg.Add(1)
		go s.loop(ctx, task)
	}
	s.logger.Info("scheduler started", "tasks", len(tasks))
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runOnce(ctx, t)
		}
	}
}

// runOnce executes a task with its timeout and records the outcome.
func (s *Scheduler) runOnce(ctx context.Context, t Task) {
	s.bus.Publish(events.Event{
		Source: events.SourceScheduler,
		Kind:   events.KindTaskFired,
		Data:   map[string]any{"task": t.Name},
	})

	taskCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	start := time.Now()
	err := t.Run(taskCtx)
	elapsed := time.Since(start)

	s.mu.Lock()
	s.lastRun[t.Name] = start
	if err != nil {
		s.lastErr[t.Name] = err.Error()
	} else {
		delete(s.lastErr, t.Name)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("background task failed", "task", t.Name, "error", err, "elapsed", elapsed)
	} else {
		s.logger.Debug("background task done", "task", t.Name, "elapsed", elapsed)
	}

	s.bus.Publish(events.Event{
		Source: events.SourceScheduler,
		Kind:   events.KindTaskComplete,
		Data:   map[string]any{"task": t.Name, "ok": err == nil},
	})
}

// Stop halts all task loops and waits for in-flight invocations.
// Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Status reports each task's last run time and last error, keyed by
// task name.
func (s *Scheduler) Status() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]any, len(s.tasks))
	for _, t := range s.tasks {
		entry := map[string]any{"interval": t.Interval.String()}
		if last, ok := s.lastRun[t.Name]; ok {
			entry["last_run"] = last
		}
		if msg, ok := s.lastErr[t.Name]; ok {
			entry["last_error"] = msg
		}
		out[t.Name] = entry
	}
	return out
}
