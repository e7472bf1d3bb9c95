// Package queue holds messages the agent wants to deliver to the user
// when they next engage. Messages drain in priority order, FIFO within
// a priority, so urgent observations outrank idle musings without
// reordering either.
package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emberhearth/ember/internal/events"
)

// Priority orders message delivery.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// String returns the priority label.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// maxPerPriority bounds each priority lane; the oldest message in a
// full lane is dropped to admit a new one.
const maxPerPriority = 50

// Message is one queued outbound message.
type Message struct {
	ID        string    `json:"id"`
	Priority  Priority  `json:"priority"`
	Content   string    `json:"content"`
	Source    string    `json:"source"` // which subsystem queued it
	CreatedAt time.Time `json:"created_at"`
}

// Queue is a priority message queue. Safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	lanes [3][]Message

	bus     *events.Bus
	nowFunc func() time.Time
}

// New creates a queue. bus may be nil.
func New(bus *events.Bus) *Queue {
	return &Queue{bus: bus, nowFunc: time.Now}
}

// SetNowFunc overrides the clock for tests.
func (q *Queue) SetNowFunc(f func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nowFunc = f
}

// Enqueue adds a message. Empty content is ignored.
func (q *Queue) Enqueue(priority Priority, source, content string) {
	if content == "" {
		return
	}
	if priority < PriorityLow || priority > PriorityHigh {
		priority = PriorityLow
	}

	id, _ := uuid.NewV7()
	msg := Message{
		ID:        id.String(),
		Priority:  priority,
		Content:   content,
		Source:    source,
		CreatedAt: q.nowFunc(),
	}

	q.mu.Lock()
	lane := q.lanes[priority]
	if len(lane) >= maxPerPriority {
		lane = lane[1:]
	}
	q.lanes[priority] = append(lane, msg)
	q.mu.Unlock()

	q.bus.Publish(events.Event{
		Source: events.SourceAgent,
		Kind:   events.KindMessageQueued,
		Data:   map[string]any{
			"priority": priority.String(),
			"source":   source,
		},
	})
}

// Dequeue removes and returns the next message: highest priority
// first, oldest first within a priority. ok is false when empty.
func (q *Queue) Dequeue() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for p := PriorityHigh; p >= PriorityLow; p-- {
		if len(q.lanes[p]) > 0 {
			msg := q.lanes[p][0]
			q.lanes[p] = q.lanes[p][1:]
			return msg, true
		}
	}
	return Message{}, false
}

// Drain removes and returns up to n messages in delivery order.
func (q *Queue) Drain(n int) []Message {
	if n <= 0 {
		return nil
	}
	var out []Message
	for len(out) < n {
		msg, ok := q.Dequeue()
		if !ok {
			break
		}
		out = append(out, msg)
	}
	return out
}

// Len returns the total queued message count.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes[0]) + len(q.lanes[1]) + len(q.lanes[2])
}

// Peek returns the next message without removing it.
func (q *Queue) Peek() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for p := PriorityHigh; p >= PriorityLow; p-- {
		if len(q.lanes[p]) > 0 {
			return q.lanes[p][0], true
		}
	}
	return Message{}, false
}
