// Package events provides a publish/subscribe event bus for operational
// observability. Events flow from components (turn pipeline, autonomous
// loop, safety gate, multimodal bridge) to subscribers (WebSocket
// handler, future metrics collector). The bus is nil-safe: calling
// Publish on a nil *Bus is a no-op, so components do not need guard
// checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceAgent identifies events from the turn pipeline.
	SourceAgent = "agent"
	// SourceAffect identifies events from the emotion engine.
	SourceAffect = "affect"
	// SourceAutonomy identifies events from the autonomous life loop.
	SourceAutonomy = "autonomy"
	// SourceSafety identifies events from the command safety gate.
	SourceSafety = "safety"
	// SourceBridge identifies events from the multimodal ingest bridge.
	SourceBridge = "bridge"
	// SourceScheduler identifies events from the background scheduler.
	SourceScheduler = "scheduler"
	// SourceProactive identifies events from proactive thought generation.
	SourceProactive = "proactive"
)

// Kind constants describe the type of event within a source.
const (
	// KindTurnStart signals an utterance entered the pipeline.
	// Data: turn_id, utterance_len.
	KindTurnStart = "turn_start"
	// KindTurnComplete signals a reply left the pipeline.
	// Data: turn_id, stage, reply_len, elapsed_ms.
	KindTurnComplete = "turn_complete"
	// KindLLMCall signals the start of an LLM call.
	// Data: turn_id, model, prompt_len.
	KindLLMCall = "llm_call"
	// KindLLMResponse signals completion of an LLM call.
	// Data: turn_id, model, reply_len, elapsed_ms.
	KindLLMResponse = "llm_response"

	// KindEmotionShift signals the dominant emotion changed.
	// Data: emotion, intensity, cause.
	KindEmotionShift = "emotion_shift"
	// KindSurprise signals a surprise event fired.
	// Data: category, magnitude, expected, actual.
	KindSurprise = "surprise"
	// KindSceneEvent signals a visual scene produced an emotion.
	// Data: camera, emotion, intensity, sentiment.
	KindSceneEvent = "scene_event"

	// KindCommandExecuted signals the safety gate ran a command.
	// Data: command, returncode, elapsed_ms.
	KindCommandExecuted = "command_executed"
	// KindCommandBlocked signals the safety gate refused a command.
	// Data: command, level.
	KindCommandBlocked = "command_blocked"

	// KindCycleStart signals an autonomous cycle began.
	// Data: cycle, emotion, action.
	KindCycleStart = "cycle_start"
	// KindCycleComplete signals an autonomous cycle finished.
	// Data: cycle, action, ok, elapsed_ms.
	KindCycleComplete = "cycle_complete"
	// KindMessageQueued signals an outbound message was enqueued.
	// Data: priority, text_len.
	KindMessageQueued = "message_queued"

	// KindThought signals a proactive thought was generated.
	// Data: category.
	KindThought = "thought"

	// KindTaskFired signals a scheduled background task began.
	// Data: task.
	KindTaskFired = "task_fired"
	// KindTaskComplete signals a scheduled background task finished.
	// Data: task, ok, elapsed_ms.
	KindTaskComplete = "task_complete"

	// KindSleep signals the agent entered sleep.
	KindSleep = "sleep"
	// KindWake signals the agent woke from sleep.
	// Data: slept_seconds.
	KindWake = "wake"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs. This allows
	// Unsubscribe to accept <-chan Event (the caller's view) without
	// an illegal type conversion.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full — drop the event rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
