package agent

import (
	"context"
	"time"
)

// deliverPeriod is how often the idle loop checks the outbox.
const deliverPeriod = 2 * time.Second

// deliverBatch bounds messages delivered per check so a full queue
// does not flood the user.
const deliverBatch = 3

// drainDeadline bounds the shutdown queue drain.
const drainDeadline = 3 * time.Second

// Run delivers queued outbound messages while the user is idle.
// Blocks until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) {
	ticker := time.NewTicker(deliverPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.deliverQueued()
		}
	}
}

// deliverQueued hands pending messages to the deliver callback. Held
// back while a turn is in flight, while sleeping, and while the user
// is mid-conversation.
func (a *Agent) deliverQueued() {
	if a.outbox == nil || a.closed.Load() || a.processing.Load() || a.Sleeping() {
		return
	}
	if a.presence != nil && !a.presence.UserIdle() {
		return
	}
	for _, m := range a.outbox.Drain(deliverBatch) {
		a.deliver(m)
	}
}

// Shutdown stops accepting turns, drains the outbox with a short
// deadline, records the session end, and persists every store. Turns
// stop first so nothing writes behind the snapshots.
func (a *Agent) Shutdown(ctx context.Context) {
	if !a.closed.CompareAndSwap(false, true) {
		return
	}
	a.logger.Info("agent shutting down")

	if a.outbox != nil {
		deadline := time.Now().Add(drainDeadline)
		for a.outbox.Len() > 0 && time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				a.outbox.Drain(a.outbox.Len())
			default:
			}
			for _, m := range a.outbox.Drain(deliverBatch) {
				a.deliver(m)
			}
		}
	}

	if a.temporal != nil {
		if err := a.temporal.OnShutdown(); err != nil {
			a.logger.Warn("temporal shutdown failed", "error", err)
		}
	}
	if a.emotions != nil {
		if err := a.emotions.Save(); err != nil {
			a.logger.Warn("emotional snapshot failed", "error", err)
		}
	}
	if a.graph != nil {
		if err := a.graph.Save(); err != nil {
			a.logger.Warn("graph persist failed", "error", err)
		}
	}
	if a.user != nil {
		if err := a.user.Save(); err != nil {
			a.logger.Warn("user model persist failed", "error", err)
		}
	}
	if a.relationship != nil {
		if err := a.relationship.Save(); err != nil {
			a.logger.Warn("relationship persist failed", "error", err)
		}
	}
	if a.goals != nil {
		if err := a.goals.Save(); err != nil {
			a.logger.Warn("goals persist failed", "error", err)
		}
	}
	a.logger.Info("agent shut down")
}
