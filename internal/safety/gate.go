package safety

import (
	"context"
	"fmt"

	"github.com/emberhearth/ember/internal/events"
)

// ErrNeedsApproval is returned when a command requires explicit
// approval before it may run.
var ErrNeedsApproval = fmt.Errorf("command needs approval")

// ErrPaidAPI is returned when a command would hit a paid API.
var ErrPaidAPI = fmt.Errorf("command would call a paid API")

// SetBus wires the event bus for command telemetry. A nil bus is
// fine, events are simply not published.
func (g *Gate) SetBus(bus *events.Bus) {
	g.bus = bus
}

// Execute classifies the command and runs it if the verdict is safe.
// reason is the caller's stated purpose and lands in the audit log.
// For needs_approval and paid_api verdicts nothing runs and the typed
// error identifies what the caller must obtain; pass approved=true
// once the user has consented.
func (g *Gate) Execute(ctx context.Context, command, reason string, timeoutSec int, approved bool) (*Result, error) {
	class := g.Classify(command)

	if class != ClassSafe && !approved {
		g.audit.Record(AuditEntry{
			Command:        command,
			Classification: class,
			Reason:         reason,
			Executed:       false,
			Success:        false,
		})
		g.bus.Publish(events.Event{
			Source: events.SourceSafety,
			Kind:   events.KindCommandBlocked,
			Data:   map[string]any{
				"command":        command,
				"classification": string(class),
			},
		})
		if class == ClassPaidAPI {
			return nil, fmt.Errorf("%w: %s", ErrPaidAPI, command)
		}
		return nil, fmt.Errorf("%w: %s", ErrNeedsApproval, command)
	}

	result := g.executor.Run(ctx, command, timeoutSec)

	g.audit.Record(AuditEntry{
		Command:        command,
		Classification: class,
		Reason:         reason,
		Executed:       true,
		Success:        result.ExitCode == 0 && !result.TimedOut,
		Approved:       approved && class != ClassSafe,
		Stdout:         clipOutput(result.Stdout),
		Stderr:         clipOutput(result.Stderr),
		ExitCode:       result.ExitCode,
		TimedOut:       result.TimedOut,
	})
	g.bus.Publish(events.Event{
		Source: events.SourceSafety,
		Kind:   events.KindCommandExecuted,
		Data:   map[string]any{
			"command":        command,
			"classification": string(class),
			"exit_code":      result.ExitCode,
		},
	})
	return result, nil
}

// Stats exposes audit statistics.
func (g *Gate) Stats() map[string]any {
	return g.audit.Stats()
}
