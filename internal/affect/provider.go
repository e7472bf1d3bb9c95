package affect

import (
	"context"
	"fmt"
	"strings"
)

// GetContext returns an emotional-state block for system prompt
// injection. It satisfies the agent.ContextProvider interface.
func (e *Engine) GetContext(_ context.Context, _ string) (string, error) {
	active := e.Active()
	mood := e.Mood()

	var sb strings.Builder
	sb.WriteString("### Emotional State\n\n")
	fmt.Fprintf(&sb, "Mood: %s (%.2f)\n", mood.Dominant, mood.Intensity)

	if len(active) == 0 {
		sb.WriteString("No strong active emotions right now.\n")
		return sb.String(), nil
	}

	sb.WriteString("Active emotions:\n")
	for _, ae := range active {
		echo := ""
		if ae.FadedEcho {
			echo = ", a faded echo from before the last shutdown"
		}
		fmt.Fprintf(&sb, "- %s (%.2f) because: %s%s\n", ae.Emotion, ae.Intensity, ae.Cause, echo)
	}
	return sb.String(), nil
}
