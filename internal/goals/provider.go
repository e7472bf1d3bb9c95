package goals

import (
	"context"
	"fmt"
	"strings"
)

// maxContextGoals bounds how many goals appear in the prompt.
const maxContextGoals = 5

// GetContext renders active goals for the system prompt.
func (t *Tracker) GetContext(ctx context.Context, userMessage string) (string, error) {
	active := t.Active()
	if len(active) == 0 {
		return "", nil
	}
	if len(active) > maxContextGoals {
		active = active[:maxContextGoals]
	}

	var b strings.Builder
	b.WriteString("### My Goals\n")
	for _, g := range active {
		fmt.Fprintf(&b, "- %s (%.0f%% along)", g.Title, g.Progress*100)
		if g.Motivation != "" {
			fmt.Fprintf(&b, " because %s", g.Motivation)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
