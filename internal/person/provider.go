package person

import (
	"context"
	"fmt"
	"strings"
)

// GetContext implements the context provider interface. It renders the
// relationship state for the system prompt.
func (t *Tracker) GetContext(ctx context.Context, userMessage string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var b strings.Builder
	b.WriteString("### Relationship\n")
	fmt.Fprintf(&b, "Depth: %s (rapport %.1f/10, trust %.1f/10)\n",
		depthLocked(t.state), t.state.Rapport, t.state.Trust)
	fmt.Fprintf(&b, "%d interactions together, %d of them meaningful", t.state.TotalInteractions, t.state.QualityInteractions)
	if t.state.StreakDays > 1 {
		fmt.Fprintf(&b, ", %d day streak", t.state.StreakDays)
	}
	b.WriteString("\n")

	if n := len(t.state.Milestones); n > 0 {
		fmt.Fprintf(&b, "Latest milestone: %s\n", t.state.Milestones[n-1])
	}

	if n := len(t.state.SharedMoments); n > 0 {
		b.WriteString("Recent shared moments:\n")
		start := n - 3
		if start < 0 {
			start = 0
		}
		for _, m := range t.state.SharedMoments[start:] {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}
	return b.String(), nil
}
