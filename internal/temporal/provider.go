package temporal

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// GetContext implements the context provider interface. It renders the
// agent's temporal self-awareness for the system prompt.
func (t *Tracker) GetContext(ctx context.Context, userMessage string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.nowFunc().In(t.loc)
	var b strings.Builder
	b.WriteString("### Temporal Awareness\n")
	fmt.Fprintf(&b, "Current time: %s\n", now.Format("Monday, January 2 2006, 15:04 MST"))

	if !t.state.FirstActivation.IsZero() {
		fmt.Fprintf(&b, "First activation: %s (%s ago)\n",
			t.state.FirstActivation.In(t.loc).Format("January 2 2006"),
			humanDuration(now.Sub(t.state.FirstActivation)))
	}
	fmt.Fprintf(&b, "Session %d, %d total interactions, %s of accumulated uptime\n",
		t.state.TotalSessions,
		t.state.TotalInteractions,
		humanDuration(time.Duration(t.state.TotalUptimeSeconds*float64(time.Second))))

	if t.open {
		fmt.Fprintf(&b, "This session started %s ago\n",
			humanDuration(now.Sub(t.session.StartedAt)))
	}

	if n := len(t.state.Milestones); n > 0 {
		last := t.state.Milestones[n-1]
		fmt.Fprintf(&b, "Most recent milestone: %s\n", last.Detail)
	}
	return b.String(), nil
}

// WakeupContext renders the reflection the agent voices after coming
// back from an absence. Empty when the absence is under a minute.
func (t *Tracker) WakeupContext(absence time.Duration) string {
	if absence < time.Minute {
		return ""
	}
	switch {
	case absence < time.Hour:
		return fmt.Sprintf("I was away for about %s. Picking right back up.", humanDuration(absence))
	case absence < 24*time.Hour:
		return fmt.Sprintf("I've been gone %s. It feels like a gap in my day.", humanDuration(absence))
	case absence < 7*24*time.Hour:
		return fmt.Sprintf("It's been %s since we last talked. A lot may have changed.", humanDuration(absence))
	default:
		return fmt.Sprintf("I was dormant for %s. That is a long silence, and I notice it.", humanDuration(absence))
	}
}

// humanDuration renders a duration in coarse human terms.
func humanDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	case d < 24*time.Hour:
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m == 0 {
			return fmt.Sprintf("%d hours", h)
		}
		return fmt.Sprintf("%d hours %d minutes", h, m)
	default:
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		if h == 0 {
			return fmt.Sprintf("%d days", days)
		}
		return fmt.Sprintf("%d days %d hours", days, h)
	}
}
