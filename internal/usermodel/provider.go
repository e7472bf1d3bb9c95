package usermodel

import (
	"context"
	"fmt"
	"strings"
)

// GetContext implements the context provider interface. Only
// preferences with meaningful confidence reach the prompt.
func (m *Model) GetContext(ctx context.Context, userMessage string) (string, error) {
	m.mu.RLock()
	var confident []Preference
	for _, p := range m.preferences {
		if p.Confidence >= 0.6 {
			confident = append(confident, p)
		}
	}
	m.mu.RUnlock()

	topics := m.TopTopics(5)
	peak := m.PeakHour()
	if len(confident) == 0 && len(topics) == 0 && peak < 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("### What I Know About You\n")
	for _, p := range confident {
		fmt.Fprintf(&b, "- %s: %s\n", strings.ReplaceAll(p.Key, "_", " "), p.Value)
	}
	if len(topics) > 0 {
		fmt.Fprintf(&b, "Recurring topics: %s\n", strings.Join(topics, ", "))
	}
	if peak >= 0 {
		fmt.Fprintf(&b, "Usually active around %02d:00\n", peak)
	}
	return b.String(), nil
}
