package knowledge

import (
	"context"
	"fmt"
	"strings"
)

// maxContextTriples bounds how much of the graph reaches the prompt.
const maxContextTriples = 12

// GetContext implements the context provider interface. It renders
// the triples most relevant to the user's message, falling back to
// the highest-confidence knowledge about the user.
func (g *Graph) GetContext(ctx context.Context, userMessage string) (string, error) {
	seen := make(map[string]bool)
	var selected []Triple

	for _, word := range strings.Fields(strings.ToLower(userMessage)) {
		word = strings.Trim(word, ".,!?;:'\"")
		if len(word) < 3 {
			continue
		}
		for _, t := range g.Connections(word) {
			key := tripleKey(t.Subject, t.Relation, t.Object)
			if !seen[key] {
				seen[key] = true
				selected = append(selected, t)
			}
		}
	}

	for _, t := range g.Connections("user") {
		if len(selected) >= maxContextTriples {
			break
		}
		key := tripleKey(t.Subject, t.Relation, t.Object)
		if !seen[key] {
			seen[key] = true
			selected = append(selected, t)
		}
	}

	if len(selected) == 0 {
		return "", nil
	}
	if len(selected) > maxContextTriples {
		selected = selected[:maxContextTriples]
	}

	var b strings.Builder
	b.WriteString("### Known Facts\n")
	for _, t := range selected {
		fmt.Fprintf(&b, "- %s %s %s\n", t.Subject, strings.ReplaceAll(t.Relation, "_", " "), t.Object)
	}
	return b.String(), nil
}
