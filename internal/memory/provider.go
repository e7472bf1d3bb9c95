package memory

import (
	"context"
	"fmt"
	"strings"
)

// GetContext implements the context provider interface. It surfaces
// the most important persistent memories plus semantic recall against
// the incoming user message.
func (s *Store) GetContext(ctx context.Context, userMessage string) (string, error) {
	memories := s.Recall("", 8)
	hits := s.SemanticSearch(ctx, userMessage, 3)
	if len(memories) == 0 && len(hits) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("### Memories\n")
	for _, m := range memories {
		fmt.Fprintf(&b, "- [%s] %s\n", m.Category, m.Content)
	}
	if len(hits) > 0 {
		b.WriteString("Relevant to this message:\n")
		for _, h := range hits {
			fmt.Fprintf(&b, "- %s\n", h.Content)
		}
	}
	return b.String(), nil
}
