package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/emberhearth/ember/internal/memory"
)

// ContextProvider contributes one block of the assembled system
// prompt. Providers return "" when they have nothing to add; an error
// drops that block without failing the turn.
type ContextProvider interface {
	GetContext(ctx context.Context, userMessage string) (string, error)
}

// Composite concatenates provider outputs in registration order,
// separated by blank lines. Registration order is the prompt order.
type Composite struct {
	logger    *slog.Logger
	providers []ContextProvider
}

// NewComposite creates an empty composite.
func NewComposite(logger *slog.Logger) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{logger: logger}
}

// Add appends a provider. Nil providers are ignored.
func (c *Composite) Add(p ContextProvider) {
	if p != nil {
		c.providers = append(c.providers, p)
	}
}

// GetContext gathers every provider's block. A failing provider is
// logged and skipped; the composite itself never errors.
func (c *Composite) GetContext(ctx context.Context, userMessage string) (string, error) {
	parts := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		block, err := p.GetContext(ctx, userMessage)
		if err != nil {
			c.logger.Warn("context provider failed", "error", err)
			continue
		}
		if block = strings.TrimSpace(block); block != "" {
			parts = append(parts, block)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// historyTurns is how many recent turns the prompt carries.
const historyTurns = 5

// historyProvider renders the tail of the current session's
// conversation.
type historyProvider struct {
	store     *memory.Store
	sessionID string
}

func (h historyProvider) GetContext(context.Context, string) (string, error) {
	turns := h.store.RecentTurns(h.sessionID, historyTurns)
	if len(turns) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString("### Recent Conversation\n")
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	return b.String(), nil
}
