// Package llm provides LLM provider implementations behind a single
// narrow contract: prompt in, text out, with optional streaming and
// vision input. Transient provider failures surface as errors; the
// orchestrator treats a failed generation as "no text" and falls back.
package llm

import (
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Request carries one generation request to a provider.
type Request struct {
	// Prompt is the user-role content.
	Prompt string
	// System is the assembled system prompt. Empty omits the field.
	System string
	// Temperature controls sampling. Zero means provider default.
	Temperature float64
	// MaxTokens bounds the response length. Zero means provider default.
	MaxTokens int
	// Images holds raw image bytes for vision-capable models.
	Images [][]byte
}

// Response is the unified result from any provider. All fields use
// proper Go types — wire format conversion happens at provider
// boundaries (ollama.go, anthropic.go).
type Response struct {
	Text      string
	Model     string
	CreatedAt time.Time

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int

	// Timing (populated when available)
	TotalDuration time.Duration
}

// StreamCallback receives incremental text tokens during streaming
// generation.
type StreamCallback func(token string)
