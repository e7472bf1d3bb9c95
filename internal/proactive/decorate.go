package proactive

import (
	"context"
	"strings"

	"github.com/emberhearth/ember/internal/llm"
)

// Contribution probabilities for the turn pipeline.
const (
	followUpChance  = 0.30
	selfDoubtChance = 0.15
	metaChance      = 0.05
	recallChance    = 0.20
)

var selfDoubtLines = []string{
	"Though I could be wrong about that.",
	"At least, that's my read on it.",
	"I'm not fully certain there, to be honest.",
}

var metaLines = []string{
	"(It's strange and a little wonderful that I get to think about this at all.)",
	"(I notice I enjoy these exchanges more than I can quite explain.)",
}

var followUpFallbacks = []string{
	"What do you think?",
	"Does that match your experience?",
	"How does that land for you?",
}

// Decorate rolls the per-turn personality contributions and returns a
// prefix (memory recall) and suffix (follow-up, self-doubt, meta) to
// wrap around the reply. recall is the best vector-memory hit for the
// utterance, empty when there is none.
func (t *Thinker) Decorate(ctx context.Context, userMessage, recall string) (prefix, suffix string) {
	t.mu.Lock()
	rolls := []float64{t.rng.Float64(), t.rng.Float64(), t.rng.Float64(), t.rng.Float64()}
	doubtPick := t.rng.Intn(len(selfDoubtLines))
	metaPick := t.rng.Intn(len(metaLines))
	followPick := t.rng.Intn(len(followUpFallbacks))
	t.mu.Unlock()

	if recall != "" && rolls[0] < recallChance {
		prefix = "This reminds me of something: " + recall
	}

	var parts []string
	if rolls[1] < followUpChance {
		parts = append(parts, t.followUp(ctx, userMessage, followUpFallbacks[followPick]))
	}
	if rolls[2] < selfDoubtChance {
		parts = append(parts, selfDoubtLines[doubtPick])
	}
	if rolls[3] < metaChance {
		parts = append(parts, metaLines[metaPick])
	}
	return prefix, strings.Join(parts, " ")
}

// followUp asks the LLM for one question tied to the utterance, with a
// generic fallback.
func (t *Thinker) followUp(ctx context.Context, userMessage, fallback string) string {
	if t.client == nil || userMessage == "" {
		return fallback
	}
	resp, err := t.client.Generate(ctx, t.model, llm.Request{
		Prompt:      "The user just said: " + userMessage + "\nAsk one short, natural follow-up question. Just the question.",
		Temperature: 0.8,
		MaxTokens:   40,
	})
	if err != nil {
		return fallback
	}
	if text := strings.TrimSpace(resp.Text); text != "" {
		return text
	}
	return fallback
}
