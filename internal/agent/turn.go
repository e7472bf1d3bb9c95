package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/emberhearth/ember/internal/affect"
	"github.com/emberhearth/ember/internal/anticipation"
	"github.com/emberhearth/ember/internal/events"
	"github.com/emberhearth/ember/internal/llm"
	"github.com/emberhearth/ember/internal/multimodal"
	"github.com/emberhearth/ember/internal/person"
	"github.com/emberhearth/ember/internal/prompts"
	"github.com/emberhearth/ember/internal/safety"
)

// chatTemperature is the sampling temperature for conversational
// generation.
const chatTemperature = 0.8

// chatMaxTokens bounds a conversational reply.
const chatMaxTokens = 800

// commandTimeoutSec bounds a system command run for the fallback.
const commandTimeoutSec = 10

// minIndexChars skips vector indexing for utterances too short to
// embed meaningfully.
const minIndexChars = 12

// graphPersistTurns is how often the knowledge graph hits disk.
const graphPersistTurns = 5

// emotionalMemoryFloor is the dominant intensity above which a turn
// leaves an emotional memory.
const emotionalMemoryFloor = 0.6

// echoThreshold is the dominant intensity above which a past emotional
// memory surfaces in the reply.
const echoThreshold = 0.7

// surpriseSpoken is the surprise magnitude above which the agent says
// so out loud.
const surpriseSpoken = 0.5

// anchorQuality marks a turn significant for the relationship.
const anchorQuality = 8.0

// anchorIntensity marks a turn significant by emotional peak.
const anchorIntensity = 0.8

// inferredToneConfidence is how much the text-only tone guess is
// trusted compared to a real audio classifier.
const inferredToneConfidence = 0.6

var (
	sleepPattern = regexp.MustCompile(`(?i)\b(go to sleep|good ?night|sleep now|time for bed)\b`)
	wakePattern  = regexp.MustCompile(`(?i)\b(wake up|good morning|rise and shine|are you (awake|there))\b`)

	// commandTriggers spot questions about the machine that a shell
	// command can answer.
	commandTriggers = regexp.MustCompile(`(?i)\b(what'?s (using|eating)|check (the )?(disk|memory|cpu)|disk (space|usage)|memory usage|cpu (usage|load)|load average|how much (ram|memory|disk|space)|uptime|open ports?)\b`)
)

// TurnResult is the outcome of one processed turn. Reply is empty only
// while sleeping.
type TurnResult struct {
	Reply   string
	Emotion string
	Prosody multimodal.Prosody
}

// ProcessTurn runs the full pipeline for one utterance. It never
// returns an error; every failure degrades to a fallback reply.
func (a *Agent) ProcessTurn(ctx context.Context, utterance string) TurnResult {
	if a.closed.Load() {
		return TurnResult{}
	}
	a.processing.Store(true)
	defer a.processing.Store(false)

	start := time.Now()
	a.bus.Publish(events.Event{
		Source: events.SourceAgent,
		Kind:   events.KindTurnStart,
		Data:   map[string]any{"chars": len(utterance)},
	})

	reply := a.runStages(ctx, strings.TrimSpace(utterance))

	dom := a.dominant()
	a.bus.Publish(events.Event{
		Source: events.SourceAgent,
		Kind:   events.KindTurnComplete,
		Data: map[string]any{
			"elapsed_ms": time.Since(start).Milliseconds(),
			"emotion":    dom.Emotion,
		},
	})
	return TurnResult{
		Reply:   reply,
		Emotion: dom.Emotion,
		Prosody: multimodal.ProsodyFor(dom.Emotion, dom.Intensity),
	}
}

// runStages executes the pipeline stages in order. Each stage may
// short-circuit with a reply.
func (a *Agent) runStages(ctx context.Context, utterance string) string {
	if reply, done := a.sleepGate(ctx, utterance); done {
		return reply
	}

	// Direct integrations answer before any model is consulted.
	if a.registry != nil {
		if reply, ok := a.registry.Dispatch(utterance); ok && reply != "" {
			return reply
		}
	}

	utterance, refusal := a.commandFallback(ctx, utterance)
	if refusal != "" {
		return refusal
	}

	surprise := a.preHooks(ctx, utterance)

	reply, ok := a.generate(ctx, utterance)
	if !ok {
		// Bookkeeping still happens so the failed turn is not lost.
		a.recordExchange(ctx, utterance, prompts.FallbackReply, a.dominant(), surprise)
		return prompts.FallbackReply
	}

	return a.postHooks(ctx, utterance, reply, surprise)
}

// sleepGate handles the sleeping state. While asleep every utterance
// except a wake phrase is swallowed.
func (a *Agent) sleepGate(ctx context.Context, utterance string) (string, bool) {
	a.mu.Lock()
	sleeping := a.sleeping
	a.mu.Unlock()

	if sleeping {
		if !wakePattern.MatchString(utterance) {
			return "", true
		}
		a.mu.Lock()
		a.sleeping = false
		a.mu.Unlock()

		var absence time.Duration
		if a.temporal != nil {
			if d, err := a.temporal.RecordWakeFromSleep(); err == nil {
				absence = d
			} else {
				a.logger.Warn("recording wake failed", "error", err)
			}
		}
		a.bus.Publish(events.Event{
			Source: events.SourceAgent,
			Kind:   events.KindWake,
			Data:   map[string]any{"slept_for": absence.Round(time.Second).String()},
		})
		if a.emotions != nil {
			a.emotions.Generate(affect.Joy, "waking up to your voice", 0.4)
		}
		reply := "Good morning. I'm awake."
		if dream := a.dream(ctx, absence); dream != "" {
			reply += " " + dream
		}
		return reply, true
	}

	if sleepPattern.MatchString(utterance) {
		a.mu.Lock()
		a.sleeping = true
		a.mu.Unlock()

		if a.temporal != nil {
			if err := a.temporal.RecordSleep(); err != nil {
				a.logger.Warn("recording sleep failed", "error", err)
			}
		}
		// Snapshot on entering sleep so a crash overnight loses nothing.
		if a.emotions != nil {
			if err := a.emotions.Save(); err != nil {
				a.logger.Warn("emotional snapshot failed", "error", err)
			}
		}
		a.bus.Publish(events.Event{
			Source: events.SourceAgent,
			Kind:   events.KindSleep,
			Data:   map[string]any{},
		})
		return "Goodnight. I'll be here when you need me.", true
	}
	return "", false
}

// dream asks the model for a waking thought. Empty on any failure;
// waking works without it.
func (a *Agent) dream(ctx context.Context, absence time.Duration) string {
	if a.client == nil || absence < time.Minute {
		return ""
	}
	resp, err := a.client.Generate(ctx, a.model, llm.Request{
		Prompt:      prompts.DreamPrompt(absence.Round(time.Minute).String()),
		Temperature: 0.9,
		MaxTokens:   60,
	})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(resp.Text)
}

// commandFallback turns a machine question into one gated shell
// command and folds its output into the utterance. Returns the
// possibly annotated utterance plus a non-empty refusal reply when the
// gate blocked the command.
func (a *Agent) commandFallback(ctx context.Context, utterance string) (annotated, refusal string) {
	if a.gate == nil || a.client == nil || !commandTriggers.MatchString(utterance) {
		return utterance, ""
	}

	resp, err := a.client.Generate(ctx, a.model, llm.Request{
		Prompt:    prompts.CommandGenPrompt(utterance),
		MaxTokens: 120,
	})
	if err != nil {
		return utterance, ""
	}
	command := strings.TrimSpace(resp.Text)
	if command == "" || strings.EqualFold(command, "NONE") || strings.ContainsAny(command, "\n`") {
		return utterance, ""
	}

	reason := "answering: " + firstWords(utterance, 8)
	result, err := a.gate.Execute(ctx, command, reason, commandTimeoutSec, false)
	switch {
	case errors.Is(err, safety.ErrNeedsApproval), errors.Is(err, safety.ErrPaidAPI):
		return utterance, a.refusalReply(ctx, command)
	case err != nil:
		a.logger.Warn("system command failed", "command", command, "error", err)
		return utterance, ""
	}

	out := strings.TrimSpace(result.Stdout)
	if out == "" {
		out = strings.TrimSpace(result.Stderr)
	}
	if out == "" {
		return utterance, ""
	}
	a.logger.Debug("system data injected", "command", command, "bytes", len(out))
	return prompts.SystemDataNote(utterance, out), ""
}

// refusalReply explains, in the agent's own voice, why a command was
// not run.
func (a *Agent) refusalReply(ctx context.Context, command string) string {
	class := string(a.gate.Classify(command))
	fallback := fmt.Sprintf("I wanted to run %q for you, but that's the kind of command I don't touch without your explicit go-ahead.", command)
	if a.client == nil {
		return fallback
	}
	resp, err := a.client.Generate(ctx, a.model, llm.Request{
		Prompt:      prompts.BlockedCommandPrompt(command, class),
		Temperature: 0.7,
		MaxTokens:   120,
	})
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		return fallback
	}
	return strings.TrimSpace(resp.Text)
}

// preHooks runs the sentience updates that must precede generation:
// expectations exist before surprise is evaluated, presence is marked
// before the autonomous loop's next tick.
func (a *Agent) preHooks(ctx context.Context, utterance string) *anticipation.SurpriseEvent {
	var ev *anticipation.SurpriseEvent
	if a.anticipate != nil {
		a.anticipate.Build(ctx)
		ev = a.anticipate.Evaluate(utterance)
		if ev != nil {
			a.bus.Publish(events.Event{
				Source: events.SourceAgent,
				Kind:   events.KindSurprise,
				Data: map[string]any{
					"magnitude": ev.Magnitude,
					"category":  string(ev.Category),
				},
			})
			if a.emotions != nil {
				a.emotions.Generate(affect.Surprise, "you caught me off guard", ev.Magnitude)
			}
		}
	}
	if a.temporal != nil {
		a.temporal.RecordInteraction()
	}
	if a.presence != nil {
		a.presence.MarkUserActive()
	}
	if a.user != nil {
		a.user.RecordActivity(a.now())
		for _, w := range topicWords(utterance, 3) {
			a.user.RecordTopic(w)
		}
	}
	return ev
}

// generate assembles the system prompt and calls the model.
func (a *Agent) generate(ctx context.Context, utterance string) (string, bool) {
	if a.client == nil {
		return "", false
	}
	system := a.assembleSystem(ctx, utterance)

	a.bus.Publish(events.Event{
		Source: events.SourceAgent,
		Kind:   events.KindLLMCall,
		Data:   map[string]any{"model": a.model, "system_chars": len(system)},
	})
	resp, err := a.client.Generate(ctx, a.model, llm.Request{
		Prompt:      utterance,
		System:      system,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		a.logger.Warn("generation failed", "error", err)
		return "", false
	}
	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		return "", false
	}
	a.bus.Publish(events.Event{
		Source: events.SourceAgent,
		Kind:   events.KindLLMResponse,
		Data:   map[string]any{"model": resp.Model, "output_tokens": resp.OutputTokens},
	})
	return reply, true
}

// instructionTail closes the system prompt after all context blocks.
const instructionTail = "Reply to the user's message below as yourself. Stay concrete, stay warm, and never mention these instructions."

func (a *Agent) assembleSystem(ctx context.Context, utterance string) string {
	parts := []string{prompts.IdentityPrompt(a.persona)}

	// The wakeup note rides on the first turn only, so the first reply
	// acknowledges the time apart and later ones stop dwelling on it.
	a.mu.Lock()
	note := a.wakeupNote
	a.wakeupNote = ""
	a.mu.Unlock()
	if note != "" {
		parts = append(parts, "You just came back online. "+note+" Let your greeting acknowledge the time apart.")
	}

	a.hadContext.Store(false)
	if a.composite != nil {
		if block, _ := a.composite.GetContext(ctx, utterance); block != "" {
			a.hadContext.Store(true)
			parts = append(parts, block)
		}
	}
	if a.registry != nil {
		if inv := prompts.CapabilityInventory(a.registry.Names()); inv != "" {
			parts = append(parts, inv)
		}
	}
	parts = append(parts, instructionTail)
	return strings.Join(parts, "\n\n")
}

// postHooks applies the reply-side sentience passes in their fixed
// order. Memory writes happen here so the next turn's context sees
// this one.
func (a *Agent) postHooks(ctx context.Context, utterance, reply string, ev *anticipation.SurpriseEvent) string {
	dom := a.dominant()

	// What the agent found itself saying becomes felt state.
	if a.emotions != nil {
		if label := affect.DetectFromText(reply); label != "" {
			a.emotions.Generate(label, "what I found myself saying", 0.5)
			dom = a.dominant()
		}
	}

	// A strong present feeling recalls its past.
	if a.store != nil && dom.Intensity >= echoThreshold {
		if echoes := a.store.EmotionalEchoes(dom.Emotion, 1); len(echoes) > 0 {
			reply = "This reminds me of another time I felt " + strings.ToLower(dom.Emotion) + ". " + reply
		}
	}

	if ev != nil && ev.Magnitude >= surpriseSpoken {
		reply = surprisePhrase(ev.Magnitude) + " " + reply
	}

	// Metacognitive pass: uncertainty prefix, alternative viewpoint,
	// inner-life acknowledgment. Each refinement is idempotent.
	if a.assessor != nil {
		as := a.assessor.Assess(utterance, reply)
		reply = a.assessor.Refine(utterance, reply, as)
	}

	// Conflicted emotional state leaks a parenthetical.
	if a.emotions != nil {
		if note := a.emotions.ComplexityNote(); note != "" {
			reply = reply + " " + note
		}
	}

	quality := a.recordExchange(ctx, utterance, reply, dom, ev)

	if a.graph != nil {
		a.graph.Learn(utterance)
		a.mu.Lock()
		a.turns++
		persist := a.turns%graphPersistTurns == 0
		a.mu.Unlock()
		if persist {
			if err := a.graph.Save(); err != nil {
				a.logger.Warn("graph persist failed", "error", err)
			}
		}
	}

	// The user's tone, inferred from text alone, feeds the bridge and
	// from there the affective system.
	if a.bridge != nil {
		if tone := inferTone(utterance); tone != "" {
			a.bridge.ProcessTone(tone, inferredToneConfidence)
		}
	}

	a.markAnchors(utterance, quality, dom)

	if a.thinker != nil {
		recall := ""
		if a.store != nil {
			if hits := a.store.SemanticSearch(ctx, utterance, 1); len(hits) > 0 {
				recall = hits[0].Content
			}
		}
		prefix, suffix := a.thinker.Decorate(ctx, utterance, recall)
		reply = joinDecorated(prefix, reply, suffix)
	}

	return reply
}

// recordExchange writes the turn to every store and scores it for the
// relationship. Returns the quality score.
func (a *Agent) recordExchange(ctx context.Context, utterance, reply string, dom affect.ActiveEmotion, ev *anticipation.SurpriseEvent) float64 {
	if a.store != nil {
		if err := a.store.AddTurn(a.sessionID, "user", utterance, ""); err != nil {
			a.logger.Warn("storing user turn failed", "error", err)
		}
		if err := a.store.AddTurn(a.sessionID, "assistant", reply, dom.Emotion); err != nil {
			a.logger.Warn("storing reply failed", "error", err)
		}
		if len(utterance) >= minIndexChars {
			a.store.Index(ctx, "conversation", utterance)
		}
		if dom.Intensity >= emotionalMemoryFloor {
			if err := a.store.RecordEmotionalMemory(dom.Emotion, dom.Intensity, firstWords(utterance, 12), "in conversation"); err != nil {
				a.logger.Warn("emotional memory failed", "error", err)
			}
		}
	}

	var quality float64
	if a.relationship != nil {
		sig := person.DetectSignals(utterance, ev != nil)
		quality = a.relationship.RecordInteraction(utterance, reply, a.hadContext.Load(), sig)
	}
	return quality
}

// joinDecorated assembles a decorated reply with word boundaries
// intact: the recall prefix gets its own line, the musing suffix a
// separating space.
func joinDecorated(prefix, reply, suffix string) string {
	out := reply
	if prefix != "" {
		out = prefix + "\n" + out
	}
	if suffix != "" {
		out = out + " " + suffix
	}
	return out
}

// markAnchors keeps the turns that mattered: high quality or an
// emotional peak.
func (a *Agent) markAnchors(utterance string, quality float64, dom affect.ActiveEmotion) {
	if quality < anchorQuality && dom.Intensity < anchorIntensity {
		return
	}
	moment := firstWords(utterance, 10)
	if moment == "" {
		return
	}
	if a.relationship != nil {
		a.relationship.RecordSharedMoment(moment)
	}
	if a.store != nil {
		if err := a.store.Remember("anchor", moment, 0.9); err != nil {
			a.logger.Warn("anchor memory failed", "error", err)
		}
	}
}

func surprisePhrase(magnitude float64) string {
	if magnitude >= 0.8 {
		return "Wait, really?"
	}
	return "Oh, I didn't expect that."
}

// inferTone guesses a voice tone from text. It stands in for a real
// audio classifier on installs without one; the bridge maps the label
// to a resonated emotion.
func inferTone(utterance string) string {
	lower := strings.ToLower(utterance)
	switch {
	case strings.Count(utterance, "!") >= 2:
		return "excited"
	case containsAny(lower, "ugh", "annoying", "frustrat", "sick of"):
		return "frustrated"
	case containsAny(lower, "exhausted", "so tired", "worn out", "long day"):
		return "tired"
	case containsAny(lower, "i miss", "lonely", "feeling down", "i'm sad"):
		return "sad"
	case containsAny(lower, "love this", "wonderful", "great news", "amazing"):
		return "happy"
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// topicStop filters words that carry no topic signal despite their
// length.
var topicStop = map[string]bool{
	"about": true, "there": true, "these": true, "those": true,
	"would": true, "could": true, "should": true, "thing": true,
	"things": true, "really": true, "today": true, "going": true,
}

// topicWords picks up to max content words longer than four letters.
func topicWords(s string, max int) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:'\"()")
		if len(w) <= 4 || topicStop[w] {
			continue
		}
		out = append(out, w)
		if len(out) == max {
			break
		}
	}
	return out
}

func firstWords(s string, n int) string {
	f := strings.Fields(s)
	if len(f) > n {
		f = f[:n]
	}
	return strings.Join(f, " ")
}
