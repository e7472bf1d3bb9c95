package prompts

import "fmt"

// commandGenTemplate asks the model for exactly one shell command to
// answer a system question. Format verb: the user utterance.
const commandGenTemplate = `The user asked a question about this machine: %q

Reply with exactly ONE shell command that answers it, and nothing
else. No backticks, no explanation, no sudo. If no single safe
read-only command answers it, reply with the single word NONE.`

// CommandGenPrompt returns the prompt for the command-generation
// fallback stage.
func CommandGenPrompt(utterance string) string {
	return fmt.Sprintf(commandGenTemplate, utterance)
}

// blockedCommandTemplate turns a refusal into a natural reply.
// Format verbs: (1) the command, (2) the classification.
const blockedCommandTemplate = `You wanted to run %q to help the user, but your safety rules
classified it as %q and refused it without explicit approval. Tell the
user, briefly and without drama, what you wanted to do and why you
held back. One or two sentences.`

// BlockedCommandPrompt returns the apology prompt for a refused
// command.
func BlockedCommandPrompt(command, classification string) string {
	return fmt.Sprintf(blockedCommandTemplate, command, classification)
}

// SystemDataNote wraps captured command output for injection into the
// utterance before the main generation.
func SystemDataNote(utterance, stdout string) string {
	return fmt.Sprintf("%s\n\n[SYSTEM_DATA: %s]", utterance, stdout)
}

// dreamTemplate generates a waking thought after a long absence.
// Format verb: human-friendly absence duration.
const dreamTemplate = `You are waking after %s away. Write one short sentence, as if
surfacing from a dream: an image or half-thought from your time
asleep. Keep it gentle and a little strange.`

// DreamPrompt returns the wake-dream prompt.
func DreamPrompt(absence string) string {
	return fmt.Sprintf(dreamTemplate, absence)
}

// FallbackReply is spoken when every generation path fails. The turn
// pipeline never propagates an error to the caller.
const FallbackReply = "I'm here, but my thoughts are slow right now. Give me a moment and try again."
