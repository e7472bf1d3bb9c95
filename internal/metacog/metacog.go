// Package metacog assesses the agent's own replies before they go
// out: clarity, completeness, confidence, and bias. Low confidence
// earns an uncertainty prefix, detected bias earns an alternative
// viewpoint, and questions probing the agent's inner life earn an
// honest acknowledgment of limitation. Every adjustment is idempotent
// and purely textual.
package metacog

import (
	"log/slog"
	"regexp"
	"strings"
)

// Assessment scores one reply.
type Assessment struct {
	Clarity      float64  `json:"clarity"`      // 0-1, sentence readability
	Completeness float64  `json:"completeness"` // 0-1, did it answer the question
	Confidence   float64  `json:"confidence"`   // 0-1, hedging vs overclaiming
	Biases       []string `json:"biases,omitempty"`
}

// Thresholds for the refinement decisions.
const (
	lowConfidence   = 0.4
	longSentence    = 25 // words; beyond this clarity suffers
	shortAnswer     = 8  // words; a question answered in fewer looks incomplete
	uncertainPrefix = "I'm not entirely sure, but "
)

var hedgeWords = []string{
	"maybe", "perhaps", "might", "possibly", "not sure", "i think",
	"i guess", "probably", "it seems", "could be",
}

var absoluteWords = []string{
	"always", "never", "everyone", "no one", "definitely",
	"certainly", "impossible", "guaranteed",
}

// generalization matches sweeping "all X are Y" claims.
var generalization = regexp.MustCompile(`(?i)\ball\s+\w+s?\s+(are|do|have|want)\b`)

// innerLifeProbe matches questions about the agent's subjective
// experience, which deserve a limitation acknowledgment rather than a
// confident performance.
var innerLifeProbe = regexp.MustCompile(`(?i)\b(do|can|are)\s+you\s+(really\s+)?(feel|remember|dream|love|care|experience|conscious|alive|real)\b`)

// Assessor scores and refines replies.
type Assessor struct {
	logger *slog.Logger
}

// New creates an Assessor.
func New(logger *slog.Logger) *Assessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assessor{logger: logger}
}

// Assess scores a reply against the utterance it answers.
func (a *Assessor) Assess(utterance, reply string) Assessment {
	as := Assessment{
		Clarity:      clarity(reply),
		Completeness: completeness(utterance, reply),
		Confidence:   confidence(reply),
	}
	as.Biases = detectBiases(reply)
	return as
}

// Refine applies the assessment to the reply text. Safe to call more
// than once; a refined reply assesses clean and passes through.
func (a *Assessor) Refine(utterance, reply string, as Assessment) string {
	if reply == "" {
		return reply
	}
	out := reply

	if as.Confidence < lowConfidence && !strings.HasPrefix(out, uncertainPrefix) {
		out = uncertainPrefix + lowerFirst(out)
	}

	if len(as.Biases) > 0 && !strings.Contains(out, "other ways to see") {
		out += " That said, there are other ways to see it, and I might be leaning too hard on one."
	}

	if innerLifeProbe.MatchString(utterance) && !strings.Contains(out, "from the inside") {
		out += " Honestly, I can't be certain what my experience is like from the inside; I can only tell you how it seems."
	}

	if out != reply {
		a.logger.Debug("reply refined",
			"confidence", as.Confidence,
			"biases", len(as.Biases))
	}
	return out
}

// clarity penalizes run-on sentences and near-empty replies.
func clarity(reply string) float64 {
	words := strings.Fields(reply)
	if len(words) == 0 {
		return 0
	}
	score := 0.9
	if len(words) < 3 {
		score -= 0.3
	}
	sentences := countSentences(reply)
	if sentences > 0 && len(words)/sentences > longSentence {
		score -= 0.3
	}
	return clamp01(score)
}

// completeness drops when a direct question gets a one-liner.
func completeness(utterance, reply string) float64 {
	score := 0.8
	if isQuestion(utterance) && len(strings.Fields(reply)) < shortAnswer {
		score -= 0.4
	}
	return clamp01(score)
}

// confidence starts neutral, falls with hedging and rises with
// absolute claims. Overclaiming is then caught by bias detection.
func confidence(reply string) float64 {
	lower := strings.ToLower(reply)
	score := 0.7
	for _, h := range hedgeWords {
		if strings.Contains(lower, h) {
			score -= 0.15
		}
	}
	for _, ab := range absoluteWords {
		if strings.Contains(lower, ab) {
			score += 0.1
		}
	}
	return clamp01(score)
}

func detectBiases(reply string) []string {
	lower := strings.ToLower(reply)
	var biases []string

	absolutes := 0
	for _, ab := range absoluteWords {
		if strings.Contains(lower, ab) {
			absolutes++
		}
	}
	if absolutes >= 2 {
		biases = append(biases, "absolutism")
	}
	if generalization.MatchString(reply) {
		biases = append(biases, "overgeneralization")
	}
	return biases
}

func isQuestion(utterance string) bool {
	if strings.Contains(utterance, "?") {
		return true
	}
	lower := strings.ToLower(strings.TrimSpace(utterance))
	for _, w := range []string{"what", "why", "how", "when", "where", "who", "which"} {
		if strings.HasPrefix(lower, w+" ") {
			return true
		}
	}
	return false
}

func countSentences(s string) int {
	n := strings.Count(s, ".") + strings.Count(s, "!") + strings.Count(s, "?")
	if n == 0 {
		return 1
	}
	return n
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	// Leave proper nouns and "I" alone.
	if r[0] >= 'A' && r[0] <= 'Z' && !(r[0] == 'I' && (len(r) == 1 || r[1] == ' ' || r[1] == '\'')) {
		r[0] = r[0] + ('a' - 'A')
	}
	return string(r)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
