package anticipation

import (
	"strings"
)

// moodDistance is the fixed pairwise distance table for emotion
// expectations. Symmetric; missing pairs default to 0.5.
var moodDistance = map[[2]string]float64{
	{"neutral", "angry"}:   0.8,
	{"neutral", "sad"}:     0.6,
	{"neutral", "happy"}:   0.4,
	{"neutral", "excited"}: 0.5,
	{"happy", "sad"}:       0.9,
	{"happy", "angry"}:     0.85,
	{"happy", "excited"}:   0.2,
	{"sad", "angry"}:       0.4,
	{"sad", "excited"}:     0.8,
	{"angry", "excited"}:   0.6,
}

// behaviorBaselines maps behavior keywords to the surprise they carry
// when the expectation was "continue as usual".
var behaviorBaselines = []struct {
	words    []string
	behavior string
	score    float64
}{
	{[]string{"goodbye", "bye", "farewell", "see you", "good night"}, "goodbye", 0.5},
	{[]string{"you're amazing", "you're wonderful", "well done", "great job", "i love you"}, "compliment", 0.6},
	{[]string{"you're wrong", "that's stupid", "useless", "terrible job", "you failed"}, "criticism", 0.7},
	{[]string{"never mind", "forget it", "whatever"}, "dismissal", 0.5},
}

// shockMarkers push content surprise up regardless of length class.
var shockMarkers = []string{"?!", "!!!", "??", "what the"}

// scoreViolation computes the surprise score in [0,1] for one
// expectation against the utterance, returning the score and a short
// description of what was actually observed.
func scoreViolation(exp Expectation, utterance string) (float64, string) {
	switch exp.Category {
	case CategoryTopic:
		return scoreTopic(exp, utterance)
	case CategoryEmotion:
		return scoreEmotion(exp, utterance)
	case CategoryBehavior:
		return scoreBehavior(utterance)
	case CategoryContent:
		return scoreContent(exp, utterance)
	default:
		return 0, ""
	}
}

func scoreTopic(exp Expectation, utterance string) (float64, string) {
	predicted := wordSet(exp.Prediction)
	if len(predicted) == 0 {
		return 0, ""
	}
	actual := wordSet(utterance)

	overlap := 0
	for w := range predicted {
		if actual[w] {
			overlap++
		}
	}
	score := (1 - float64(overlap)/float64(len(predicted))) * exp.Confidence
	return score, "topic: " + strings.Join(contentWords(utterance, 3), " ")
}

func scoreEmotion(exp Expectation, utterance string) (float64, string) {
	actual := detectMood(utterance)
	if actual == exp.Prediction {
		return 0, actual
	}
	return lookupMoodDistance(exp.Prediction, actual) * exp.Confidence, actual
}

func scoreBehavior(utterance string) (float64, string) {
	lower := strings.ToLower(utterance)
	for _, b := range behaviorBaselines {
		for _, w := range b.words {
			if strings.Contains(lower, w) {
				return b.score, b.behavior
			}
		}
	}
	return 0, "continue"
}

func scoreContent(exp Expectation, utterance string) (float64, string) {
	actualClass := lengthClass(len(strings.Fields(utterance)))
	score := 0.0
	if exp.Prediction != actualClass && isLengthClass(exp.Prediction) {
		score = 0.35 * exp.Confidence / 0.8 // normalize against builder scaling
	}

	lower := strings.ToLower(utterance)
	for _, marker := range shockMarkers {
		if strings.Contains(lower, marker) {
			score += 0.3
			break
		}
	}
	if score > 1 {
		score = 1
	}
	return score, actualClass
}

func lookupMoodDistance(a, b string) float64 {
	if d, ok := moodDistance[[2]string{a, b}]; ok {
		return d
	}
	if d, ok := moodDistance[[2]string{b, a}]; ok {
		return d
	}
	return 0.5
}

// detectMood classifies an utterance into the coarse mood vocabulary
// used by emotion expectations.
func detectMood(utterance string) string {
	lower := strings.ToLower(utterance)
	for mood, words := range map[string][]string{
		"angry":   {"hate", "terrible", "furious", "awful", "worst", "angry", "damn"},
		"sad":     {"sad", "depressed", "miserable", "lonely", "crying", "heartbroken"},
		"excited": {"amazing", "awesome", "incredible", "can't wait", "so excited"},
		"happy":   {"great", "wonderful", "love", "fantastic", "glad", "happy"},
	} {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return mood
			}
		}
	}
	return "neutral"
}

// lengthClass buckets a word count into short/medium/long.
func lengthClass(words int) string {
	switch {
	case words <= 5:
		return "short"
	case words <= 25:
		return "medium"
	default:
		return "long"
	}
}

func isLengthClass(s string) bool {
	return s == "short" || s == "medium" || s == "long"
}

// stopwords excluded from topic and content-word extraction.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "you": true, "your": true, "have": true, "what": true,
	"about": true, "just": true, "like": true, "from": true, "they": true,
	"been": true, "will": true, "would": true, "could": true, "should": true,
	"there": true, "their": true, "them": true, "then": true, "than": true,
	"some": true, "very": true, "really": true, "when": true, "where": true,
}

// wordSet returns the lowercase content words of s as a set.
func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:'\"()")
		if len(w) > 3 && !stopwords[w] {
			set[w] = true
		}
	}
	return set
}

// contentWords returns up to max content words from s, in order.
func contentWords(s string, max int) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:'\"()")
		if len(w) > 3 && !stopwords[w] && !seen[w] {
			seen[w] = true
			out = append(out, w)
			if len(out) >= max {
				break
			}
		}
	}
	return out
}
