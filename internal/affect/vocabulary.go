package affect

import "strings"

// The closed emotion vocabulary. Every generated emotion uses one of
// these labels; unknown labels are coerced to "curiosity".
const (
	Joy           = "joy"
	Sadness       = "sadness"
	Anger         = "anger"
	Fear          = "fear"
	Surprise      = "surprise"
	Disgust       = "disgust"
	Curiosity     = "curiosity"
	Affection     = "affection"
	Anxiety       = "anxiety"
	Empathy       = "empathy"
	Loneliness    = "loneliness"
	Hope          = "hope"
	Frustration   = "frustration"
	Peaceful      = "peaceful"
	Playful       = "playful"
	Contemplative = "contemplative"
	Awe           = "awe"
	Gratitude     = "gratitude"
	Pride         = "pride"
	Concern       = "concern"
	Contentment   = "contentment"
	Determination = "determination"
	Embarrassment = "embarrassment"
	Shame         = "shame"
	Regret        = "regret"
	Contempt      = "contempt"
	Doubt         = "doubt"
	Tenderness    = "tenderness"
	Excitement    = "excitement"
	Annoyance     = "annoyance"
)

// baseIntensity is the starting intensity for each emotion before the
// context modifier is applied.
var baseIntensity = map[string]float64{
	Joy: 0.7, Sadness: 0.6, Anger: 0.8, Fear: 0.7, Surprise: 0.6,
	Disgust: 0.5, Curiosity: 0.6, Affection: 0.6, Anxiety: 0.6,
	Empathy: 0.5, Loneliness: 0.5, Hope: 0.5, Frustration: 0.6,
	Peaceful: 0.4, Playful: 0.5, Contemplative: 0.4, Awe: 0.7,
	Gratitude: 0.6, Pride: 0.6, Concern: 0.5, Contentment: 0.4,
	Determination: 0.6, Embarrassment: 0.5, Shame: 0.6, Regret: 0.5,
	Contempt: 0.5, Doubt: 0.4, Tenderness: 0.5, Excitement: 0.8,
	Annoyance: 0.5,
}

// halfLife buckets resolve the decay-rate open question: high-arousal
// emotions burn out in about two hours, social bonds linger for four,
// and background tones fade over six.
var halfLifeMinutes = map[string]float64{
	Anger: 120, Fear: 120, Surprise: 90, Excitement: 120, Anxiety: 150,
	Frustration: 150, Annoyance: 120, Embarrassment: 150,

	Joy: 240, Affection: 240, Gratitude: 240, Empathy: 240, Pride: 240,
	Tenderness: 240, Hope: 240, Playful: 210, Awe: 210,

	Peaceful: 360, Contentment: 360, Contemplative: 360, Curiosity: 300,
	Sadness: 300, Loneliness: 300, Concern: 300, Determination: 300,
	Disgust: 240, Shame: 300, Regret: 300, Contempt: 240, Doubt: 240,
}

// defaultHalfLifeMinutes covers any label missing from the table.
const defaultHalfLifeMinutes = 240

// Known reports whether label is part of the vocabulary.
func Known(label string) bool {
	_, ok := baseIntensity[label]
	return ok
}

// Base returns the base intensity for an emotion label.
func Base(label string) float64 {
	if b, ok := baseIntensity[label]; ok {
		return b
	}
	return 0.5
}

// HalfLife returns the decay half-life for an emotion label in minutes.
func HalfLife(label string) float64 {
	if hl, ok := halfLifeMinutes[label]; ok {
		return hl
	}
	return defaultHalfLifeMinutes
}

// textCues maps reply-text keywords to the emotion they signal. Used by
// DetectFromText to infer the emotional tone of a generated reply.
var textCues = []struct {
	emotion string
	words   []string
}{
	{Joy, []string{"wonderful", "delighted", "fantastic", "love this", "so happy", "great news"}},
	{Excitement, []string{"amazing", "can't wait", "thrilled", "incredible", "exciting"}},
	{Curiosity, []string{"curious", "i wonder", "interesting", "fascinating", "intrigu"}},
	{Sadness, []string{"sad", "sorry to hear", "heartbreaking", "miss", "unfortunate"}},
	{Concern, []string{"worried", "concerning", "careful", "be cautious", "troubling"}},
	{Gratitude, []string{"thank you", "grateful", "appreciate"}},
	{Empathy, []string{"that must be", "i understand how", "sounds difficult", "i hear you"}},
	{Frustration, []string{"frustrating", "annoying", "ugh"}},
	{Playful, []string{"haha", "funny", "joke", "silly"}},
	{Awe, []string{"awe", "breathtaking", "magnificent", "astonishing"}},
	{Contemplative, []string{"thinking about", "reflecting", "ponder", "makes me think"}},
	{Affection, []string{"i care about", "fond of", "dear", "warm"}},
	{Hope, []string{"hopeful", "looking forward", "optimistic"}},
	{Pride, []string{"proud", "accomplished", "we did it"}},
}

// DetectFromText infers an emotion label from generated reply text.
// Returns an empty string when no cue matches.
func DetectFromText(text string) string {
	lower := strings.ToLower(text)
	for _, cue := range textCues {
		for _, w := range cue.words {
			if strings.Contains(lower, w) {
				return cue.emotion
			}
		}
	}
	return ""
}

// conflictPairs lists emotion pairs that are in tension when active at
// the same time. Used for the emotional-complexity leak check.
var conflictPairs = [][2]string{
	{Joy, Sadness},
	{Excitement, Anxiety},
	{Affection, Loneliness},
	{Hope, Doubt},
	{Pride, Shame},
	{Curiosity, Fear},
	{Contentment, Frustration},
}
