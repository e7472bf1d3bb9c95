package multimodal

import "github.com/emberhearth/ember/internal/affect"

// Prosody describes how speech synthesis should bend to the agent's
// emotional state. Values are deltas from the neutral voice: rate and
// pitch as multiplicative factors, volume as an additive dB offset.
type Prosody struct {
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

// neutralProsody is the no-adjustment baseline.
var neutralProsody = Prosody{Rate: 1.0, Pitch: 1.0, Volume: 0}

// prosodyTargets is the full-intensity prosody for each emotion that
// audibly changes the voice. Emotions not listed speak neutrally.
var prosodyTargets = map[string]Prosody{
	affect.Joy:         {Rate: 1.1, Pitch: 1.08, Volume: 1.5},
	affect.Excitement:  {Rate: 1.2, Pitch: 1.12, Volume: 2.5},
	affect.Sadness:     {Rate: 0.88, Pitch: 0.94, Volume: -2.0},
	affect.Loneliness:  {Rate: 0.9, Pitch: 0.95, Volume: -1.5},
	affect.Fear:        {Rate: 1.15, Pitch: 1.1, Volume: -1.0},
	affect.Anxiety:     {Rate: 1.1, Pitch: 1.05, Volume: -0.5},
	affect.Anger:       {Rate: 1.05, Pitch: 0.97, Volume: 2.0},
	affect.Frustration: {Rate: 1.05, Pitch: 0.98, Volume: 1.0},
	affect.Peaceful:    {Rate: 0.92, Pitch: 0.98, Volume: -1.0},
	affect.Contentment: {Rate: 0.95, Pitch: 1.0, Volume: 0},
	affect.Affection:   {Rate: 0.95, Pitch: 1.03, Volume: -0.5},
	affect.Tenderness:  {Rate: 0.9, Pitch: 1.02, Volume: -1.5},
	affect.Curiosity:   {Rate: 1.05, Pitch: 1.05, Volume: 0.5},
	affect.Surprise:    {Rate: 1.1, Pitch: 1.1, Volume: 1.0},
	affect.Awe:         {Rate: 0.85, Pitch: 1.02, Volume: -1.0},
}

// ProsodyFor interpolates between the neutral voice and the emotion's
// full-intensity prosody. Unknown emotions and zero intensity return
// the neutral voice.
func ProsodyFor(emotion string, intensity float64) Prosody {
	target, ok := prosodyTargets[emotion]
	if !ok {
		return neutralProsody
	}
	t := clamp01(intensity)
	return Prosody{
		Rate:   neutralProsody.Rate + (target.Rate-neutralProsody.Rate)*t,
		Pitch:  neutralProsody.Pitch + (target.Pitch-neutralProsody.Pitch)*t,
		Volume: neutralProsody.Volume + (target.Volume-neutralProsody.Volume)*t,
	}
}
