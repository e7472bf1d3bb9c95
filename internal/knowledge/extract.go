package knowledge

import (
	"regexp"
	"strings"
)

// extraction pairs a pattern with the relation and confidence it
// yields. The first capture group is the object (and for the "is-a"
// form, group one is the subject and group two the object).
type extraction struct {
	pattern    *regexp.Regexp
	subject    string // empty means group 1 is the subject
	relation   string
	confidence float64
}

var extractions = []extraction{
	{regexp.MustCompile(`(?i)\bi (?:love|really like|enjoy)\s+([a-z0-9][a-z0-9 '-]{2,40}?)(?:[.,!?]|$)`), "user", "likes", 0.9},
	{regexp.MustCompile(`(?i)\bi (?:hate|can't stand|dislike)\s+([a-z0-9][a-z0-9 '-]{2,40}?)(?:[.,!?]|$)`), "user", "dislikes", 0.9},
	{regexp.MustCompile(`(?i)\bi use\s+([a-z0-9][a-z0-9 '-]{2,40}?)(?:\s+for\b|[.,!?]|$)`), "user", "uses", 0.85},
	{regexp.MustCompile(`(?i)\bi(?:'m| am) learning\s+([a-z0-9][a-z0-9 '-]{2,40}?)(?:[.,!?]|$)`), "user", "is_learning", 0.9},
	{regexp.MustCompile(`(?i)\bi work (?:at|for)\s+([a-z0-9][a-z0-9 '-]{2,40}?)(?:[.,!?]|$)`), "user", "works_at", 0.85},
	{regexp.MustCompile(`(?i)\bmy ([a-z]{3,20}) is (?:called |named )?([a-z0-9][a-z0-9 '-]{1,40}?)(?:[.,!?]|$)`), "", "", 0.8},
	{regexp.MustCompile(`(?i)\b([a-z][a-z0-9 -]{2,30}?) is (?:a|an)\s+([a-z][a-z0-9 -]{2,40}?)(?:[.,!?]|$)`), "", "is_a", 0.6},
}

// subjectStopwords reject generic is-a subjects that carry no
// knowledge ("that is a problem").
var subjectStopwords = map[string]bool{
	"it": true, "this": true, "that": true, "there": true, "he": true,
	"she": true, "they": true, "what": true, "which": true, "who": true,
	"here": true, "everything": true, "nothing": true, "something": true,
	"anything": true, "one": true, "all": true,
}

// Extract mines triples from a conversational utterance. Purely
// pattern-based, no model calls, so it runs on every turn.
func Extract(utterance string) []Triple {
	var out []Triple
	for _, ex := range extractions {
		for _, match := range ex.pattern.FindAllStringSubmatch(utterance, -1) {
			t, ok := buildTriple(ex, match)
			if ok {
				out = append(out, t)
			}
		}
	}
	return out
}

func buildTriple(ex extraction, match []string) (Triple, bool) {
	switch {
	case ex.subject != "":
		object := cleanTerm(match[1])
		if object == "" {
			return Triple{}, false
		}
		return Triple{
			Subject:    ex.subject,
			Relation:   ex.relation,
			Object:     object,
			Confidence: ex.confidence,
			Source:     "conversation",
		}, true

	case ex.relation == "is_a":
		subject := cleanTerm(match[1])
		object := cleanTerm(match[2])
		if subject == "" || object == "" || subjectStopwords[subject] {
			return Triple{}, false
		}
		return Triple{
			Subject:    subject,
			Relation:   "is_a",
			Object:     object,
			Confidence: ex.confidence,
			Source:     "conversation",
		}, true

	default:
		// "my X is Y" form: possessive attribute of the user.
		attr := cleanTerm(match[1])
		value := cleanTerm(match[2])
		if attr == "" || value == "" {
			return Triple{}, false
		}
		return Triple{
			Subject:    "user",
			Relation:   "has_" + strings.ReplaceAll(attr, " ", "_"),
			Object:     value,
			Confidence: ex.confidence,
			Source:     "conversation",
		}, true
	}
}

// cleanTerm normalizes an extracted term; terms shorter than three
// characters are rejected as noise.
func cleanTerm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".,!?;:'\"")
	if len(s) < 3 {
		return ""
	}
	return s
}

// Learn extracts triples from the utterance and folds them into the
// graph, returning what was learned.
func (g *Graph) Learn(utterance string) []Triple {
	triples := Extract(utterance)
	for _, t := range triples {
		g.Add(t.Subject, t.Relation, t.Object, t.Confidence, t.Source)
	}
	return triples
}
