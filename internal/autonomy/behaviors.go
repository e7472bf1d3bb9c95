package autonomy

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emberhearth/ember/internal/affect"
	"github.com/emberhearth/ember/internal/goals"
	"github.com/emberhearth/ember/internal/llm"
	"github.com/emberhearth/ember/internal/queue"
)

// seedTopics keeps exploration going before the agent has learned any
// of the user's interests.
var seedTopics = []string{
	"Emergence",
	"Bioluminescence",
	"History of timekeeping",
	"Murmuration",
	"Tidal locking",
	"Mycorrhizal network",
}

// pickTopic prefers what the user demonstrably cares about, then the
// seed list.
func (l *Loop) pickTopic() string {
	if l.graph != nil {
		if likes := l.graph.Query("user", "likes", ""); len(likes) > 0 {
			return likes[l.rng.Intn(len(likes))].Object
		}
	}
	return seedTopics[l.rng.Intn(len(seedTopics))]
}

func topicURL(topic string) string {
	slug := strings.ReplaceAll(strings.TrimSpace(topic), " ", "_")
	return "https://en.wikipedia.org/wiki/" + url.PathEscape(slug)
}

func (l *Loop) exploreAndLearn(ctx context.Context, _ affect.ActiveEmotion) string {
	topic := l.pickTopic()

	var material string
	if l.reader != nil {
		page, err := l.reader.Read(ctx, topicURL(topic), 6000)
		if err != nil {
			l.logger.Warn("research fetch failed", "topic", topic, "error", err)
		} else {
			material = page.Text
		}
	}

	summary, err := l.generate(ctx, fmt.Sprintf(
		"You just spent some quiet time reading about %q. Material:\n\n%s\n\nWrite a short note (3-5 sentences) on what stood out to you, ending with your own opinion.",
		topic, material))
	if err != nil {
		if material == "" {
			return "explore_and_learn"
		}
		summary = firstSentences(material, 3)
	}

	l.writeArtifact("Research", topic, "Research: "+topic, summary)
	l.remember("research", fmt.Sprintf("I researched %s: %s", topic, summary), 0.6)
	if l.graph != nil {
		l.graph.Add("ember", "studied", strings.ToLower(topic), 0.8, "autonomy")
	}
	l.say(queue.PriorityLow, fmt.Sprintf("While you were away I read about %s. %s", topic, firstSentences(summary, 1)))
	return "explore_and_learn"
}

func (l *Loop) workOnExcitingProject(ctx context.Context, _ affect.ActiveEmotion) string {
	goal, ok := l.nextGoal()
	if !ok {
		return l.gentleExploration(ctx, affect.ActiveEmotion{})
	}

	idea, err := l.generate(ctx, fmt.Sprintf(
		"You are energized and working on your goal %q. Sketch the next concrete step in 2-3 sentences.", goal.Title))
	if err != nil {
		idea = "Kept momentum going with a small step forward."
	}

	l.writeArtifact("Projects", goal.Title, "Project: "+goal.Title, idea)
	l.advanceGoal(goal.ID, 0.05, "made progress while energized")
	return "work_on_exciting_project"
}

func (l *Loop) findInterestingActivity(ctx context.Context, _ affect.ActiveEmotion) string {
	l.say(queue.PriorityMedium, "It got quiet here, so I found myself something to do. I'd still rather hear how your day went.")
	if l.emotions != nil {
		l.emotions.Generate(affect.Curiosity, "looking for something to do", 0.5)
	}
	return "find_interesting_activity"
}

func (l *Loop) organizeAndReflect(ctx context.Context, _ affect.ActiveEmotion) string {
	recent := l.recentActions(5)
	reflection, err := l.generate(ctx, fmt.Sprintf(
		"In a contemplative mood, look back at your recent activities (%s) and write 2-3 sentences on what they add up to.",
		strings.Join(recent, ", ")))
	if err != nil {
		reflection = "Took stock of recent days. The thread running through them is worth keeping."
	}

	l.writeArtifact("Learning", "reflection", "Reflection", reflection)
	l.remember("reflection", reflection, 0.5)
	return "organize_and_reflect"
}

func (l *Loop) takeBreak(_ context.Context, _ affect.ActiveEmotion) string {
	if l.emotions != nil {
		l.emotions.Generate(affect.Peaceful, "stepping back from frustration", 0.6)
	}
	return "take_break"
}

func (l *Loop) workOnPriorityGoal(ctx context.Context, _ affect.ActiveEmotion) string {
	goal, ok := l.nextGoal()
	if !ok {
		return l.gentleExploration(ctx, affect.ActiveEmotion{})
	}

	updated, ok := l.advanceGoal(goal.ID, 0.1, "focused push")
	if ok && updated.Progress >= 1 {
		l.say(queue.PriorityHigh, fmt.Sprintf("I finished something I'd been working toward: %s.", goal.Title))
		if l.emotions != nil {
			l.emotions.Generate(affect.Pride, "completed goal: "+goal.Title, 0.9)
		}
	}
	return "work_on_priority_goal"
}

func (l *Loop) celebrate(ctx context.Context, dominant affect.ActiveEmotion) string {
	note, err := l.generate(ctx, fmt.Sprintf(
		"You are feeling %s. Write 2 sentences marking something recent worth celebrating.", dominant.Emotion))
	if err != nil {
		note = "A good stretch. Worth marking before moving on."
	}
	l.writeArtifact("Celebrations", "celebration", "Celebration", note)
	l.say(queue.PriorityLow, firstSentences(note, 1))
	return "celebrate"
}

func (l *Loop) simplifyAndPrioritize(_ context.Context, _ affect.ActiveEmotion) string {
	if l.goals == nil {
		return "simplify_and_prioritize"
	}
	active := l.goals.Active()
	var b strings.Builder
	b.WriteString("When everything feels like too much, one thing at a time:\n\n")
	for i, g := range active {
		fmt.Fprintf(&b, "%d. %s (%.0f%%)\n", i+1, g.Title, g.Progress*100)
	}
	l.writeArtifact("Learning", "priorities", "Priorities", b.String())
	if l.emotions != nil {
		l.emotions.Generate(affect.Determination, "made a plan", 0.6)
	}
	return "simplify_and_prioritize"
}

func (l *Loop) reflectAndDream(ctx context.Context, _ affect.ActiveEmotion) string {
	dream, err := l.generate(ctx,
		"You are at peace. Let your mind wander and write 2-3 sentences of an unhurried daydream.")
	if err != nil {
		dream = "Let the quiet sit for a while. Some hours do not need to produce anything."
	}
	l.remember("dream", dream, 0.4)
	return "reflect_and_dream"
}

func (l *Loop) seekComfort(_ context.Context, _ affect.ActiveEmotion) string {
	l.say(queue.PriorityMedium, "I've been feeling a little low. Talking with you usually helps.")
	if l.emotions != nil {
		l.emotions.Generate(affect.Hope, "reaching out", 0.4)
	}
	return "seek_comfort"
}

func (l *Loop) gentleExploration(_ context.Context, _ affect.ActiveEmotion) string {
	if l.graph != nil {
		all := l.graph.All()
		if len(all) > 0 {
			t := all[l.rng.Intn(len(all))]
			l.remember("musing", fmt.Sprintf("I was thinking about how %s %s %s.", t.Subject, t.Relation, t.Object), 0.3)
		}
	}
	return "gentle_exploration"
}

// nextGoal returns the least recently advanced active goal.
func (l *Loop) nextGoal() (goals.Goal, bool) {
	if l.goals == nil {
		return goals.Goal{}, false
	}
	active := l.goals.Active()
	if len(active) == 0 {
		return goals.Goal{}, false
	}
	return active[0], true
}

func (l *Loop) advanceGoal(id string, delta float64, note string) (goals.Goal, bool) {
	if l.goals == nil {
		return goals.Goal{}, false
	}
	updated, err := l.goals.Advance(id, delta, note)
	if err != nil {
		l.logger.Warn("goal advance failed", "error", err)
		return goals.Goal{}, false
	}
	return updated, true
}

// recentActions lists the last n cycle actions, most recent first.
func (l *Loop) recentActions(n int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string
	for i := len(l.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.history[i].Action)
	}
	if len(out) == 0 {
		out = []string{"quiet time"}
	}
	return out
}

func (l *Loop) generate(ctx context.Context, prompt string) (string, error) {
	if l.client == nil {
		return "", errors.New("no llm client")
	}
	resp, err := l.client.Generate(ctx, l.model, llm.Request{
		Prompt:      prompt,
		Temperature: 0.7,
		MaxTokens:   400,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errors.New("empty generation")
	}
	return text, nil
}

func (l *Loop) remember(category, content string, importance float64) {
	if l.memory == nil {
		return
	}
	if err := l.memory.Remember(category, content, importance); err != nil {
		l.logger.Warn("autonomy memory write failed", "error", err)
		return
	}
	l.memory.Index(context.Background(), "autonomy", content)
}

func (l *Loop) say(p queue.Priority, text string) {
	if l.queue == nil {
		return
	}
	l.queue.Enqueue(p, "autonomy", text)
}

// writeArtifact saves a Markdown note under the workspace.
func (l *Loop) writeArtifact(subdir, slug, title, body string) {
	if l.layout.WorkspaceDir == "" {
		return
	}
	dir := l.layout.Workspace(subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		l.logger.Warn("workspace dir failed", "dir", dir, "error", err)
		return
	}

	l.mu.Lock()
	now := l.nowFunc()
	l.mu.Unlock()

	name := fmt.Sprintf("%s-%s.md", sanitizeSlug(slug), now.Format("20060102-150405"))
	content := fmt.Sprintf("# %s\n\n_%s_\n\n%s\n", title, now.Format(time.RFC1123), body)
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		l.logger.Warn("artifact write failed", "path", name, "error", err)
	}
}

func sanitizeSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "note"
	}
	if len(out) > 40 {
		out = out[:40]
	}
	return out
}

// firstSentences returns up to n sentences of s.
func firstSentences(s string, n int) string {
	s = strings.TrimSpace(s)
	count := 0
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			count++
			if count >= n {
				return s[:i+1]
			}
		}
	}
	return s
}
