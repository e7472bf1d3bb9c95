// Package capability implements the explicit intent router. Handlers
// are probed in registration order against each utterance; the first
// one that returns a reply wins and the LLM is never consulted. A
// subsystem that fails to initialize simply never registers, so the
// pipeline needs no nil checks.
package capability

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Handler is one integration's pattern matcher. TryHandle receives
// the raw utterance and its lowercased form; ok=false passes the
// utterance to the next handler.
type Handler interface {
	Name() string
	TryHandle(utterance, lower string) (reply string, ok bool)
}

// Registry is the ordered handler list. Registration order is the
// dispatch order; first match wins.
type Registry struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register appends a handler. Later registrations are probed later.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
	r.logger.Debug("capability registered", "name", h.Name())
}

// Names lists registered capabilities in dispatch order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.handlers))
	for i, h := range r.handlers {
		names[i] = h.Name()
	}
	return names
}

// Dispatch probes handlers in order. ok=false means no handler
// claimed the utterance and the turn should fall through to the LLM.
func (r *Registry) Dispatch(utterance string) (string, bool) {
	lower := strings.ToLower(utterance)

	r.mu.RLock()
	handlers := r.handlers
	r.mu.RUnlock()

	for _, h := range handlers {
		if reply, ok := h.TryHandle(utterance, lower); ok {
			r.logger.Debug("capability handled turn", "name", h.Name())
			return reply, true
		}
	}
	return "", false
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	HandlerName string
	Fn          func(utterance, lower string) (string, bool)
}

func (h HandlerFunc) Name() string { return h.HandlerName }

func (h HandlerFunc) TryHandle(utterance, lower string) (string, bool) {
	return h.Fn(utterance, lower)
}

// timerPattern pulls the duration out of "set a timer for 20 minutes"
// and close variants.
var timerPattern = regexp.MustCompile(`(?i)\b(?:set\s+)?(?:a\s+)?timer\s+for\s+(\d+)\s*(seconds?|secs?|minutes?|mins?|hours?|hrs?)\b`)

// Timer is the built-in timer capability. fire is called when a timer
// elapses; nil drops the notification.
type Timer struct {
	fire    func(text string)
	started func(d time.Duration, f func()) // test seam, defaults to time.AfterFunc
}

// NewTimer creates the timer capability. fire receives the expiry
// announcement, typically Queue.Enqueue wrapped at high priority.
func NewTimer(fire func(text string)) *Timer {
	return &Timer{
		fire:    fire,
		started: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

func (t *Timer) Name() string { return "timers" }

func (t *Timer) TryHandle(_, lower string) (string, bool) {
	m := timerPattern.FindStringSubmatch(lower)
	if m == nil {
		return "", false
	}

	n := 0
	fmt.Sscanf(m[1], "%d", &n)
	if n <= 0 {
		return "", false
	}

	unit, label := parseUnit(m[2])
	d := time.Duration(n) * unit

	t.started(d, func() {
		if t.fire != nil {
			t.fire(fmt.Sprintf("Your %d %s timer is up.", n, label))
		}
	})

	return fmt.Sprintf("Timer set. I'll let you know in %d %s%s.", n, label, plural(n)), true
}

func parseUnit(s string) (time.Duration, string) {
	switch {
	case strings.HasPrefix(s, "sec"):
		return time.Second, "second"
	case strings.HasPrefix(s, "hour"), strings.HasPrefix(s, "hr"):
		return time.Hour, "hour"
	default:
		return time.Minute, "minute"
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// NewIdentity creates the built-in identity capability: direct
// answers for "what's your name" style probes, without an LLM round
// trip.
func NewIdentity(persona string) Handler {
	namePattern := regexp.MustCompile(`(?i)\b(what('?s| is)\s+your\s+name|who\s+are\s+you)\b`)
	naturePattern := regexp.MustCompile(`(?i)\b(what\s+are\s+you|are\s+you\s+(an?\s+)?(ai|robot|program|computer))\b`)

	return HandlerFunc{
		HandlerName: "identity",
		Fn: func(_, lower string) (string, bool) {
			switch {
			case namePattern.MatchString(lower):
				return fmt.Sprintf("I'm %s. I live here, in a manner of speaking.", persona), true
			case naturePattern.MatchString(lower):
				return fmt.Sprintf("I'm %s, a software companion. Whether that makes me a someone or a something is a question I sit with too.", persona), true
			default:
				return "", false
			}
		},
	}
}
