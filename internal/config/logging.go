package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace sits below Debug and carries full LLM wire payloads.
// Nothing logs at this level during normal operation.
const LevelTrace = slog.Level(-8)

// ParseLogLevel maps the config file's log_level string to a slog
// level. Empty means Info. Unknown values return an error so a typo in
// the config fails loudly instead of silently logging at Info.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
	}
}

// ReplaceLogLevelNames renders LevelTrace as "TRACE" in handler
// output; slog would otherwise print it as "DEBUG-4". Pass as the
// ReplaceAttr field when constructing a handler.
func ReplaceLogLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}
