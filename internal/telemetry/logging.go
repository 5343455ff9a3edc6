// Package telemetry wires the process-wide structured logger. Every
// component receives the *slog.Logger built here; none construct their
// own. Log lines are JSON with a stable schema (timestamp, level, msg,
// component, trace_id) and secret-bearing values are scrubbed before
// they reach disk.
package telemetry

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/basket/deskhand/internal/shared"
)

// NewLogger opens <homeDir>/logs/daemon.jsonl and returns a JSON logger
// writing there. Unless quiet is set the stream is also mirrored to
// stdout. The returned closer owns the log file.
func NewLogger(homeDir, level string, quiet bool) (*slog.Logger, io.Closer, error) {
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, err
	}

	file, err := os.OpenFile(filepath.Join(logDir, "daemon.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer = file
	if !quiet {
		w = io.MultiWriter(os.Stdout, file)
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			if sensitiveKey(a.Key) {
				return slog.String(a.Key, "[REDACTED]")
			}
			if a.Value.Kind() == slog.KindString {
				if scrubbed, changed := scrubValue(a.Value.String()); changed {
					return slog.String(a.Key, scrubbed)
				}
			}
			return a
		},
	})
	logger := slog.New(handler).With("component", "daemon", "trace_id", "-")
	return logger, file, nil
}

func sensitiveKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	if lower == "" {
		return false
	}
	for _, token := range []string{"token", "secret", "password", "authorization", "api_key", "apikey", "bearer"} {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// scrubValue redacts whole values that carry auth material and applies
// the shared pattern scrubber to everything else.
func scrubValue(v string) (string, bool) {
	lower := strings.ToLower(v)
	if strings.Contains(lower, "bearer ") || strings.Contains(lower, "authorization:") || strings.Contains(lower, "api_key") {
		return "[REDACTED]", true
	}
	scrubbed := shared.Redact(v)
	return scrubbed, scrubbed != v
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
