package logger

import (
	"log/slog"

	"github.com/google/uuid"
)

// Attribute helpers use the empty Attr pattern for nil safety: calls like
// log.Error("msg", logger.Error(err)) work without explicit nil checks.

// Error creates an attribute for a single error under the key "error".
// Returns an empty Attr for nil errors.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// SessionID creates an attribute for a session identifier under the key
// "session_id".
func SessionID(id uuid.UUID) slog.Attr {
	return slog.String("session_id", id.String())
}

// Component tags log records with the emitting component's name.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Group creates a group of attributes under a single key.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}
