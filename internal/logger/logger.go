// Package logger builds mailroom's stderr logger.
//
// Adapted from the teacher's internal/logger.PrettyHandler: same
// timestamp-then-level-then-message-then-attrs line shape, but writing to
// stderr (stdout is reserved for CSV batches, spec §6) and without ANSI
// color, since stderr here is treated as plain, possibly-redirected,
// operational text rather than a terminal.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a slog.Logger that writes timestamped, single-line records to
// stderr. level may be "debug", "info", "warn", or "error"; unrecognized
// values default to "info".
func New(level string) *slog.Logger {
	return slog.New(&handler{
		out:   os.Stderr,
		level: parseLevel(level),
	})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}

// handler is a minimal slog.Handler writing one plain-text line per record.
type handler struct {
	out   io.Writer
	level slog.Level
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *handler) Handle(_ context.Context, record slog.Record) error {
	var sb strings.Builder

	sb.WriteString(record.Time.Format("2006/01/02 15:04:05.000"))
	sb.WriteString("  [")
	sb.WriteString(strings.ToUpper(record.Level.String()))
	sb.WriteString("] ")
	sb.WriteString(record.Message)

	record.Attrs(func(attr slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%v", attr.Key, attr.Value.Any())
		return true
	})

	sb.WriteString("\n")
	_, err := io.WriteString(h.out, sb.String())
	return err
}

func (h *handler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *handler) WithGroup(_ string) slog.Handler      { return h }
