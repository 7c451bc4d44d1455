// Package logger builds the process-wide *slog.Logger and carries it through
// contexts. Attribute helpers keep key names consistent across packages.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Format selects the handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures New.
type Options struct {
	Level  string
	Format Format
	// Output defaults to os.Stdout.
	Output io.Writer
	// AddSource adds file:line to every record.
	AddSource bool
	// Attrs are attached to every record, e.g. service name and env.
	Attrs []slog.Attr
}

// ParseLevel parses a level name. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger. JSON output is meant for production, text for local runs.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if opts.Format == FormatJSON {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	if len(opts.Attrs) > 0 {
		handler = handler.WithAttrs(opts.Attrs)
	}

	return slog.New(handler)
}

// Discard returns a logger that drops everything, for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT PROPAGATION
// ══════════════════════════════════════════════════════════════════════════════

type ctxKey struct{}

// WithContext stores the logger in ctx.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTRIBUTES
// ══════════════════════════════════════════════════════════════════════════════

// Component names the emitting subsystem.
func Component(name string) slog.Attr { return slog.String("component", name) }

// Board is the cache key of a board, e.g. "monthly:2026:4".
func Board(key string) slog.Attr { return slog.String("board", key) }

// TeamID identifies a team.
func TeamID(id string) slog.Attr { return slog.String("team_id", id) }

// Season is a season year.
func Season(year int) slog.Attr { return slog.Int("season_year", year) }

// Err records an error under the "error" key.
func Err(err error) slog.Attr { return slog.Any("error", err) }

// Duration records an elapsed time in milliseconds.
func Duration(d time.Duration) slog.Attr { return slog.Int64("duration_ms", d.Milliseconds()) }
