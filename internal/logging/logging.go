// Package logging builds the structured logger shared by the CLI and the
// MCP server. Records fan out to a text handler on stderr, an optional
// JSON log file and, when requested, the systemd journal. Nothing is ever
// written to stdout: it carries reports and the MCP stdio transport.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Options selects the logging outputs.
type Options struct {
	Level   string
	File    string
	Journal bool
	// Stderr receives the text handler output. Defaults to os.Stderr.
	Stderr io.Writer
}

// Logger is a configured logger plus the resources it holds open.
type Logger struct {
	*slog.Logger
	level   *slog.LevelVar
	closers []io.Closer
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// New builds a Logger. A journal that cannot be reached is reported as a
// warning on the remaining handlers, not as an error.
func New(opts Options) (*Logger, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	level := new(slog.LevelVar)
	level.Set(lvl)

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	l := &Logger{level: level}
	handlers := []slog.Handler{
		slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}),
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		l.closers = append(l.closers, f)
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	}

	var journalErr error
	if opts.Journal {
		h, err := slogjournal.NewHandler(&slogjournal.Options{
			ReplaceGroup: func(key string) string {
				return toJournalKey(key)
			},
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
		if err != nil {
			journalErr = err
		} else {
			handlers = append(handlers, h)
		}
	}

	l.Logger = slog.New(slogmulti.Fanout(handlers...))
	if journalErr != nil {
		record := slog.NewRecord(time.Now(), slog.LevelWarn, "systemd journal unavailable", 0)
		record.AddAttrs(slog.String("error", journalErr.Error()))
		_ = l.Logger.Handler().Handle(context.Background(), record)
	}
	return l, nil
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		level:  new(slog.LevelVar),
	}
}

// SetLevel changes the level of every handler at once.
func (l *Logger) SetLevel(level slog.Level) { l.level.Set(level) }

// Close releases log files.
func (l *Logger) Close() error {
	var first error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.closers = nil
	return first
}

// toJournalKey converts an attribute key to a valid journal field name.
func toJournalKey(s string) string {
	s = strings.ToUpper(s)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, s)
}
