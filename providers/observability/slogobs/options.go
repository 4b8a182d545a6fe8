package slogobs

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects how Handler lays out a record.
type Format string

const (
	// FormatCompact prints one line per record with the attributes as a
	// trailing JSON object. It is the default.
	FormatCompact Format = "compact"

	// FormatPretty prints the message line followed by one indented line per
	// attribute.
	FormatPretty Format = "pretty"

	// FormatJSON prints one JSON object per record.
	FormatJSON Format = "json"
)

// ParseFormat maps a configuration value to a Format. Anything other than
// "pretty" or "json" selects FormatCompact.
func ParseFormat(value string) Format {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case FormatPretty:
		return FormatPretty
	case FormatJSON:
		return FormatJSON
	}
	return FormatCompact
}

// LevelTrace sits below slog.LevelDebug and carries prompt and response
// previews.
const LevelTrace = slog.LevelDebug - 4

// ParseLogLevel maps trace, debug, info, warn (or warning) and error to a
// slog.Level, ignoring case. Unknown values yield slog.LevelInfo; callers
// that must reject them validate first.
func ParseLogLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Option configures New.
type Option func(*settings)

type settings struct {
	format Format
	level  slog.Level
	output io.Writer
	colors bool

	// logger, when set, replaces the Handler built from the fields above.
	logger *slog.Logger
}

func WithFormat(format Format) Option {
	return func(settings *settings) {
		settings.format = format
	}
}

func WithLevel(level slog.Level) Option {
	return func(settings *settings) {
		settings.level = level
	}
}

// WithOutput redirects log lines. The default is os.Stderr.
func WithOutput(output io.Writer) Option {
	return func(settings *settings) {
		settings.output = output
	}
}

// WithColors toggles ANSI level colors. JSON output is never colored.
func WithColors(enabled bool) Option {
	return func(settings *settings) {
		settings.colors = enabled
	}
}

// WithLogger routes everything through an existing logger and ignores the
// format, level, output and color options.
func WithLogger(logger *slog.Logger) Option {
	return func(settings *settings) {
		settings.logger = logger
	}
}

func newSettings(opts []Option) *settings {
	settings := &settings{
		format: FormatCompact,
		level:  slog.LevelInfo,
		output: os.Stderr,
	}
	for _, opt := range opts {
		opt(settings)
	}
	return settings
}
