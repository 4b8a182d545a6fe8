package slogobs

import (
	"bytes"
	"log/slog"
	"os"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"pretty":   FormatPretty,
		" JSON ":   FormatJSON,
		"compact":  FormatCompact,
		"":         FormatCompact,
		"markdown": FormatCompact,
	}
	for input, want := range tests {
		if got := ParseFormat(input); got != want {
			t.Errorf("ParseFormat(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace":   LevelTrace,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"loud":    slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for input, want := range tests {
		if got := ParseLogLevel(input); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestParseLogLevel_MatchesHandlerLabels(t *testing.T) {
	for _, level := range []slog.Level{LevelTrace, slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if got := ParseLogLevel(levelString(level)); got != level {
			t.Errorf("label %q parsed to %v, want %v", levelString(level), got, level)
		}
	}
}

func TestNewSettings_Defaults(t *testing.T) {
	settings := newSettings(nil)

	if settings.format != FormatCompact {
		t.Errorf("Expected compact format, got %q", settings.format)
	}
	if settings.level != slog.LevelInfo {
		t.Errorf("Expected info level, got %v", settings.level)
	}
	if settings.output != os.Stderr {
		t.Error("Expected stderr output")
	}
	if settings.colors || settings.logger != nil {
		t.Error("Expected colors off and no custom logger")
	}
}

func TestNewSettings_LaterOptionsWin(t *testing.T) {
	var output bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&output, nil))

	settings := newSettings([]Option{
		WithFormat(FormatJSON),
		WithFormat(FormatPretty),
		WithLevel(slog.LevelError),
		WithOutput(&output),
		WithColors(true),
		WithLogger(logger),
	})

	if settings.format != FormatPretty {
		t.Errorf("Expected the last format to win, got %q", settings.format)
	}
	if settings.level != slog.LevelError {
		t.Errorf("Expected error level, got %v", settings.level)
	}
	if settings.output != &output {
		t.Error("Expected the buffer as output")
	}
	if !settings.colors {
		t.Error("Expected colors on")
	}
	if settings.logger != logger {
		t.Error("Expected the custom logger")
	}
}
