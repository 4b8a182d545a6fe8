package slogobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
)

// redacted replaces the value of attributes whose key looks like a secret.
const redacted = "[REDACTED]"

// secretKeyFragments mark attribute keys whose values are never written out.
// Database DSNs routinely embed passwords.
var secretKeyFragments = []string{"api_key", "apikey", "password", "passwd", "secret", "access_token", "dsn", "authorization"}

// Handler is a slog.Handler that writes compact, pretty or JSON lines.
// Attribute keys are emitted in sorted order so identical records always
// render identically.
type Handler struct {
	format Format
	level  slog.Level
	output io.Writer
	colors bool
	mu     *sync.Mutex
	attrs  []slog.Attr
	groups []string
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	Format Format
	Level  slog.Level

	// Output defaults to os.Stderr.
	Output io.Writer

	// Colors forces ANSI level colors. Without it, colors are used only when
	// Output is a terminal. JSON is never colored.
	Colors bool
}

// NewHandler builds a Handler. A nil opts means compact lines at info level
// on stderr.
func NewHandler(opts *HandlerOptions) *Handler {
	if opts == nil {
		opts = &HandlerOptions{}
	}
	output := opts.Output
	if output == nil {
		output = os.Stderr
	}
	format := opts.Format
	if format == "" {
		format = FormatCompact
	}

	colors := opts.Colors
	if !colors && format != FormatJSON {
		if file, ok := output.(*os.File); ok {
			colors = isTerminal(file)
		}
	}

	return &Handler{
		format: format,
		level:  opts.Level,
		output: output,
		colors: colors,
		mu:     &sync.Mutex{},
	}
}

func (handler *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= handler.level
}

func (handler *Handler) Handle(_ context.Context, record slog.Record) error {
	attrs := handler.collectAttrs(record)

	var line []byte
	var err error
	switch handler.format {
	case FormatPretty:
		line = handler.formatPretty(record, attrs)
	case FormatJSON:
		line, err = handler.formatJSON(record, attrs)
	default:
		line = handler.formatCompact(record, attrs)
	}
	if err != nil {
		return err
	}

	// Handlers derived through WithAttrs/WithGroup share the mutex, so lines
	// from one logger never interleave.
	handler.mu.Lock()
	defer handler.mu.Unlock()
	_, err = handler.output.Write(line)
	return err
}

func (handler *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := *handler
	derived.attrs = make([]slog.Attr, 0, len(handler.attrs)+len(attrs))
	derived.attrs = append(derived.attrs, handler.attrs...)
	for _, attr := range attrs {
		derived.attrs = append(derived.attrs, slog.Attr{Key: handler.qualify(attr.Key), Value: attr.Value})
	}
	return &derived
}

// WithGroup returns a new Handler whose subsequent attribute keys are
// prefixed with name.
func (handler *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return handler
	}
	derived := *handler
	derived.groups = append(slices.Clone(handler.groups), name)
	return &derived
}

// formatCompact renders "2006-01-02 15:04:05  INFO message → {"key":"value"}".
func (handler *Handler) formatCompact(record slog.Record, attrs map[string]any) []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, record.Time.Format("2006-01-02 15:04:05")...)
	buf = append(buf, ' ')
	buf = handler.appendLevel(buf, record.Level, fmt.Sprintf("%5s", levelString(record.Level)))
	buf = append(buf, ' ')
	buf = append(buf, record.Message...)

	if len(attrs) > 0 {
		buf = append(buf, " → "...)
		// encoding/json sorts map keys.
		encoded, err := json.Marshal(attrs)
		if err != nil {
			buf = append(buf, "[json-error]"...)
		} else {
			buf = append(buf, encoded...)
		}
	}
	return append(buf, '\n')
}

// formatPretty renders the message on one line and each attribute on its own
// indented line, keys sorted.
func (handler *Handler) formatPretty(record slog.Record, attrs map[string]any) []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, record.Time.Format("2006-01-02 15:04:05")...)
	buf = append(buf, ' ')
	level := levelString(record.Level)
	buf = handler.appendLevel(buf, record.Level, level)
	buf = append(buf, strings.Repeat(" ", max(1, 7-len(level)))...)
	buf = append(buf, record.Message...)
	buf = append(buf, '\n')

	keys := slices.Sorted(maps.Keys(attrs))
	for index, key := range keys {
		branch := "├─ "
		if index == len(keys)-1 {
			branch = "└─ "
		}
		buf = append(buf, "                    "...)
		buf = append(buf, branch...)
		buf = append(buf, key...)
		buf = append(buf, ": "...)
		buf = append(buf, fmt.Sprintf("%v", attrs[key])...)
		buf = append(buf, '\n')
	}
	return buf
}

// formatJSON renders one JSON object per record. Standard fields (time, level,
// msg) win over attributes with the same key.
func (handler *Handler) formatJSON(record slog.Record, attrs map[string]any) ([]byte, error) {
	data := make(map[string]any, len(attrs)+3)
	maps.Copy(data, attrs)
	data["time"] = record.Time.Format("2006-01-02T15:04:05.000Z07:00")
	data["level"] = levelString(record.Level)
	data["msg"] = record.Message

	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(encoded, '\n'), nil
}

func (handler *Handler) appendLevel(buf []byte, level slog.Level, text string) []byte {
	if !handler.colors {
		return append(buf, text...)
	}
	buf = append(buf, colorForLevel(level)...)
	buf = append(buf, text...)
	return append(buf, colorReset...)
}

// collectAttrs gathers the handler's stored attributes and the record's
// attributes into one map, applying group prefixes and secret redaction.
func (handler *Handler) collectAttrs(record slog.Record) map[string]any {
	attrs := make(map[string]any, len(handler.attrs)+record.NumAttrs())
	for _, attr := range handler.attrs {
		addAttr(attrs, attr.Key, attr.Value)
	}
	record.Attrs(func(attr slog.Attr) bool {
		addAttr(attrs, handler.qualify(attr.Key), attr.Value)
		return true
	})
	return attrs
}

// qualify prefixes key with the handler's groups, outermost first.
func (handler *Handler) qualify(key string) string {
	if len(handler.groups) == 0 {
		return key
	}
	return strings.Join(handler.groups, ".") + "." + key
}

func addAttr(attrs map[string]any, key string, value slog.Value) {
	value = value.Resolve()
	if value.Kind() == slog.KindGroup {
		for _, member := range value.Group() {
			addAttr(attrs, key+"."+member.Key, member.Value)
		}
		return
	}
	if isSecretKey(key) {
		attrs[key] = redacted
		return
	}
	attrs[key] = value.Any()
}

func isSecretKey(key string) bool {
	lowered := strings.ToLower(key)
	return slices.ContainsFunc(secretKeyFragments, func(fragment string) bool {
		return strings.Contains(lowered, fragment)
	})
}

// levelString labels level with the nearest named level at or below it.
func levelString(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return "TRACE"
	case level < slog.LevelInfo:
		return "DEBUG"
	case level < slog.LevelWarn:
		return "INFO"
	case level < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

func colorForLevel(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return colorGray
	case level < slog.LevelInfo:
		return colorBlue
	case level < slog.LevelWarn:
		return colorGreen
	case level < slog.LevelError:
		return colorYellow
	default:
		return colorRed
	}
}

func isTerminal(file *os.File) bool {
	if file == nil {
		return false
	}
	fileInfo, err := file.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
