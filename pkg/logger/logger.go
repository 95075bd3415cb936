// Package logger builds the process-wide slog.Logger. Interactive runs get a
// charmbracelet text handler; servers typically switch to the JSON handler,
// whose entries promote the engine's correlation keys (component, session_id,
// story, channel) into fixed columns so log pipelines can index them without
// parsing the free-form field map.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"

	"storyline/pkg/config"
)

const (
	defaultFormat = "text"
	defaultLevel  = "info"
)

// LogEntry is the JSON handler's line shape. Component, SessionID, Story, and
// Channel are lifted out of Fields when present.
type LogEntry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"timestamp"`
	Component string         `json:"component,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Story     string         `json:"story,omitempty"`
	Channel   string         `json:"channel,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

// settings is the logging configuration after file values, defaults, and
// STORYLINE_LOG_* environment overrides are reconciled.
type settings struct {
	format    string
	level     slog.Level
	addSource bool
}

// New builds the logger described by cfg, writing to stderr.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr)
}

func newWithWriter(cfg config.LoggingConfig, writer io.Writer) (*slog.Logger, error) {
	resolved, err := resolveSettings(cfg)
	if err != nil {
		return nil, err
	}

	if resolved.format == "json" {
		return newJSONLogger(resolved, writer), nil
	}
	return newTextLogger(resolved, writer), nil
}

// resolveSettings layers environment overrides over the file configuration.
// The environment wins so operators can retune a running deployment without
// editing config.json.
func resolveSettings(cfg config.LoggingConfig) (settings, error) {
	format := firstNonEmpty(os.Getenv("STORYLINE_LOG_FORMAT"), cfg.Format, defaultFormat)
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "json" && format != "text" {
		return settings{}, fmt.Errorf("unsupported log format %q", format)
	}

	levelText := firstNonEmpty(os.Getenv("STORYLINE_LOG_LEVEL"), cfg.Level, defaultLevel)
	level, err := parseLevel(levelText)
	if err != nil {
		return settings{}, err
	}

	addSource := cfg.AddSource
	if env := strings.TrimSpace(os.Getenv("STORYLINE_LOG_ADD_SOURCE")); env != "" {
		parsed, err := strconv.ParseBool(env)
		if err != nil {
			return settings{}, fmt.Errorf("invalid STORYLINE_LOG_ADD_SOURCE %q: %w", env, err)
		}
		addSource = parsed
	}

	return settings{format: format, level: level, addSource: addSource}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func parseLevel(input string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", input)
	}
}

func newTextLogger(resolved settings, writer io.Writer) *slog.Logger {
	pretty := charmLog.NewWithOptions(writer, charmLog.Options{
		Level:           charmLevel(resolved.level),
		ReportTimestamp: true,
		ReportCaller:    resolved.addSource,
		Formatter:       charmLog.TextFormatter,
	})
	return slog.New(pretty)
}

func newJSONLogger(resolved settings, writer io.Writer) *slog.Logger {
	return slog.New(&entryHandler{
		level:     resolved.level,
		addSource: resolved.addSource,
		writer:    writer,
		mu:        &sync.Mutex{},
	})
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}

// entryHandler renders slog records as LogEntry JSON lines.
type entryHandler struct {
	level     slog.Level
	addSource bool
	writer    io.Writer
	attrs     []slog.Attr
	groups    []string
	mu        *sync.Mutex
}

func (h *entryHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *entryHandler) Handle(_ context.Context, record slog.Record) error {
	entry := LogEntry{
		Level:     strings.ToLower(record.Level.String()),
		Timestamp: record.Time.UTC().Format(time.RFC3339Nano),
		Message:   record.Message,
	}
	if record.Time.IsZero() {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	fields := make(map[string]any)

	for _, attr := range h.attrs {
		h.applyAttr(fields, &entry, attr)
	}

	record.Attrs(func(attr slog.Attr) bool {
		h.applyAttr(fields, &entry, attr)
		return true
	})

	if len(fields) > 0 {
		entry.Fields = fields
	}

	if h.addSource {
		entry.Caller = callerFromRecord(record)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(append(line, '\n'))
	return err
}

func (h *entryHandler) applyAttr(fields map[string]any, entry *LogEntry, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	key := attr.Key
	if len(h.groups) > 0 {
		key = strings.Join(append(append([]string{}, h.groups...), attr.Key), ".")
	}

	// Correlation keys become fixed columns; promotion only applies to
	// string values so a conflicting type falls through to Fields.
	if column := promotedColumn(entry, key); column != nil {
		if value, ok := attr.Value.Any().(string); ok {
			*column = value
			return
		}
	}

	fields[key] = attrValue(attr.Value)
}

// promotedColumn maps a correlation key to its LogEntry column, or nil when
// the key stays in the field map.
func promotedColumn(entry *LogEntry, key string) *string {
	switch key {
	case "component":
		return &entry.Component
	case "session_id":
		return &entry.SessionID
	case "story":
		return &entry.Story
	case "channel":
		return &entry.Channel
	default:
		return nil
	}
}

func callerFromRecord(record slog.Record) string {
	if record.PC == 0 {
		return ""
	}

	frame, _ := runtime.CallersFrames([]uintptr{record.PC}).Next()
	if frame.File == "" {
		return ""
	}

	return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
}

func attrValue(value slog.Value) any {
	switch value.Kind() {
	case slog.KindString:
		return value.String()
	case slog.KindInt64:
		return value.Int64()
	case slog.KindUint64:
		return value.Uint64()
	case slog.KindFloat64:
		return value.Float64()
	case slog.KindBool:
		return value.Bool()
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := value.Group()
		result := make(map[string]any, len(group))
		for _, item := range group {
			result[item.Key] = attrValue(item.Value.Resolve())
		}
		return result
	case slog.KindAny:
		return value.Any()
	default:
		return value.String()
	}
}

func (h *entryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *entryHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}
