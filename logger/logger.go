package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// levelNone is used to turn the logging off.
const levelNone = slog.Level(10000)

/*
LogConfiguration describes the logger setup. The zero value is usable,
it logs info and above as text to stderr.
*/
type LogConfiguration struct {
	// Level is the minimum record level to output, one of the slog
	// level names ("debug", "info", "warn", "error", offsets like
	// "info+2" work too) or "none" to disable output.
	Level string `yaml:"defaultLevel"`
	// Format selects the output format: text, json, console, ecs or
	// minimal.
	Format string `yaml:"format"`
	// OutputPath is the destination: stdout, stderr, discard or a file
	// name (opened in append mode).
	OutputPath string `yaml:"outputPath"`
	// TimeFormat overrides the handler's time format (a time.Layout
	// string), "none" drops the timestamp.
	TimeFormat string `yaml:"timeFormat"`
	// ShowGoroutineID attaches the id of the goroutine which created
	// the record. On unless disabled.
	ShowGoroutineID *bool `yaml:"showGoroutineID"`
	// ConsoleNoColor disables ANSI colors in the console format.
	ConsoleNoColor bool `yaml:"consoleNoColor"`
}

// New builds a logger writing to the destination named by
// cfg.OutputPath.
func New(cfg *LogConfiguration) (*slog.Logger, error) {
	out, err := cfg.output()
	if err != nil {
		return nil, fmt.Errorf("opening log output: %w", err)
	}
	return NewForWriter(cfg, out)
}

// NewForWriter builds a logger writing to out, cfg.OutputPath is
// ignored. Mostly useful for tests which want to capture the output.
func NewForWriter(cfg *LogConfiguration, out io.Writer) (*slog.Logger, error) {
	h, err := cfg.handler(out)
	if err != nil {
		return nil, fmt.Errorf("building logger handler: %w", err)
	}
	return slog.New(h), nil
}

func (cfg *LogConfiguration) initDefaults() {
	if cfg.Level == "" {
		cfg.Level = slog.LevelInfo.String()
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = "stderr"
	}
}

func (cfg *LogConfiguration) handler(out io.Writer) (slog.Handler, error) {
	cfg.initDefaults()
	level, err := cfg.logLevel()
	if err != nil {
		return nil, err
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		h = slog.NewTextHandler(out, &slog.HandlerOptions{
			AddSource:   true,
			Level:       level,
			ReplaceAttr: composeAttrFmt(formatTimeAttr(cfg.TimeFormat), formatDataAttrAsJSON),
		})
	case "json":
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{
			AddSource:   true,
			Level:       level,
			ReplaceAttr: formatTimeAttr(cfg.TimeFormat),
		})
	case "console":
		h = newConsoleHandler(out, level, !cfg.ConsoleNoColor, cfg.consoleTimeFormat())
	case "ecs":
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{
			AddSource:   true,
			Level:       level,
			ReplaceAttr: composeAttrFmt(formatTimeAttr(cfg.TimeFormat), formatAttrECS),
		})
		h = h.WithAttrs([]slog.Attr{slog.String("ecs.version", "1.6.0")})
	case "minimal":
		h = slog.NewTextHandler(out, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: composeAttrFmt(formatTimeAttr("none"), formatAttrMinimal),
		})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.ShowGoroutineID == nil || *cfg.ShowGoroutineID {
		h = goIDHandler{h}
	}
	return h, nil
}

func (cfg *LogConfiguration) logLevel() (slog.Level, error) {
	name := strings.TrimSpace(cfg.Level)
	switch strings.ToLower(name) {
	case "none", "off":
		return levelNone, nil
	case "warning":
		return slog.LevelWarn, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("unknown log level %q: %w", cfg.Level, err)
	}
	return level, nil
}

func (cfg *LogConfiguration) output() (io.Writer, error) {
	cfg.initDefaults()
	switch cfg.OutputPath {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "discard":
		return io.Discard, nil
	}
	f, err := os.OpenFile(cfg.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening log file %q: %w", cfg.OutputPath, err)
	}
	return f, nil
}

func (cfg *LogConfiguration) consoleTimeFormat() string {
	if cfg.TimeFormat == "" {
		return "15:04:05.0000"
	}
	return cfg.TimeFormat
}

/*
goIDHandler decorates every record with the id of the goroutine which
created it.
*/
type goIDHandler struct {
	slog.Handler
}

func (h goIDHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(slog.Uint64(GoIDKey, goroutineID()))
	return h.Handler.Handle(ctx, r)
}

func (h goIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return goIDHandler{h.Handler.WithAttrs(attrs)}
}

func (h goIDHandler) WithGroup(name string) slog.Handler {
	return goIDHandler{h.Handler.WithGroup(name)}
}

/*
goroutineID parses the current goroutine's id out of the stack dump
header, which reads "goroutine 123 [running]:". There is no faster
officially supported way to get it.
*/
func goroutineID() uint64 {
	var buf [32]byte
	n := runtime.Stack(buf[:], false)
	s := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	if i := strings.IndexByte(s, ' '); i > 0 {
		if id, err := strconv.ParseUint(s[:i], 10, 64); err == nil {
			return id
		}
	}
	return 0
}
