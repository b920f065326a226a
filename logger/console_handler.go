package logger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

const (
	ansiReset   = "\x1b[0m"
	ansiFaint   = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
	ansiBoldRed = "\x1b[1;31m"
)

/*
consoleHandler renders records as single human readable lines, meant
for interactive use rather than log collection:

	15:04:05.0000 INF allocated external buffer of 16 bytes buffer_id=1
*/
type consoleHandler struct {
	level      slog.Leveler
	colors     bool
	timeFormat string

	mu  *sync.Mutex
	out io.Writer

	group string // dotted key prefix opened by WithGroup
	attrs []byte // attrs preformatted by WithAttrs
}

func newConsoleHandler(out io.Writer, level slog.Leveler, colors bool, timeFormat string) *consoleHandler {
	return &consoleHandler{
		level:      level,
		colors:     colors,
		timeFormat: timeFormat,
		mu:         &sync.Mutex{},
		out:        out,
	}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	if h.timeFormat != "none" && !r.Time.IsZero() {
		buf = r.Time.AppendFormat(buf, h.timeFormat)
		buf = append(buf, ' ')
	}
	buf = append(buf, h.levelTag(r.Level)...)
	buf = append(buf, ' ')
	buf = append(buf, r.Message...)
	buf = append(buf, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		buf = h.appendAttr(buf, h.group, a)
		return true
	})
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf)
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	buf := append([]byte(nil), h.attrs...)
	for _, a := range attrs {
		buf = h2.appendAttr(buf, h.group, a)
	}
	h2.attrs = buf
	return &h2
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	if h.group == "" {
		h2.group = name
	} else {
		h2.group = h.group + "." + name
	}
	return &h2
}

func (h *consoleHandler) appendAttr(buf []byte, group string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	key := a.Key
	if group != "" {
		if key == "" {
			key = group
		} else {
			key = group + "." + key
		}
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			buf = h.appendAttr(buf, key, ga)
		}
		return buf
	}

	buf = append(buf, ' ')
	switch {
	case h.colors && a.Key == ErrorKey:
		buf = append(buf, ansiRed...)
		buf = append(buf, key...)
		buf = append(buf, '=')
		buf = appendValue(buf, a.Value)
		buf = append(buf, ansiReset...)
	case h.colors:
		buf = append(buf, ansiFaint...)
		buf = append(buf, key...)
		buf = append(buf, '=')
		buf = append(buf, ansiReset...)
		buf = appendValue(buf, a.Value)
	default:
		buf = append(buf, key...)
		buf = append(buf, '=')
		buf = appendValue(buf, a.Value)
	}
	return buf
}

func appendValue(buf []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindString:
		return appendString(buf, v.String())
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return appendString(buf, err.Error())
		}
		if b, err := json.Marshal(v.Any()); err == nil {
			return append(buf, b...)
		}
	}
	return append(buf, v.String()...)
}

func appendString(buf []byte, s string) []byte {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}

func (h *consoleHandler) levelTag(level slog.Level) string {
	var tag, color string
	switch {
	case level >= slog.LevelError:
		tag, color = "ERR", ansiBoldRed
	case level >= slog.LevelWarn:
		tag, color = "WRN", ansiYellow
	case level >= slog.LevelInfo:
		tag, color = "INF", ansiGreen
	case level >= slog.LevelDebug:
		tag, color = "DBG", ansiCyan
	default:
		tag, color = "TRC", ansiMagenta
	}
	if !h.colors {
		return tag
	}
	return color + tag + ansiReset
}
