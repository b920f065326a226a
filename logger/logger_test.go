package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_LogConfiguration_logLevel(t *testing.T) {
	cases := []struct {
		level string
		want  slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info+2", slog.LevelInfo + 2},
		{"none", levelNone},
		{"off", levelNone},
	}
	for _, tc := range cases {
		cfg := &LogConfiguration{Level: tc.level}
		cfg.initDefaults()
		level, err := cfg.logLevel()
		require.NoError(t, err, "level %q", tc.level)
		require.Equal(t, tc.want, level, "level %q", tc.level)
	}

	cfg := &LogConfiguration{Level: "loud"}
	_, err := cfg.logLevel()
	require.ErrorContains(t, err, `unknown log level "loud"`)
}

func Test_New_unknownFormat(t *testing.T) {
	_, err := NewForWriter(&LogConfiguration{Format: "xml"}, bytes.NewBuffer(nil))
	require.ErrorContains(t, err, `unknown log format "xml"`)
}

func Test_New_levelFiltering(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	log, err := NewForWriter(&LogConfiguration{Level: "warning", Format: "text"}, buf)
	require.NoError(t, err)

	log.Info("quiet")
	require.Empty(t, buf.String())
	log.Warn("loud")
	require.Contains(t, buf.String(), "loud")
}

func Test_New_ECSFormat(t *testing.T) {
	noGoID := false
	buf := bytes.NewBuffer(nil)
	log, err := NewForWriter(&LogConfiguration{
		Format:          "ecs",
		TimeFormat:      "none",
		ShowGoroutineID: &noGoID,
	}, buf)
	require.NoError(t, err)

	log.Info("hello", Error(errors.New("boom")), BufferID(7))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "hello", rec["message"])
	require.Equal(t, "1.6.0", rec["ecs.version"])
	require.Equal(t, map[string]any{"message": "boom"}, rec["error"])
	require.Equal(t, map[string]any{"id": float64(7)}, rec["buffer"])
	require.Contains(t, rec, "log", "expected the origin of the record")
}

func Test_New_consoleFormat(t *testing.T) {
	noGoID := false

	t.Run("plain output", func(t *testing.T) {
		buf := bytes.NewBuffer(nil)
		log, err := NewForWriter(&LogConfiguration{
			Format:          "console",
			TimeFormat:      "none",
			ConsoleNoColor:  true,
			ShowGoroutineID: &noGoID,
		}, buf)
		require.NoError(t, err)

		log.Info("allocated buffer", BufferID(3), slog.Int("byteLength", 16))
		require.Equal(t, "INF allocated buffer buffer_id=3 byteLength=16\n", buf.String())
	})

	t.Run("colored output", func(t *testing.T) {
		buf := bytes.NewBuffer(nil)
		log, err := NewForWriter(&LogConfiguration{
			Format:          "console",
			TimeFormat:      "none",
			ShowGoroutineID: &noGoID,
		}, buf)
		require.NoError(t, err)

		log.Warn("careful")
		require.Contains(t, buf.String(), ansiYellow+"WRN"+ansiReset)
	})

	t.Run("groups flatten to dotted keys", func(t *testing.T) {
		buf := bytes.NewBuffer(nil)
		log, err := NewForWriter(&LogConfiguration{
			Format:          "console",
			TimeFormat:      "none",
			ConsoleNoColor:  true,
			ShowGoroutineID: &noGoID,
		}, buf)
		require.NoError(t, err)

		log.WithGroup("view").With(slog.String("kind", "uint8")).Info("created", slog.Int("length", 8))
		require.Equal(t, "INF created view.kind=uint8 view.length=8\n", buf.String())
	})
}

func Test_New_textFormat_dataAsJSON(t *testing.T) {
	noGoID := false
	buf := bytes.NewBuffer(nil)
	log, err := NewForWriter(&LogConfiguration{
		Format:          "text",
		TimeFormat:      "none",
		ShowGoroutineID: &noGoID,
	}, buf)
	require.NoError(t, err)

	type payload struct {
		Kind string `json:"kind"`
	}
	log.Info("created", Data(payload{Kind: "uint8"}))
	require.Contains(t, buf.String(), `\"kind\":\"uint8\"`)
}

func Test_New_minimalFormat(t *testing.T) {
	noGoID := false
	buf := bytes.NewBuffer(nil)
	log, err := NewForWriter(&LogConfiguration{
		Format:          "minimal",
		ShowGoroutineID: &noGoID,
	}, buf)
	require.NoError(t, err)

	log.Error("that failed", Error(errors.New("boom")), Data(42))
	out := buf.String()
	require.Contains(t, out, "that failed")
	require.Contains(t, out, "boom")
	require.NotContains(t, out, "data")
	require.NotContains(t, out, "time")
}

func Test_goroutineID(t *testing.T) {
	require.NotZero(t, goroutineID())

	buf := bytes.NewBuffer(nil)
	log, err := NewForWriter(&LogConfiguration{Format: "text", TimeFormat: "none"}, buf)
	require.NoError(t, err)
	log.Info("hi")
	require.Contains(t, buf.String(), GoIDKey+"=")
}
