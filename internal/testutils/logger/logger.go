package logger

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/scripthost/extmem/logger"
)

// Env var to disable ANSI colors in the test loggers' console output,
// handy when the terminal (or CI log viewer) doesn't support colors.
const envLogNoColors = "EXTMEM_TEST_LOG_NO_COLORS"

// NOP returns a logger which discards everything. Use it for tests
// where the log output is of no interest.
func NOP() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(10000)}))
}

// New returns a debug level logger which logs through t so the output
// shows up only when the test fails (or -v is given).
func New(t testing.TB) *slog.Logger {
	return NewLvl(t, slog.LevelDebug)
}

func NewLvl(t testing.TB, level slog.Level) *slog.Logger {
	cfg := defaultLogCfg()
	cfg.Level = level.String()
	log, err := logger.NewForWriter(cfg, newTestWriter(t))
	if err != nil {
		t.Fatalf("creating logger: %v", err)
		return nil
	}
	return log
}

/*
LoggerBuilder returns a factory for configuration based loggers which
log through t. Unset configuration means test defaults.
*/
func LoggerBuilder(t testing.TB) func(*logger.LogConfiguration) (*slog.Logger, error) {
	return func(cfg *logger.LogConfiguration) (*slog.Logger, error) {
		if cfg == nil {
			cfg = defaultLogCfg()
		}
		return logger.NewForWriter(cfg, newTestWriter(t))
	}
}

func defaultLogCfg() *logger.LogConfiguration {
	noColors, _ := strconv.ParseBool(os.Getenv(envLogNoColors))
	return &logger.LogConfiguration{
		Level:          "debug",
		Format:         "console",
		TimeFormat:     "15:04:05.0000",
		ConsoleNoColor: noColors,
	}
}

/*
testWriter routes log output through t.Log. Writes arriving after the
test has ended are dropped instead of panicking, buffer finalizers can
fire from a later test's garbage collection cycle.
*/
type testWriter struct {
	t      testing.TB
	closed *atomic.Bool
}

func newTestWriter(t testing.TB) *testWriter {
	tw := &testWriter{t: t, closed: &atomic.Bool{}}
	t.Cleanup(func() { tw.closed.Store(true) })
	return tw
}

func (tw *testWriter) Write(p []byte) (int, error) {
	if !tw.closed.Load() {
		tw.t.Log(strings.TrimSuffix(string(p), "\n"))
	}
	return len(p), nil
}
