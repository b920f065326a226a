package logger

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/scripthost/extmem/logger"
)

func Test_logger_for_tests(t *testing.T) {
	t.Skip("this test is only for visually checking the output")

	t.Run("first", func(t *testing.T) {
		l := New(t)
		l.Error("now thats really bad", logger.Error(fmt.Errorf("what now")))
		l.Warn("going to tell it just once")
		l.Info("so you know")
		l.Debug("lets investigate")
		t.Error("calling t.Error causes the test to fail")
	})

	t.Run("second", func(t *testing.T) {
		l := NewLvl(t, slog.LevelInfo)
		l.Error("now thats really bad", logger.Error(fmt.Errorf("what now")))
		l.Warn("going to tell it just once")
		l.Info("so you know")
		t.Log("this is INFO level logger so Debug call should not show up")
		l.Debug("this shouldn't show up in the log")
		t.Fail()
	})
}

func Test_logger_for_tests_color(t *testing.T) {
	t.Skip("this test is only for visually checking the output")

	t.Run("colors disabled", func(t *testing.T) {
		t.Setenv(envLogNoColors, "true")

		l := New(t)
		l.Error("now thats really bad", logger.Error(fmt.Errorf("what now")))
		l.Warn("going to tell it just once")
		l.Info("so you know")
		l.Debug("lets investigate")
		t.Error("calling t.Error causes the test to fail")
	})

	t.Run("colors enabled", func(t *testing.T) {
		t.Setenv(envLogNoColors, "false")

		l := New(t)
		l.Error("now thats really bad", logger.Error(fmt.Errorf("what now")))
		l.Warn("going to tell it just once")
		l.Info("so you know")
		l.Debug("lets investigate")
		t.Error("calling t.Error causes the test to fail")
	})
}

func Test_logger_builder_defaults(t *testing.T) {
	b := LoggerBuilder(t)

	log, err := b(nil)
	if err != nil {
		t.Fatalf("building logger with nil cfg: %v", err)
	}
	log.Debug("debug is on by default")

	log, err = b(&logger.LogConfiguration{Level: "error", Format: "minimal"})
	if err != nil {
		t.Fatalf("building logger with explicit cfg: %v", err)
	}
	if log.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info level to be disabled")
	}
}
