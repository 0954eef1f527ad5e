package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/oggyb/npc-swipe/internal/config"
)

// initBuffered points the global logger at a buffer for the duration of the test.
func initBuffered(t *testing.T, c Config) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	c.Output = &buf
	Init(&c)
	t.Cleanup(func() { Init(&Config{Level: "info", Format: FormatText}) })
	return &buf
}

func TestLogger_TextFormat(t *testing.T) {
	buf := initBuffered(t, Config{Level: "debug", Format: FormatText, Component: "test"})
	Info("profile served", "profile_id", "lya")

	out := buf.String()
	if !strings.Contains(out, "profile served") {
		t.Errorf("expected message, got: %s", out)
	}
	if !strings.Contains(out, "component=test") {
		t.Errorf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, "profile_id=lya") {
		t.Errorf("expected structured field, got: %s", out)
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	buf := initBuffered(t, Config{Level: "info", Format: FormatJSON, Component: "json_test"})
	Info("json log", "foo", "bar")

	out := buf.String()
	if !strings.Contains(out, `"msg":"json log"`) {
		t.Errorf("expected JSON message, got: %s", out)
	}
	if !strings.Contains(out, `"component":"json_test"`) {
		t.Errorf("expected component in JSON, got: %s", out)
	}
	if !strings.Contains(out, `"foo":"bar"`) {
		t.Errorf("expected structured field in JSON, got: %s", out)
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	buf := initBuffered(t, Config{Level: "error", Format: FormatText})
	Info("should not appear")
	Error("should appear")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("info log should not appear, got: %s", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("error log should appear, got: %s", out)
	}
}

func TestLogger_ForSessionAddsCorrelation(t *testing.T) {
	buf := initBuffered(t, Config{Level: "debug", Format: FormatText})
	ForSession(nil, "abc-123", "u1").Info("advance")

	out := buf.String()
	if !strings.Contains(out, "session_id=abc-123") || !strings.Contains(out, "user_id=u1") {
		t.Errorf("expected correlation fields, got: %s", out)
	}
}

func TestLogger_InitFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Log.Level = "warn"
	cfg.Log.Format = "json"
	cfg.Log.Component = "cfg_test"

	InitFromConfig(cfg)
	t.Cleanup(func() { Init(&Config{Level: "info", Format: FormatText}) })

	// level comes from config, output is stdout; only check the logger honours the level
	if L().Enabled(context.Background(), slog.LevelDebug) {
		t.Errorf("debug should be disabled at warn level")
	}
}
