package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		enable slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"warn level", "warn", slog.LevelWarn},
		{"error level", "error", slog.LevelError},
		{"default info", "", slog.LevelInfo},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			if !logger.Enabled(ctx, tt.enable) {
				t.Fatalf("expected level %s to be enabled", tt.enable)
			}
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	logger := Default()
	logger.Info("test message", "key", "value")

	ctx := context.Background()
	if !logger.Enabled(ctx, slog.LevelInfo) {
		t.Error("Default() should enable info level")
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("Default() should not enable debug level")
	}

	if logger2 := Default(); logger == logger2 {
		t.Error("Default() returned the same instance twice")
	}
}

func TestNewWithWritersFansOut(t *testing.T) {
	var first, second bytes.Buffer
	logger := NewWithWriters("info", &first, &second)

	logger.Info("suggestion resolved", "suggestion_id", "sugg_1")
	logger.Debug("hidden")

	for name, buf := range map[string]*bytes.Buffer{"first": &first, "second": &second} {
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 1 {
			t.Fatalf("%s: expected 1 record, got %d: %q", name, len(lines), buf.String())
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
			t.Fatalf("%s: decode record: %v", name, err)
		}
		if record["suggestion_id"] != "sugg_1" {
			t.Fatalf("%s: expected suggestion_id attribute, got %v", name, record)
		}
	}
}

func TestNewWithFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	logger := NewWithFile("info", path)
	logger.With("conversation_id", "chat_1").Info("message emitted")
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"conversation_id":"chat_1"`) {
		t.Fatalf("expected conversation_id in file output, got %q", string(data))
	}
}

func TestNewWithFileFallsBack(t *testing.T) {
	logger := NewWithFile("info", filepath.Join(t.TempDir(), "missing", "dir", "console.log"))
	if logger == nil || logger.Logger == nil {
		t.Fatal("expected stdout logger on file error")
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("close without file should be nil, got %v", err)
	}
}
