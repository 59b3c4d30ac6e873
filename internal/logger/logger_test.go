package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{" info ", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"off", LevelNone},
		{"none", LevelNone},
		{"invalid", LevelInfo}, // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(LevelWarn, &buf, "")

	l.Debug("hidden debug")
	l.Info("hidden info")
	l.Warn("visible %d", 1)
	l.Error("visible %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] visible 1") || !strings.Contains(out, "[ERROR] visible 2") {
		t.Fatalf("missing warn/error lines in %q", out)
	}
}

func TestForNodeSharesSinkAndScopesPrefix(t *testing.T) {
	var buf bytes.Buffer
	root := NewWriter(LevelDebug, &buf, "orchestrator")
	scoped := root.ForNode("completion", "0123456789abcdef")

	scoped.Info("started")
	if !strings.Contains(buf.String(), "[orchestrator:completion 01234567] started") {
		t.Fatalf("unexpected prefix in %q", buf.String())
	}

	root.SetLevel(LevelError)
	buf.Reset()
	scoped.Info("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("derived logger should follow parent level, got %q", buf.String())
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "canvaschat.log")
	l, err := New(LevelInfo, path, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Info("hello")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "[INFO] [test] hello") {
		t.Fatalf("unexpected file content %q", data)
	}
}

func TestNewWithoutPathDiscards(t *testing.T) {
	l, err := New(LevelDebug, "", "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if l.GetLevel() != LevelNone {
		t.Fatalf("expected LevelNone, got %v", l.GetLevel())
	}
}

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(LevelInfo, &buf, "web")
	s := Slog(l).With("client", "abc").WithGroup("req")

	s.Debug("dropped")
	s.Info("upgrade", "path", "/ws")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("debug record should be filtered: %q", out)
	}
	if !strings.Contains(out, "upgrade client=abc req.path=/ws") {
		t.Fatalf("unexpected slog output %q", out)
	}
	if !NewSlogHandler(l).Enabled(context.Background(), slog.LevelWarn) {
		t.Fatalf("warn should be enabled")
	}
}
