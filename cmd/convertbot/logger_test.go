package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"convert_bot/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, parseLevel(tt.in)); diff != "" {
				t.Errorf("parseLevel(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestNewLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger("warn", &buf)

	log.Info("quiet")
	log.Warn("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, "loud") {
		t.Errorf("warn record missing: %s", out)
	}
}

func TestNewLogWriterRotatesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	w := newLogWriter(&config.Config{LogFile: path, LogMaxSizeMB: 1, LogMaxBackups: 1, LogMaxAgeDays: 1})

	log := newLogger("info", w)
	log.Info("processing comment", "id", "abc")
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "id=abc") {
		t.Errorf("log file missing record: %s", data)
	}
}

func TestNewLogWriterDefaultsToStderr(t *testing.T) {
	w := newLogWriter(&config.Config{})
	nc, ok := w.(nopCloser)
	if !ok {
		t.Fatalf("writer = %T, want nopCloser", w)
	}
	if nc.Writer != os.Stderr {
		t.Error("writer is not stderr")
	}
	if err := w.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}
