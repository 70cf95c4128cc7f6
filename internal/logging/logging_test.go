package logging

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
		ok       bool
	}{
		{"debug", LevelDebug, true},
		{"info", LevelInfo, true},
		{"warn", LevelWarn, true},
		{"warning", LevelWarn, true},
		{"ERROR", LevelError, true},
		{"  Debug ", LevelDebug, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseLevel(tt.input)
			if got != tt.expected || ok != tt.ok {
				t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	tests := map[LogLevel]string{
		LevelDebug:   "debug",
		LevelInfo:    "info",
		LevelWarn:    "warn",
		LevelError:   "error",
		LogLevel(42): "unknown(42)",
	}
	for lvl, want := range tests {
		if got := lvl.String(); got != want {
			t.Errorf("LogLevel(%d).String() = %q, want %q", int(lvl), got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	prev := GetLevel()
	defer SetLevel(prev)

	SetLevel(LevelWarn)
	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below WARN were written: %q", out)
	}
	if !strings.Contains(out, "[WARN] warn message") {
		t.Errorf("missing warn message in %q", out)
	}
	if !strings.Contains(out, "[ERROR] error message") {
		t.Errorf("missing error message in %q", out)
	}
	if IsDebugEnabled() {
		t.Error("IsDebugEnabled() = true at WARN level")
	}
}

func TestConfigureRejectsUnknownLevel(t *testing.T) {
	if err := Configure(Options{Level: "chatty"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestConfigureWritesLogFile(t *testing.T) {
	prev := GetLevel()
	defer SetLevel(prev)

	path := filepath.Join(t.TempDir(), "logs", "atelier.log")
	if err := Configure(Options{Level: "info", File: path, MaxSizeMB: 1}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	Info("written to file %d", 7)

	if err := Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "[INFO] written to file 7") {
		t.Errorf("log file content = %q", string(data))
	}
}
