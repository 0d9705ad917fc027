// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerNonTerminalWritesJSON(t *testing.T) {
	var buffer bytes.Buffer
	logger := NewLogger(&buffer, slog.LevelInfo)
	logger.Info("session spawned", "session", 3)
	logger.Debug("filtered")

	lines := strings.Split(strings.TrimSpace(buffer.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buffer.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if record["msg"] != "session spawned" || record["session"] != float64(3) {
		t.Errorf("record = %v", record)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for name, want := range tests {
		got, err := ParseLevel(name)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel(loud) succeeded")
	}
}

func TestOpenLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mux.log")
	logger, closer, err := OpenLogFile(path, slog.LevelInfo)
	if err != nil {
		t.Fatalf("OpenLogFile() = %v", err)
	}
	logger.Info("listening")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"listening"`) {
		t.Errorf("log file = %q", data)
	}

	_, closer, err = OpenLogFile("", slog.LevelInfo)
	if err != nil || closer != nil {
		t.Errorf("OpenLogFile(\"\") = %v, %v; want stderr logger and nil closer", closer, err)
	}
}
