package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"invalid": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestAttributes(t *testing.T) {
	var buf bytes.Buffer
	l, id := WithRun(New(&buf, LevelDebug, FormatJSON))
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("run id %q is not a uuid: %v", id, err)
	}
	WithPhase(WithPass(l, 2), "solving").Debug("factored", "equations", 42)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["run_id"] != id {
		t.Errorf("run_id = %v, want %s", entry["run_id"], id)
	}
	if entry["pass"] != float64(2) {
		t.Errorf("pass = %v, want 2", entry["pass"])
	}
	if entry["phase"] != "solving" {
		t.Errorf("phase = %v, want solving", entry["phase"])
	}
	if entry["equations"] != float64(42) {
		t.Errorf("equations = %v, want 42", entry["equations"])
	}
}

func TestLevelFilterAndText(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn, FormatText)
	l.Info("dropped")
	l.Warn("kept", "k", "v")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info line written at WARN level: %s", out)
	}
	if !strings.Contains(out, "msg=kept") || !strings.Contains(out, "k=v") {
		t.Errorf("unexpected text output: %s", out)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	l, closeFn, err := Open(path, LevelInfo, FormatJSON)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	l.Info("hello")
	if err := closeFn(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), `"msg":"hello"`) {
		t.Errorf("log file content = %s", content)
	}

	_, closeFn, err = Open("", LevelInfo, FormatJSON)
	if err != nil || closeFn() != nil {
		t.Errorf("stderr logger: err=%v", err)
	}
}
