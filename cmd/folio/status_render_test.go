package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRenderStatusLine(t *testing.T) {
	line := renderStatusLine("Daemon", statusOK, "Running (pid 42)", false)
	if !strings.Contains(line, "[OK] Running (pid 42)") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.HasPrefix(line, statusIndent+"Daemon:") {
		t.Fatalf("expected indented label prefix, got %q", line)
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("expected no ANSI codes without colorize, got %q", line)
	}

	colored := renderStatusLine("Daemon", statusError, "Not running", true)
	if !strings.HasPrefix(colored, ansiRed) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("expected red wrapping, got %q", colored)
	}
	if !strings.Contains(colored, "[ERROR] Not running") {
		t.Fatalf("unexpected colored line: %q", colored)
	}
}

func TestStatusKindLabels(t *testing.T) {
	cases := map[statusKind]string{
		statusInfo:  "INFO",
		statusOK:    "OK",
		statusWarn:  "WARN",
		statusError: "ERROR",
	}
	for kind, want := range cases {
		if got := statusKindLabel(kind); got != want {
			t.Fatalf("kind %d: expected %q, got %q", kind, want, got)
		}
	}
}

func TestRenderSectionHeader(t *testing.T) {
	lines := renderSectionHeader("Catalog", false)
	if len(lines) != 2 {
		t.Fatalf("expected header and rule, got %v", lines)
	}
	if lines[0] != "== Catalog ==" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if lines[1] != strings.Repeat("-", len(lines[0])) {
		t.Fatalf("unexpected rule: %q", lines[1])
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(&bytes.Buffer{}) {
		t.Fatal("expected buffers to disable color")
	}
}
