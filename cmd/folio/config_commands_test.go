package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	target := filepath.Join(dir, "config.toml")

	stdout, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	requireContains(t, stdout, "Wrote sample configuration to "+target)

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config at %s: %v", target, err)
	}

	_, _, err = runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}

	stdout, _, err = runCLI(t, []string{"config", "validate"}, "", target)
	if err != nil {
		t.Fatalf("config validate failed: %v", err)
	}
	requireContains(t, stdout, "Configuration valid")
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	target := filepath.Join(dir, "config.toml")
	content := strings.Join([]string{
		`[source]`,
		`base_url = "https://catalog.example.org"`,
		`api_key = "super-secret"`,
		``,
		`[mirror]`,
		`base_url = "https://mirror.example.org"`,
	}, "\n")
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	stdout, _, err := runCLI(t, []string{"config", "show"}, "", target)
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	requireContains(t, stdout, "<redacted>")
	if strings.Contains(stdout, "super-secret") {
		t.Fatalf("expected api key to be redacted, got %q", stdout)
	}
	requireContains(t, stdout, "https://catalog.example.org")
}
