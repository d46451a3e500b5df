package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"folio/internal/config"
)

func writeMinimalConfig(t *testing.T, dir string, mutate func(map[string]any)) string {
	t.Helper()
	payload := map[string]any{
		"source": map[string]any{"base_url": "https://catalog.test/api"},
		"mirror": map[string]any{"base_url": "https://mirror.test/api"},
	}
	if mutate != nil {
		mutate(payload)
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config payload: %v", err)
	}
	path := filepath.Join(dir, "folio.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config payload: %v", err)
	}
	return path
}

func TestLoadExpandsPathsAndEnsuresDirectories(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	path := writeMinimalConfig(t, t.TempDir(), nil)
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, path)
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "folio", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Paths.LibraryDir != filepath.Join(tempHome, "library") {
		t.Fatalf("unexpected library dir: %q", cfg.Paths.LibraryDir)
	}
	if cfg.ShelfServerEnabled() {
		t.Fatal("expected shelf server disabled by default")
	}
	if cfg.Pipeline.Workers != config.Default().Pipeline.Workers {
		t.Fatalf("unexpected worker count: %d", cfg.Pipeline.Workers)
	}
	if cfg.Quota.CacheTTLMinutes != 5 {
		t.Fatalf("unexpected quota cache ttl: %d", cfg.Quota.CacheTTLMinutes)
	}
	if got := cfg.Mirror.PreferredLanguages; len(got) != 1 || got[0] != "en" {
		t.Fatalf("unexpected preferred languages: %v", got)
	}
	if cfg.DatabasePath() != filepath.Join(cfg.Paths.DataDir, "catalog.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.SocketPath() != filepath.Join(cfg.Paths.LogDir, "folio.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.SocketPath())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.StagingDir, cfg.Paths.LogDir, cfg.Paths.LibraryDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadWithoutSourceURLFails(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	_, _, _, err := config.Load("")
	if err == nil {
		t.Fatal("expected error when source.base_url is missing")
	}
	if !strings.Contains(err.Error(), "source.base_url") {
		t.Fatalf("expected error to name source.base_url, got %v", err)
	}
}

func TestLoadCustomPathOverrides(t *testing.T) {
	path := writeMinimalConfig(t, t.TempDir(), func(payload map[string]any) {
		payload["pipeline"] = map[string]any{
			"workers":            2,
			"heartbeat_interval": 20,
			"heartbeat_timeout":  200,
		}
		payload["mirror"] = map[string]any{
			"base_url":          "https://mirror.test/api",
			"preferred_formats": []string{"PDF", " epub ", "pdf"},
		}
		payload["logging"] = map[string]any{"format": "JSON"}
	})

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if cfg.Pipeline.Workers != 2 {
		t.Fatalf("expected 2 workers, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.HeartbeatInterval != 20 || cfg.Pipeline.HeartbeatTimeout != 200 {
		t.Fatalf("unexpected heartbeat settings: %d/%d", cfg.Pipeline.HeartbeatInterval, cfg.Pipeline.HeartbeatTimeout)
	}
	if got := cfg.Mirror.PreferredFormats; len(got) != 2 || got[0] != "pdf" || got[1] != "epub" {
		t.Fatalf("expected formats normalized and deduplicated, got %v", got)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json log format, got %q", cfg.Logging.Format)
	}
}

func TestEnvVarOverridesConfigFileForAPIKeys(t *testing.T) {
	path := writeMinimalConfig(t, t.TempDir(), func(payload map[string]any) {
		payload["source"] = map[string]any{
			"base_url": "https://catalog.test/api",
			"api_key":  "file-source",
		}
		payload["mirror"] = map[string]any{
			"base_url": "https://mirror.test/api",
			"api_key":  "file-mirror",
		}
		payload["shelf"] = map[string]any{
			"url":     "https://shelf.test",
			"api_key": "file-shelf",
		}
	})

	t.Setenv("FOLIO_SOURCE_API_KEY", "env-source")
	t.Setenv("FOLIO_MIRROR_API_KEY", "env-mirror")
	t.Setenv("FOLIO_SHELF_API_KEY", "env-shelf")

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Source.APIKey != "env-source" {
		t.Errorf("expected source key from env, got %q", cfg.Source.APIKey)
	}
	if cfg.Mirror.APIKey != "env-mirror" {
		t.Errorf("expected mirror key from env, got %q", cfg.Mirror.APIKey)
	}
	if cfg.Shelf.APIKey != "env-shelf" {
		t.Errorf("expected shelf key from env, got %q", cfg.Shelf.APIKey)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "your_mirror_api_key_here") {
		t.Fatalf("sample config missing placeholder mirror key: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}

	if runtime.GOOS != "windows" {
		if !strings.Contains(cfg.Paths.StagingDir, "folio") {
			t.Fatalf("expected staging dir to contain folio, got %q", cfg.Paths.StagingDir)
		}
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Default()
		cfg.Source.BaseURL = "https://catalog.test/api"
		cfg.Mirror.BaseURL = "https://mirror.test/api"
		return cfg
	}

	cfg := valid()
	cfg.Pipeline.Workers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive workers")
	}

	cfg = valid()
	cfg.Pipeline.HeartbeatTimeout = cfg.Pipeline.HeartbeatInterval
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when heartbeat timeout <= interval")
	}

	cfg = valid()
	cfg.Pipeline.RetryBackoffCap = cfg.Pipeline.RetryBackoffBase - 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when backoff cap < base")
	}

	cfg = valid()
	cfg.Quota.CacheTTLMinutes = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive quota cache ttl")
	}

	cfg = valid()
	cfg.Shelf.URL = "https://shelf.test"
	cfg.Shelf.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when shelf url set without api key")
	}

	cfg = valid()
	cfg.Maintenance.TaskCleanupCron = "not a cron"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for malformed cron expression")
	}
}
