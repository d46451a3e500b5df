package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	StagingDir string `toml:"staging_dir"`
	LibraryDir string `toml:"library_dir"`
	LogDir     string `toml:"log_dir"`
}

// Pipeline contains worker, polling, retry, and heartbeat settings for the
// orchestration loop. Interval and timeout values are seconds.
type Pipeline struct {
	Workers            int `toml:"workers"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	MaxActiveTasks     int `toml:"max_active_tasks"`
	MaxRetries         int `toml:"max_retries"`
	RetryBackoffBase   int `toml:"retry_backoff_base"`
	RetryBackoffCap    int `toml:"retry_backoff_cap"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	StaleResetMinutes  int `toml:"stale_reset_minutes"`
	StageTimeout       int `toml:"stage_timeout"`
}

// Quota contains settings for the daily download quota gate.
type Quota struct {
	CacheTTLMinutes int `toml:"cache_ttl_minutes"`
	DailyLimit      int `toml:"daily_limit"`
}

// Source contains configuration for the catalog metadata API.
type Source struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Mirror contains configuration for the search and download mirror.
type Mirror struct {
	BaseURL            string   `toml:"base_url"`
	APIKey             string   `toml:"api_key"`
	RequestTimeout     int      `toml:"request_timeout"`
	DownloadTimeout    int      `toml:"download_timeout"`
	PreferredFormats   []string `toml:"preferred_formats"`
	PreferredLanguages []string `toml:"preferred_languages"`
	MaxCandidates      int      `toml:"max_candidates"`
}

// Shelf contains configuration for the destination library. When URL is set
// folio uploads to a shelf server; when empty it organizes finished downloads
// into paths.library_dir directly.
type Shelf struct {
	URL               string `toml:"url"`
	APIKey            string `toml:"api_key"`
	RequestTimeout    int    `toml:"request_timeout"`
	OverwriteExisting bool   `toml:"overwrite_existing"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	ItemCompleted      bool   `toml:"item_completed"`
	ItemFailed         bool   `toml:"item_failed"`
	NoResults          bool   `toml:"no_results"`
	Quota              bool   `toml:"quota"`
	Runs               bool   `toml:"runs"`
	DedupWindowSeconds int    `toml:"dedup_window_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Maintenance contains cron schedules and retention windows for the daemon
// janitor.
type Maintenance struct {
	TaskCleanupCron          string `toml:"task_cleanup_cron"`
	StagingCleanupCron       string `toml:"staging_cleanup_cron"`
	LogCleanupCron           string `toml:"log_cleanup_cron"`
	StagingMaxAgeHours       int    `toml:"staging_max_age_hours"`
	TaskDoneRetentionHours   int    `toml:"task_done_retention_hours"`
	TaskFailedRetentionHours int    `toml:"task_failed_retention_hours"`
}

// Config encapsulates all configuration values for folio.
//
// Configuration sections by subsystem:
//   - Paths: data, staging, library, and log directories
//   - Pipeline: worker count, polling, retries, heartbeats
//   - Quota: daily download quota cache
//   - Source: catalog metadata API
//   - Mirror: search and download mirror
//   - Shelf: destination library server or local library layout
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
//   - Maintenance: janitor cron schedules and retention windows
type Config struct {
	Paths         Paths         `toml:"paths"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Quota         Quota         `toml:"quota"`
	Source        Source        `toml:"source"`
	Mirror        Mirror        `toml:"mirror"`
	Shelf         Shelf         `toml:"shelf"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Maintenance   Maintenance   `toml:"maintenance"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/folio/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/folio/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("folio.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// LibraryDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" && !c.ShelfServerEnabled() {
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	return nil
}

// DatabasePath returns the location of the catalog database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "catalog.db")
}

// SocketPath returns the daemon control socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "folio.sock")
}

// PIDFilePath returns the daemon pid file location.
func (c *Config) PIDFilePath() string {
	return filepath.Join(c.Paths.LogDir, "folio.pid")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "foliod.lock")
}

// ShelfServerEnabled reports whether uploads target a shelf server rather
// than the local library directory.
func (c *Config) ShelfServerEnabled() bool {
	return strings.TrimSpace(c.Shelf.URL) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
