package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSource()
	c.normalizeMirror()
	c.normalizeShelf()
	c.normalizeNotifications()
	c.normalizeLogging()
	c.normalizeMaintenance()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSource() {
	c.Source.BaseURL = strings.TrimSpace(c.Source.BaseURL)
	c.Source.APIKey = strings.TrimSpace(c.Source.APIKey)
	if value, ok := os.LookupEnv("FOLIO_SOURCE_API_KEY"); ok && strings.TrimSpace(value) != "" {
		c.Source.APIKey = strings.TrimSpace(value)
	}
}

func (c *Config) normalizeMirror() {
	c.Mirror.BaseURL = strings.TrimSpace(c.Mirror.BaseURL)
	c.Mirror.APIKey = strings.TrimSpace(c.Mirror.APIKey)
	if value, ok := os.LookupEnv("FOLIO_MIRROR_API_KEY"); ok && strings.TrimSpace(value) != "" {
		c.Mirror.APIKey = strings.TrimSpace(value)
	}
	c.Mirror.PreferredFormats = normalizeList(c.Mirror.PreferredFormats, []string{"epub", "pdf"})
	c.Mirror.PreferredLanguages = normalizeList(c.Mirror.PreferredLanguages, []string{"en"})
}

func (c *Config) normalizeShelf() {
	c.Shelf.URL = strings.TrimSpace(c.Shelf.URL)
	c.Shelf.APIKey = strings.TrimSpace(c.Shelf.APIKey)
	if value, ok := os.LookupEnv("FOLIO_SHELF_API_KEY"); ok && strings.TrimSpace(value) != "" {
		c.Shelf.APIKey = strings.TrimSpace(value)
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.DedupWindowSeconds < 0 {
		c.Notifications.DedupWindowSeconds = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeMaintenance() {
	c.Maintenance.TaskCleanupCron = strings.TrimSpace(c.Maintenance.TaskCleanupCron)
	if c.Maintenance.TaskCleanupCron == "" {
		c.Maintenance.TaskCleanupCron = defaultTaskCleanupCron
	}
	c.Maintenance.StagingCleanupCron = strings.TrimSpace(c.Maintenance.StagingCleanupCron)
	if c.Maintenance.StagingCleanupCron == "" {
		c.Maintenance.StagingCleanupCron = defaultStagingCleanupCron
	}
	c.Maintenance.LogCleanupCron = strings.TrimSpace(c.Maintenance.LogCleanupCron)
	if c.Maintenance.LogCleanupCron == "" {
		c.Maintenance.LogCleanupCron = defaultLogCleanupCron
	}
}

func normalizeList(values, fallback []string) []string {
	if len(values) == 0 {
		return fallback
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.ToLower(strings.TrimSpace(value))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
