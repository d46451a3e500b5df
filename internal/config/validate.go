package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateMirror(); err != nil {
		return err
	}
	if err := c.validateShelf(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateQuota(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateMaintenance(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSource() error {
	if c.Source.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/folio/config.toml"
		}
		return fmt.Errorf("source.base_url is required. Edit %s (create with 'folio config init')", defaultPath)
	}
	if c.Source.RequestTimeout <= 0 {
		return errors.New("source.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateMirror() error {
	if c.Mirror.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/folio/config.toml"
		}
		return fmt.Errorf("mirror.base_url is required. Edit %s (create with 'folio config init')", defaultPath)
	}
	if err := ensurePositiveMap(map[string]int{
		"mirror.request_timeout":  c.Mirror.RequestTimeout,
		"mirror.download_timeout": c.Mirror.DownloadTimeout,
		"mirror.max_candidates":   c.Mirror.MaxCandidates,
	}); err != nil {
		return err
	}
	if len(c.Mirror.PreferredFormats) == 0 {
		return errors.New("mirror.preferred_formats must include at least one format")
	}
	if len(c.Mirror.PreferredLanguages) == 0 {
		return errors.New("mirror.preferred_languages must include at least one language")
	}
	return nil
}

func (c *Config) validateShelf() error {
	if !c.ShelfServerEnabled() {
		return nil
	}
	if strings.TrimSpace(c.Shelf.APIKey) == "" {
		return errors.New("shelf.api_key must be set when shelf.url is configured (or set FOLIO_SHELF_API_KEY)")
	}
	if c.Shelf.RequestTimeout <= 0 {
		return errors.New("shelf.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.workers":              c.Pipeline.Workers,
		"pipeline.queue_poll_interval":  c.Pipeline.QueuePollInterval,
		"pipeline.error_retry_interval": c.Pipeline.ErrorRetryInterval,
		"pipeline.max_active_tasks":     c.Pipeline.MaxActiveTasks,
		"pipeline.max_retries":          c.Pipeline.MaxRetries,
		"pipeline.retry_backoff_base":   c.Pipeline.RetryBackoffBase,
		"pipeline.retry_backoff_cap":    c.Pipeline.RetryBackoffCap,
		"pipeline.stale_reset_minutes":  c.Pipeline.StaleResetMinutes,
		"pipeline.stage_timeout":        c.Pipeline.StageTimeout,
	}); err != nil {
		return err
	}
	if c.Pipeline.RetryBackoffCap < c.Pipeline.RetryBackoffBase {
		return errors.New("pipeline.retry_backoff_cap must be >= pipeline.retry_backoff_base")
	}
	if c.Pipeline.HeartbeatInterval <= 0 {
		return errors.New("pipeline.heartbeat_interval must be positive")
	}
	if c.Pipeline.HeartbeatTimeout <= 0 {
		return errors.New("pipeline.heartbeat_timeout must be positive")
	}
	if c.Pipeline.HeartbeatTimeout <= c.Pipeline.HeartbeatInterval {
		return errors.New("pipeline.heartbeat_timeout must be greater than pipeline.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateQuota() error {
	if c.Quota.CacheTTLMinutes <= 0 {
		return errors.New("quota.cache_ttl_minutes must be positive")
	}
	if c.Quota.DailyLimit < 0 {
		return errors.New("quota.daily_limit must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		return errors.New("notifications.dedup_window_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateMaintenance() error {
	for key, expr := range map[string]string{
		"maintenance.task_cleanup_cron":    c.Maintenance.TaskCleanupCron,
		"maintenance.staging_cleanup_cron": c.Maintenance.StagingCleanupCron,
		"maintenance.log_cleanup_cron":     c.Maintenance.LogCleanupCron,
	} {
		if _, err := cronParser.Parse(expr); err != nil {
			return fmt.Errorf("%s: invalid cron expression %q: %w", key, expr, err)
		}
	}
	return ensurePositiveMap(map[string]int{
		"maintenance.staging_max_age_hours":       c.Maintenance.StagingMaxAgeHours,
		"maintenance.task_done_retention_hours":   c.Maintenance.TaskDoneRetentionHours,
		"maintenance.task_failed_retention_hours": c.Maintenance.TaskFailedRetentionHours,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
