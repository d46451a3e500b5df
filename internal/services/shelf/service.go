package shelf

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"folio/internal/config"
)

const defaultRequestTimeout = 2 * time.Minute

// Metadata carries the item fields the shelf needs to place a file.
type Metadata struct {
	ExternalID string
	Title      string
	Author     string
	Language   string
	Format     string
	Year       int
}

// Service defines shelf operations used by the search and upload stages.
// Upload never consumes the source file; callers remove staging files after
// a successful upload.
type Service interface {
	Exists(ctx context.Context, meta Metadata) (bool, error)
	Upload(ctx context.Context, sourcePath string, meta Metadata) (string, error)
	HealthCheck(ctx context.Context) error
}

// NewConfiguredService returns the shelf implementation the configuration
// selects: an HTTP client when shelf.url is set, the local library organizer
// otherwise.
func NewConfiguredService(cfg *config.Config, logger *slog.Logger) Service {
	if cfg == nil {
		return NewLocalService("", false, logger)
	}
	if !cfg.ShelfServerEnabled() {
		return NewLocalService(cfg.Paths.LibraryDir, cfg.Shelf.OverwriteExisting, logger)
	}
	timeout := defaultRequestTimeout
	if cfg.Shelf.RequestTimeout > 0 {
		timeout = time.Duration(cfg.Shelf.RequestTimeout) * time.Second
	}
	return NewHTTPService(
		strings.TrimSpace(cfg.Shelf.URL),
		strings.TrimSpace(cfg.Shelf.APIKey),
		&http.Client{Timeout: timeout},
		logger,
	)
}
