package stages

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"folio/internal/catalog"
	"folio/internal/config"
	"folio/internal/fileutil"
	"folio/internal/logging"
	"folio/internal/notifications"
	"folio/internal/services"
	"folio/internal/services/shelf"
	"folio/internal/stage"
)

// Uploader delivers the staged file to the shelf and clears the staging
// area once the shelf confirms the copy.
type Uploader struct {
	store    *catalog.Store
	cfg      *config.Config
	logger   *slog.Logger
	shelf    shelf.Service
	notifier notifications.Service
}

// NewUploader constructs the upload stage handler using default collaborators.
func NewUploader(cfg *config.Config, store *catalog.Store, logger *slog.Logger) *Uploader {
	return NewUploaderWithDependencies(cfg, store, logger,
		shelf.NewConfiguredService(cfg, logger),
		notifications.NewService(cfg))
}

// NewUploaderWithDependencies allows injecting collaborators (used in tests).
func NewUploaderWithDependencies(cfg *config.Config, store *catalog.Store, logger *slog.Logger, shelfSvc shelf.Service, notifier notifications.Service) *Uploader {
	return &Uploader{
		store:    store,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "upload"),
		shelf:    shelfSvc,
		notifier: notifier,
	}
}

// SetLogger routes stage logs into the item-scoped log.
func (u *Uploader) SetLogger(logger *slog.Logger) {
	if u == nil {
		return
	}
	u.logger = logging.NewComponentLogger(logger, "upload")
}

// CanProcess reports whether the item is in a status the upload stage accepts.
func (u *Uploader) CanProcess(item *catalog.Item) bool {
	return item != nil && catalog.StatusAcceptableForStage(item.Status, catalog.StageUpload)
}

// Process verifies the staged file against its recorded checksum, hands it
// to the shelf, and removes the staging copy after the shelf confirms.
func (u *Uploader) Process(ctx context.Context, item *catalog.Item) error {
	logger := logging.WithContext(ctx, u.logger)
	item.ErrorMessage = ""
	item.SetProgress("Uploading", "Verifying staged file", 0)
	persistProgress(ctx, u.store, u.logger, item, "Verifying staged file", 0)

	stagingFile := strings.TrimSpace(item.StagingFile)
	if stagingFile == "" {
		return services.Wrap(services.ErrValidation, "upload", "verify staging",
			"No staged file recorded; rerun download", nil)
	}
	if _, err := os.Stat(stagingFile); err != nil {
		return services.Wrap(services.ErrValidation, "upload", "verify staging",
			"Staged file missing; rerun download", err)
	}

	if item.Checksum != "" {
		persistProgress(ctx, u.store, u.logger, item, "Verifying checksum", 20)
		sum, err := fileutil.HashFile(stagingFile)
		if err != nil {
			return services.Wrap(services.ErrTransient, "upload", "verify staging",
				"Failed to hash staged file", err)
		}
		if sum != item.Checksum {
			return services.Wrap(services.ErrValidation, "upload", "verify staging",
				"Staged file corrupted; rerun download", nil)
		}
	}

	persistProgress(ctx, u.store, u.logger, item, "Uploading to shelf", 50)
	shelfPath, err := u.shelf.Upload(ctx, stagingFile, shelfMetadata(item))
	if err != nil {
		return err
	}
	item.ShelfPath = shelfPath

	if err := os.Remove(stagingFile); err != nil {
		logger.Warn("failed to remove staging file",
			logging.String("file", stagingFile),
			logging.Error(err))
	}
	// Drop the per-item staging directory when the file was its last entry.
	os.Remove(filepath.Dir(stagingFile))
	item.StagingFile = ""

	shelved := filepath.Base(shelfPath)
	persistProgress(ctx, u.store, u.logger, item, fmt.Sprintf("Shelved: %s", shelved), 100)

	if u.notifier != nil {
		if err := u.notifier.Publish(ctx, notifications.EventItemCompleted, notifications.Payload{
			"title": itemLabel(item),
			"file":  shelved,
		}); err != nil {
			logger.Warn("completion notification failed", logging.Error(err))
		}
	}

	logger.Info("upload completed",
		logging.String("external_id", item.ExternalID),
		logging.String("shelf_path", shelfPath))
	return nil
}

// HealthCheck verifies upload stage prerequisites.
func (u *Uploader) HealthCheck(ctx context.Context) stage.Health {
	const name = "upload"
	if u.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if u.shelf == nil {
		return stage.Unhealthy(name, "shelf service unavailable")
	}
	if !u.cfg.ShelfServerEnabled() && strings.TrimSpace(u.cfg.Paths.LibraryDir) == "" {
		return stage.Unhealthy(name, "library directory not configured")
	}
	return stage.Healthy(name)
}
