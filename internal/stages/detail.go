package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"folio/internal/catalog"
	"folio/internal/config"
	"folio/internal/language"
	"folio/internal/logging"
	"folio/internal/services"
	"folio/internal/services/shelf"
	"folio/internal/services/source"
	"folio/internal/stage"
)

// MetadataSource describes the source API lookup used by the detail stage.
type MetadataSource interface {
	Lookup(ctx context.Context, externalID string) (*source.Detail, error)
}

// DetailFetcher resolves an item's metadata from the source API and skips
// items the shelf already holds.
type DetailFetcher struct {
	store  *catalog.Store
	cfg    *config.Config
	logger *slog.Logger
	source MetadataSource
	shelf  shelf.Service
}

// NewDetailFetcher constructs the detail stage handler using default
// collaborators.
func NewDetailFetcher(cfg *config.Config, store *catalog.Store, logger *slog.Logger) *DetailFetcher {
	return NewDetailFetcherWithDependencies(cfg, store, logger, source.New(cfg, logger), shelf.NewConfiguredService(cfg, logger))
}

// NewDetailFetcherWithDependencies allows injecting collaborators (used in tests).
func NewDetailFetcherWithDependencies(cfg *config.Config, store *catalog.Store, logger *slog.Logger, src MetadataSource, shelfSvc shelf.Service) *DetailFetcher {
	return &DetailFetcher{
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "detail"),
		source: src,
		shelf:  shelfSvc,
	}
}

// SetLogger routes stage logs into the item-scoped log.
func (f *DetailFetcher) SetLogger(logger *slog.Logger) {
	if f == nil {
		return
	}
	f.logger = logging.NewComponentLogger(logger, "detail")
}

// CanProcess reports whether the item is in a status the detail stage accepts.
func (f *DetailFetcher) CanProcess(item *catalog.Item) bool {
	return item != nil && catalog.StatusAcceptableForStage(item.Status, catalog.StageDetail)
}

// Process looks the item up on the source API and fills its metadata fields.
// Items already present on the shelf return services.ErrAlreadyExists so the
// pipeline retires them as skipped.
func (f *DetailFetcher) Process(ctx context.Context, item *catalog.Item) error {
	logger := logging.WithContext(ctx, f.logger)
	item.ErrorMessage = ""
	item.SetProgress("Fetching detail", "Looking up metadata", 0)
	persistProgress(ctx, f.store, f.logger, item, "Looking up metadata", 0)

	detail, err := f.source.Lookup(ctx, item.ExternalID)
	if err != nil {
		return err
	}
	applyDetail(item, detail)
	persistProgress(ctx, f.store, f.logger, item, "Metadata retrieved", 60)

	exists, err := f.shelf.Exists(ctx, shelfMetadata(item))
	if err != nil {
		logger.Warn("shelf existence check failed, continuing", logging.Error(err))
	} else if exists {
		return services.Wrap(services.ErrAlreadyExists, "detail", "duplicate check",
			fmt.Sprintf("Already on the shelf: %s", itemLabel(item)), nil)
	}

	persistProgress(ctx, f.store, f.logger, item, "Detail complete", 100)
	logger.Info("detail fetch completed",
		logging.String("external_id", item.ExternalID),
		logging.String("title", item.Title),
		logging.String("author", item.Author),
		logging.Int("year", item.Year))
	return nil
}

// applyDetail copies fetched metadata onto the item. Fields the source left
// empty keep whatever the add command recorded.
func applyDetail(item *catalog.Item, detail *source.Detail) {
	if detail == nil {
		return
	}
	if v := strings.TrimSpace(detail.Title); v != "" {
		item.Title = v
	}
	if v := strings.TrimSpace(detail.Author); v != "" {
		item.Author = v
	}
	if v := language.ToISO2(detail.Language); v != "" {
		item.Language = v
	}
	if detail.Year > 0 {
		item.Year = detail.Year
	}
	if v := strings.TrimSpace(detail.Publisher); v != "" {
		item.Publisher = v
	}
	if v := strings.TrimSpace(detail.Format); v != "" {
		item.Format = strings.ToLower(v)
	}
}

// HealthCheck verifies detail stage prerequisites.
func (f *DetailFetcher) HealthCheck(ctx context.Context) stage.Health {
	const name = "detail"
	if f.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(f.cfg.Source.BaseURL) == "" {
		return stage.Unhealthy(name, "source API URL not configured")
	}
	if f.source == nil {
		return stage.Unhealthy(name, "source client unavailable")
	}
	if f.shelf == nil {
		return stage.Unhealthy(name, "shelf service unavailable")
	}
	return stage.Healthy(name)
}
