package stages

import (
	"context"
	"log/slog"
	"strings"

	"folio/internal/catalog"
	"folio/internal/logging"
	"folio/internal/services/shelf"
)

// persistProgress writes the item's progress columns through a copy so the
// caller's item only reflects persisted state.
func persistProgress(ctx context.Context, store *catalog.Store, logger *slog.Logger, item *catalog.Item, message string, percent float64) {
	cp := *item
	cp.ProgressMessage = message
	cp.ProgressPercent = percent
	if err := store.UpdateProgress(ctx, &cp); err != nil {
		logging.WithContext(ctx, logger).Warn("failed to persist progress", logging.Error(err))
		return
	}
	*item = cp
}

func shelfMetadata(item *catalog.Item) shelf.Metadata {
	return shelf.Metadata{
		ExternalID: item.ExternalID,
		Title:      item.Title,
		Author:     item.Author,
		Language:   item.Language,
		Format:     item.Format,
		Year:       item.Year,
	}
}

// itemLabel names an item in log lines and notification messages.
func itemLabel(item *catalog.Item) string {
	if title := strings.TrimSpace(item.Title); title != "" {
		return title
	}
	return strings.TrimSpace(item.ExternalID)
}
