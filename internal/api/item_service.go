package api

import (
	"context"

	"folio/internal/catalog"
)

// CatalogReader abstracts catalog persistence interactions needed for API queries.
type CatalogReader interface {
	List(ctx context.Context, statuses ...catalog.Status) ([]*catalog.Item, error)
	Stats(ctx context.Context) (map[catalog.Status]int, error)
	GetByID(ctx context.Context, id int64) (*catalog.Item, error)
	History(ctx context.Context, itemID int64, limit int) ([]*catalog.HistoryEntry, error)
}

// ItemService exposes read-only catalog operations returning API DTOs.
type ItemService struct {
	store CatalogReader
}

// NewItemService constructs an ItemService around the provided reader.
func NewItemService(store CatalogReader) *ItemService {
	if store == nil {
		return nil
	}
	return &ItemService{store: store}
}

// List returns catalog items filtered by status.
func (s *ItemService) List(ctx context.Context, statuses ...catalog.Status) ([]ItemSummary, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	items, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromItems(items), nil
}

// Stats returns item summary counts keyed by status string.
func (s *ItemService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeStats(stats), nil
}

// Describe fetches a single catalog item.
func (s *ItemService) Describe(ctx context.Context, id int64) (*ItemSummary, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	item, err := s.store.GetByID(ctx, id)
	if err != nil || item == nil {
		return nil, err
	}
	dto := FromItem(item)
	return &dto, nil
}

// History fetches the most recent transition rows for an item.
func (s *ItemService) History(ctx context.Context, id int64, limit int) ([]HistoryEntry, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	entries, err := s.store.History(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	return FromHistory(entries), nil
}
