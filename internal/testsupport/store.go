package testsupport

import (
	"context"
	"testing"

	"folio/internal/catalog"
	"folio/internal/config"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewItem adds a catalog item for tests using the provided store.
func NewItem(t testing.TB, store *catalog.Store, externalID, title, author string) *catalog.Item {
	t.Helper()

	item, created, err := store.Add(context.Background(), externalID, title, author, 0)
	if err != nil {
		t.Fatalf("store.Add: %v", err)
	}
	if !created {
		t.Fatalf("expected %s to be a new item", externalID)
	}
	return item
}

// AdvanceItem walks an item through the given statuses in order and returns
// the refreshed row.
func AdvanceItem(t testing.TB, store *catalog.Store, item *catalog.Item, statuses ...catalog.Status) *catalog.Item {
	t.Helper()

	ctx := context.Background()
	current := item.Status
	for _, next := range statuses {
		if err := store.Transition(ctx, item.ID, current, next, "test setup"); err != nil {
			t.Fatalf("transition %s -> %s: %v", current, next, err)
		}
		current = next
	}
	refreshed, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("store.GetByID: %v", err)
	}
	if refreshed == nil {
		t.Fatalf("item %d disappeared", item.ID)
	}
	return refreshed
}
