package api

import "testing"

func TestSortItemsNewestFirst(t *testing.T) {
	items := []ItemSummary{
		{ID: 1, CreatedAt: "2026-01-01T00:00:00.000Z"},
		{ID: 3, CreatedAt: "2026-01-03T00:00:00.000Z"},
		{ID: 2, CreatedAt: "2026-01-03T00:00:00.000Z"},
	}

	sorted := SortItemsNewestFirst(items)
	if len(sorted) != 3 {
		t.Fatalf("unexpected length: %d", len(sorted))
	}
	// Ties on CreatedAt break by ID descending.
	if sorted[0].ID != 3 || sorted[1].ID != 2 || sorted[2].ID != 1 {
		t.Fatalf("unexpected order: %d %d %d", sorted[0].ID, sorted[1].ID, sorted[2].ID)
	}
	// Input order is untouched.
	if items[0].ID != 1 {
		t.Fatal("input slice should not be mutated")
	}
}

func TestSortItemsNewestFirstEmpty(t *testing.T) {
	if got := SortItemsNewestFirst(nil); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}
