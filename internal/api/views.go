package api

import "sort"

// SortItemsNewestFirst orders items by CreatedAt descending, breaking ties
// by ID descending.
func SortItemsNewestFirst(items []ItemSummary) []ItemSummary {
	if len(items) == 0 {
		return nil
	}
	sorted := make([]ItemSummary, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		ti := ParseItemTime(sorted[i].CreatedAt)
		tj := ParseItemTime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].ID > sorted[j].ID
		}
		return ti.After(tj)
	})
	return sorted
}
