package main

import (
	"testing"

	"folio/internal/api"
	"folio/internal/catalog"
)

func TestFormatStatusLabel(t *testing.T) {
	cases := map[string]string{
		"new":                             "New",
		"download_queued":                 "Download Queued",
		"search_complete_quota_exhausted": "Search Complete Quota Exhausted",
		"":                                "",
	}
	for input, want := range cases {
		if got := formatStatusLabel(input); got != want {
			t.Fatalf("formatStatusLabel(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestBuildStatsRowsOrdering(t *testing.T) {
	stats := map[string]int{
		string(catalog.StatusCompleted):      3,
		string(catalog.StatusNew):            2,
		"mystery_state":                      1,
		string(catalog.StatusDownloadQueued): 5,
	}
	rows := buildStatsRows(stats)
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	want := []string{"New", "Download Queued", "Completed", "Mystery State"}
	for i, label := range want {
		if rows[i][0] != label {
			t.Fatalf("row %d: expected %q, got %q", i, label, rows[i][0])
		}
	}
	if rows[1][1] != "5" {
		t.Fatalf("expected count 5 for download queued, got %q", rows[1][1])
	}
}

func TestBuildItemListRows(t *testing.T) {
	items := []api.ItemSummary{
		{ID: 1, ExternalID: "OL1M", Title: "Older", Status: "new", Priority: 5, CreatedAt: "2026-01-01T10:00:00Z"},
		{ID: 2, ExternalID: "OL2M", Status: "completed", Priority: 1, CreatedAt: "2026-02-01T10:00:00Z"},
	}
	rows := buildItemListRows(items)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "2" {
		t.Fatalf("expected newest item first, got id %q", rows[0][0])
	}
	if rows[0][2] != "OL2M" {
		t.Fatalf("expected external id as title fallback, got %q", rows[0][2])
	}
	if rows[1][4] != "New" {
		t.Fatalf("expected formatted status, got %q", rows[1][4])
	}
	if rows[1][6] != "2026-01-01 10:00" {
		t.Fatalf("unexpected created column: %q", rows[1][6])
	}
}

func TestBuildHistoryRows(t *testing.T) {
	entries := []api.HistoryEntry{
		{
			Seq:          2,
			FromStatus:   "download_active",
			ToStatus:     "download_failed",
			ElapsedMS:    1500,
			Note:         "retry scheduled",
			ErrorMessage: "connection reset",
			CreatedAt:    "2026-03-01T08:30:00Z",
		},
	}
	rows := buildHistoryRows(entries)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row[1] != "Download Active" || row[2] != "Download Failed" {
		t.Fatalf("unexpected status columns: %v", row)
	}
	if row[3] != "1.5s" {
		t.Fatalf("unexpected elapsed column: %q", row[3])
	}
	if row[4] != "retry scheduled; connection reset" {
		t.Fatalf("unexpected detail column: %q", row[4])
	}
}

func TestFormatFileSize(t *testing.T) {
	cases := map[int64]string{
		0:       "-",
		512:     "512 B",
		2048:    "2.0 KiB",
		5242880: "5.0 MiB",
	}
	for input, want := range cases {
		if got := formatFileSize(input); got != want {
			t.Fatalf("formatFileSize(%d) = %q, want %q", input, got, want)
		}
	}
}
