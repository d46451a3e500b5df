package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"folio/internal/logging"
)

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	// Create old directory
	oldDir := filepath.Join(tmpDir, "OL123M")
	if err := os.Mkdir(oldDir, 0o755); err != nil {
		t.Fatalf("create old dir: %v", err)
	}
	// Set modification time to 2 hours ago
	oldTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldDir, oldTime, oldTime); err != nil {
		t.Fatalf("set old time: %v", err)
	}

	// Create recent directory
	recentDir := filepath.Join(tmpDir, "OL456M")
	if err := os.Mkdir(recentDir, 0o755); err != nil {
		t.Fatalf("create recent dir: %v", err)
	}

	result := CleanStale(context.Background(), tmpDir, time.Hour, logging.NewNop())

	if len(result.Removed) != 1 {
		t.Fatalf("expected 1 removed, got %d", len(result.Removed))
	}
	if result.Removed[0] != oldDir {
		t.Errorf("expected %s to be removed, got %s", oldDir, result.Removed[0])
	}

	// Old dir should be gone
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Error("old directory should have been removed")
	}

	// Recent dir should still exist
	if _, err := os.Stat(recentDir); err != nil {
		t.Error("recent directory should still exist")
	}
}

func TestCleanStaleIgnoresFiles(t *testing.T) {
	tmpDir := t.TempDir()

	// Create an old file (should be ignored)
	oldFile := filepath.Join(tmpDir, "leftover.epub")
	if err := os.WriteFile(oldFile, []byte("test"), 0o644); err != nil {
		t.Fatalf("create file: %v", err)
	}
	oldTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldFile, oldTime, oldTime); err != nil {
		t.Fatalf("set old time: %v", err)
	}

	result := CleanStale(context.Background(), tmpDir, time.Hour, logging.NewNop())

	if len(result.Removed) != 0 {
		t.Errorf("expected no removals for files, got %d", len(result.Removed))
	}

	// File should still exist
	if _, err := os.Stat(oldFile); err != nil {
		t.Error("file should not have been removed")
	}
}

func TestCleanOrphanedEmptyDir(t *testing.T) {
	for _, dir := range []string{"", "   "} {
		result := CleanOrphaned(context.Background(), dir, nil, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanOrphanedRemovesUnknownDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	knownDir := filepath.Join(tmpDir, "OL123M")
	if err := os.Mkdir(knownDir, 0o755); err != nil {
		t.Fatalf("create known dir: %v", err)
	}
	orphanDir := filepath.Join(tmpDir, "OL999M")
	if err := os.Mkdir(orphanDir, 0o755); err != nil {
		t.Fatalf("create orphan dir: %v", err)
	}

	active := ActiveSet([]string{"OL123M"})
	result := CleanOrphaned(context.Background(), tmpDir, active, logging.NewNop())

	if len(result.Removed) != 1 {
		t.Fatalf("expected 1 removed, got %d", len(result.Removed))
	}
	if result.Removed[0] != orphanDir {
		t.Errorf("expected %s to be removed, got %s", orphanDir, result.Removed[0])
	}
	if _, err := os.Stat(knownDir); err != nil {
		t.Error("active item's directory should still exist")
	}
}

func TestCleanOrphanedMatchesSanitizedIDs(t *testing.T) {
	tmpDir := t.TempDir()

	// Colons in external IDs become dashes in directory names.
	dir := filepath.Join(tmpDir, "isbn-9780123456789")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("create dir: %v", err)
	}

	active := ActiveSet([]string{"isbn:9780123456789"})
	result := CleanOrphaned(context.Background(), tmpDir, active, logging.NewNop())

	if len(result.Removed) != 0 {
		t.Fatalf("expected no removals, got %v", result.Removed)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Error("sanitized directory should still exist")
	}
}

func TestCleanOrphanedSkipsItemIDDirs(t *testing.T) {
	tmpDir := t.TempDir()

	dir := filepath.Join(tmpDir, "item-42")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("create dir: %v", err)
	}

	result := CleanOrphaned(context.Background(), tmpDir, nil, logging.NewNop())

	if len(result.Removed) != 0 {
		t.Fatalf("expected no removals, got %v", result.Removed)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Error("item-{ID} directory should be left for stale cleanup")
	}
}

func TestActiveSetDropsEmptyIDs(t *testing.T) {
	active := ActiveSet([]string{"", "   ", "OL1M"})
	if len(active) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(active))
	}
	if _, ok := active["OL1M"]; !ok {
		t.Error("expected OL1M in active set")
	}
}

func TestListDirectoriesInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		dirs, err := ListDirectories(dir)
		if err != nil {
			t.Fatalf("unexpected error for path %q: %v", dir, err)
		}
		if len(dirs) != 0 {
			t.Errorf("expected no directories for path %q", dir)
		}
	}
}

func TestListDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	dir := filepath.Join(tmpDir, "OL123M")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "book.epub"), make([]byte, 2048), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	// Loose files at the staging root are not listed
	if err := os.WriteFile(filepath.Join(tmpDir, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write stray: %v", err)
	}

	dirs, err := ListDirectories(tmpDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(dirs) != 1 {
		t.Fatalf("expected 1 directory, got %d", len(dirs))
	}
	if dirs[0].Name != "OL123M" {
		t.Errorf("unexpected name %q", dirs[0].Name)
	}
	if dirs[0].Path != dir {
		t.Errorf("unexpected path %q", dirs[0].Path)
	}
	if dirs[0].Size != 2048 {
		t.Errorf("expected size 2048, got %d", dirs[0].Size)
	}
	if dirs[0].ModTime.IsZero() {
		t.Error("expected non-zero mod time")
	}
}
