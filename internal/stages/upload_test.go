package stages_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"folio/internal/fileutil"
	"folio/internal/logging"
	"folio/internal/notifications"
	"folio/internal/services"
	"folio/internal/stages"
	"folio/internal/testsupport"
)

func stageFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestUploadShelvesAndCleansStaging(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewItem(t, store, "B-400", "Dune", "Frank Herbert")

	stagingDir := filepath.Join(cfg.Paths.StagingDir, "B-400")
	staged := stageFile(t, stagingDir, "Dune.epub", "book bytes")
	sum, err := fileutil.HashFile(staged)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	item.StagingFile = staged
	item.Checksum = sum

	shelfSvc := &stubShelf{shelfPath: filepath.Join(cfg.Paths.LibraryDir, "Frank Herbert", "Dune.epub")}
	notifier := &recordingNotifier{}
	uploader := stages.NewUploaderWithDependencies(cfg, store, logging.NewNop(), shelfSvc, notifier)

	if err := uploader.Process(context.Background(), item); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if item.ShelfPath != shelfSvc.shelfPath {
		t.Errorf("shelf path = %q, want %q", item.ShelfPath, shelfSvc.shelfPath)
	}
	if item.StagingFile != "" {
		t.Errorf("staging file reference should be cleared, got %q", item.StagingFile)
	}
	if len(shelfSvc.uploads) != 1 || shelfSvc.uploads[0] != staged {
		t.Errorf("uploads = %v", shelfSvc.uploads)
	}
	if shelfSvc.lastMeta.Title != "Dune" || shelfSvc.lastMeta.ExternalID != "B-400" {
		t.Errorf("upload metadata = %+v", shelfSvc.lastMeta)
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Errorf("staged file should be removed, stat err = %v", err)
	}
	if _, err := os.Stat(stagingDir); !os.IsNotExist(err) {
		t.Errorf("empty staging dir should be removed, stat err = %v", err)
	}
	if notifier.count(notifications.EventItemCompleted) != 1 {
		t.Fatalf("expected completion notification, got %+v", notifier.published)
	}
	if got := notifier.published[0].payload["file"]; got != "Dune.epub" {
		t.Errorf("notification file = %q", got)
	}
}

func TestUploadVerifiesChecksum(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewItem(t, store, "B-401", "Dune", "Frank Herbert")

	staged := stageFile(t, filepath.Join(cfg.Paths.StagingDir, "B-401"), "Dune.epub", "book bytes")
	item.StagingFile = staged
	item.Checksum = "not the real checksum"

	shelfSvc := &stubShelf{}
	uploader := stages.NewUploaderWithDependencies(cfg, store, logging.NewNop(), shelfSvc, &recordingNotifier{})

	err := uploader.Process(context.Background(), item)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for corrupted file, got %v", err)
	}
	if len(shelfSvc.uploads) != 0 {
		t.Errorf("corrupted file must not reach the shelf")
	}
	if _, err := os.Stat(staged); err != nil {
		t.Errorf("staged file should survive a failed upload: %v", err)
	}
}

func TestUploadRequiresStagedFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	uploader := stages.NewUploaderWithDependencies(cfg, store, logging.NewNop(), &stubShelf{}, &recordingNotifier{})

	item := testsupport.NewItem(t, store, "B-402", "Dune", "Frank Herbert")
	if err := uploader.Process(context.Background(), item); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation without staging file, got %v", err)
	}

	item.StagingFile = filepath.Join(cfg.Paths.StagingDir, "B-402", "gone.epub")
	if err := uploader.Process(context.Background(), item); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for missing file, got %v", err)
	}
}

func TestUploadPropagatesShelfFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewItem(t, store, "B-403", "Dune", "Frank Herbert")

	staged := stageFile(t, filepath.Join(cfg.Paths.StagingDir, "B-403"), "Dune.epub", "book bytes")
	item.StagingFile = staged

	shelfSvc := &stubShelf{uploadErr: services.Wrap(services.ErrTransient, "upload", "post file", "shelf offline", nil)}
	notifier := &recordingNotifier{}
	uploader := stages.NewUploaderWithDependencies(cfg, store, logging.NewNop(), shelfSvc, notifier)

	err := uploader.Process(context.Background(), item)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if _, err := os.Stat(staged); err != nil {
		t.Errorf("staged file should survive a failed upload: %v", err)
	}
	if len(notifier.published) != 0 {
		t.Errorf("failed upload must not notify completion")
	}
}

func TestUploadHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	uploader := stages.NewUploaderWithDependencies(cfg, store, logging.NewNop(), &stubShelf{}, &recordingNotifier{})

	if health := uploader.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy, got %+v", health)
	}

	cfg.Paths.LibraryDir = ""
	if health := uploader.HealthCheck(context.Background()); health.Ready {
		t.Fatalf("local mode without library dir should be unhealthy")
	}

	cfg.Shelf.URL = "http://shelf.test"
	if health := uploader.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("shelf server mode should not require a library dir, got %+v", health)
	}
}
