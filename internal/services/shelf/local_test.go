package shelf_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"folio/internal/services"
	"folio/internal/services/shelf"
)

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestLocalUploadShelvesFile(t *testing.T) {
	library := t.TempDir()
	svc := shelf.NewLocalService(library, false, nil)
	source := writeSource(t, "staged.epub", "book bytes")

	path, err := svc.Upload(context.Background(), source, shelf.Metadata{
		Title:  "Dune",
		Author: "Frank Herbert",
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	want := filepath.Join(library, "Frank Herbert", "Dune.epub")
	if path != want {
		t.Fatalf("expected %s, got %s", want, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read shelved file: %v", err)
	}
	if string(data) != "book bytes" {
		t.Fatalf("shelved content mismatch: %q", data)
	}
	if _, err := os.Stat(source); err != nil {
		t.Fatalf("source should remain after upload: %v", err)
	}
}

func TestLocalUploadCountsCollisions(t *testing.T) {
	library := t.TempDir()
	svc := shelf.NewLocalService(library, false, nil)
	meta := shelf.Metadata{Title: "Dune", Author: "Frank Herbert"}

	first, err := svc.Upload(context.Background(), writeSource(t, "a.epub", "one"), meta)
	if err != nil {
		t.Fatalf("first upload failed: %v", err)
	}
	second, err := svc.Upload(context.Background(), writeSource(t, "b.epub", "two"), meta)
	if err != nil {
		t.Fatalf("second upload failed: %v", err)
	}
	if second == first {
		t.Fatal("expected collision suffix")
	}
	want := filepath.Join(library, "Frank Herbert", "Dune (1).epub")
	if second != want {
		t.Fatalf("expected %s, got %s", want, second)
	}
}

func TestLocalUploadOverwrites(t *testing.T) {
	library := t.TempDir()
	svc := shelf.NewLocalService(library, true, nil)
	meta := shelf.Metadata{Title: "Dune", Author: "Frank Herbert"}

	first, err := svc.Upload(context.Background(), writeSource(t, "a.epub", "one"), meta)
	if err != nil {
		t.Fatalf("first upload failed: %v", err)
	}
	second, err := svc.Upload(context.Background(), writeSource(t, "b.epub", "two"), meta)
	if err != nil {
		t.Fatalf("second upload failed: %v", err)
	}
	if second != first {
		t.Fatalf("expected overwrite at %s, got %s", first, second)
	}
	data, _ := os.ReadFile(second)
	if string(data) != "two" {
		t.Fatalf("expected replaced content, got %q", data)
	}
}

func TestLocalUploadSanitizesNames(t *testing.T) {
	library := t.TempDir()
	svc := shelf.NewLocalService(library, false, nil)

	path, err := svc.Upload(context.Background(), writeSource(t, "staged.pdf", "x"), shelf.Metadata{
		Title:  "Dune: Messiah?",
		Author: "Frank/Herbert",
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	want := filepath.Join(library, "Frank-Herbert", "Dune- Messiah.pdf")
	if path != want {
		t.Fatalf("expected %s, got %s", want, path)
	}
}

func TestLocalUploadFallsBackToFormatExtension(t *testing.T) {
	library := t.TempDir()
	svc := shelf.NewLocalService(library, false, nil)

	path, err := svc.Upload(context.Background(), writeSource(t, "staged", "x"), shelf.Metadata{
		Title:  "Dune",
		Author: "Frank Herbert",
		Format: "EPUB",
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if filepath.Ext(path) != ".epub" {
		t.Fatalf("expected format extension, got %s", path)
	}
}

func TestLocalExistsProbesAnyFormat(t *testing.T) {
	library := t.TempDir()
	svc := shelf.NewLocalService(library, false, nil)
	meta := shelf.Metadata{Title: "Dune", Author: "Frank Herbert"}

	exists, err := svc.Exists(context.Background(), meta)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Fatal("empty library should not report the item")
	}

	if _, err := svc.Upload(context.Background(), writeSource(t, "staged.pdf", "x"), meta); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	exists, err = svc.Exists(context.Background(), shelf.Metadata{Title: "Dune", Author: "Frank Herbert", Format: "epub"})
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Fatal("shelved item should be reported regardless of format")
	}
}

func TestLocalServiceRequiresLibraryDir(t *testing.T) {
	svc := shelf.NewLocalService("", false, nil)
	if _, err := svc.Exists(context.Background(), shelf.Metadata{Title: "Dune"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error from Exists, got %v", err)
	}
	if _, err := svc.Upload(context.Background(), "nowhere.epub", shelf.Metadata{Title: "Dune"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error from Upload, got %v", err)
	}
	if err := svc.HealthCheck(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error from HealthCheck, got %v", err)
	}
}

func TestLocalHealthCheckCreatesLibraryDir(t *testing.T) {
	library := filepath.Join(t.TempDir(), "library")
	svc := shelf.NewLocalService(library, false, nil)
	if err := svc.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	info, err := os.Stat(library)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected library directory created: %v", err)
	}
}
