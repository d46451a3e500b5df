package shelf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"folio/internal/fileutil"
	"folio/internal/logging"
	"folio/internal/services"
	"folio/internal/textutil"
)

// LocalService organizes finished downloads into a library directory tree
// laid out as <library>/<author>/<title>.<ext>.
type LocalService struct {
	LibraryDir        string
	OverwriteExisting bool
	CopyFunc          func(src, dst string) error
	logger            *slog.Logger
}

// NewLocalService constructs a local library organizer.
func NewLocalService(libraryDir string, overwriteExisting bool, logger *slog.Logger) *LocalService {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LocalService{
		LibraryDir:        strings.TrimSpace(libraryDir),
		OverwriteExisting: overwriteExisting,
		CopyFunc:          fileutil.CopyFileVerified,
		logger:            logging.NewComponentLogger(logger, "shelf"),
	}
}

func (s *LocalService) targetDir(meta Metadata) string {
	author := textutil.SanitizeFileName(meta.Author)
	if author == "" {
		author = "Unknown Author"
	}
	return filepath.Join(s.LibraryDir, author)
}

func (s *LocalService) baseName(meta Metadata) string {
	title := textutil.SanitizeFileName(meta.Title)
	if title == "" {
		title = textutil.SanitizeFileName(meta.ExternalID)
	}
	if title == "" {
		title = "Untitled"
	}
	return title
}

// Exists probes the library tree for a file already shelved under this
// item's author and title, in any format.
func (s *LocalService) Exists(ctx context.Context, meta Metadata) (bool, error) {
	if s.LibraryDir == "" {
		return false, services.Wrap(services.ErrConfiguration, "shelf", "lookup",
			"Library directory not configured; set paths.library_dir in your folio config.toml", nil)
	}
	pattern := filepath.Join(s.targetDir(meta), s.baseName(meta)+".*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return false, services.Wrap(services.ErrValidation, "shelf", "lookup",
			"Invalid library lookup pattern", err)
	}
	for _, match := range matches {
		info, statErr := os.Stat(match)
		if statErr == nil && !info.IsDir() {
			return true, nil
		}
	}
	return false, nil
}

// Upload copies the source file into the library and returns the shelved
// path. Collisions get a numeric suffix unless overwriting is enabled.
func (s *LocalService) Upload(ctx context.Context, sourcePath string, meta Metadata) (string, error) {
	if s.LibraryDir == "" {
		return "", services.Wrap(services.ErrConfiguration, "shelf", "upload",
			"Library directory not configured; set paths.library_dir in your folio config.toml", nil)
	}
	ext := filepath.Ext(sourcePath)
	if ext == "" && meta.Format != "" {
		ext = "." + strings.TrimPrefix(strings.ToLower(meta.Format), ".")
	}
	targetDir := s.targetDir(meta)
	base := s.baseName(meta)
	finalPath := filepath.Join(targetDir, base+ext)

	if s.OverwriteExisting {
		if err := removeExistingTarget(finalPath); err != nil {
			return "", services.Wrap(services.ErrValidation, "shelf", "upload",
				"Failed to replace existing library file", err)
		}
	} else {
		counter := 1
		for {
			info, err := os.Stat(finalPath)
			if err != nil {
				if os.IsNotExist(err) {
					break
				}
				return "", services.Wrap(services.ErrTransient, "shelf", "upload",
					"Failed to probe library path", err)
			}
			if info.IsDir() {
				return "", services.Wrap(services.ErrValidation, "shelf", "upload",
					fmt.Sprintf("Library target %q already exists as directory", finalPath), nil)
			}
			finalPath = filepath.Join(targetDir, fmt.Sprintf("%s (%d)%s", base, counter, ext))
			counter++
		}
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "shelf", "upload",
			"Failed to create library directory", err)
	}
	copyFunc := s.CopyFunc
	if copyFunc == nil {
		copyFunc = fileutil.CopyFileVerified
	}
	if err := copyFunc(sourcePath, finalPath); err != nil {
		return "", services.Wrap(services.ErrTransient, "shelf", "upload",
			"Failed to copy file into library", err)
	}
	s.logger.Debug("file shelved",
		logging.String("external_id", meta.ExternalID),
		logging.String("path", finalPath))
	return finalPath, nil
}

// HealthCheck verifies the library directory is configured and writable.
func (s *LocalService) HealthCheck(ctx context.Context) error {
	if s.LibraryDir == "" {
		return services.Wrap(services.ErrConfiguration, "shelf", "health check",
			"Library directory not configured", nil)
	}
	if err := os.MkdirAll(s.LibraryDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "shelf", "health check",
			"Library directory is not writable", err)
	}
	return nil
}

func removeExistingTarget(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat existing target: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("existing library path %q is a directory", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove existing target %q: %w", path, err)
	}
	return nil
}
