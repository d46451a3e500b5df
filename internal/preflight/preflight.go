package preflight

import (
	"context"

	"folio/internal/catalog"
	"folio/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is configured. The
// store may be nil when the caller has not opened the catalog yet.
func RunAll(ctx context.Context, cfg *config.Config, store *catalog.Store) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Staging directory (always checked)
	results = append(results, CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir))
	results = append(results, CheckFreeSpace("Staging free space", cfg.Paths.StagingDir))

	// Library directory (local shelf mode only; a shelf server owns its own storage)
	if !cfg.ShelfServerEnabled() && cfg.Paths.LibraryDir != "" {
		results = append(results, CheckDirectoryAccess("Library directory", cfg.Paths.LibraryDir))
	}

	results = append(results, CheckSource(ctx, cfg))
	results = append(results, CheckMirror(ctx, cfg))

	if cfg.ShelfServerEnabled() {
		results = append(results, CheckShelf(ctx, cfg))
	}

	if store != nil {
		results = append(results, CheckCatalog(ctx, store))
	}

	return results
}

// Passed reports whether every result in the slice passed.
func Passed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}
