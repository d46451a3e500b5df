package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"folio/internal/catalog"
	"folio/internal/config"
	"folio/internal/logging"
	"folio/internal/services"
	"folio/internal/services/mirror"
	"folio/internal/services/shelf"
	"folio/internal/services/source"
)

// probeTimeout bounds each remote health probe. Preflight uses a single
// attempt per endpoint with no retries.
const probeTimeout = 10 * time.Second

// minStagingFreeBytes is the floor below which the staging filesystem is
// considered too full to accept new downloads.
const minStagingFreeBytes = 512 << 20

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

var statfs statfsFunc = realStatfs

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the filesystem under path has headroom for new
// downloads.
func CheckFreeSpace(name, path string) Result {
	_, free, err := statfs(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	if free < minStagingFreeBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s free, need at least %s",
			formatBytes(int64(free)), formatBytes(minStagingFreeBytes))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s free", formatBytes(int64(free)))}
}

// CheckSource verifies that the source metadata API is reachable.
func CheckSource(ctx context.Context, cfg *config.Config) Result {
	const name = "Source API"
	if strings.TrimSpace(cfg.Source.BaseURL) == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	client := source.New(cfg, logging.NewNop())
	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeProbeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckMirror verifies that the mirror search API is reachable.
func CheckMirror(ctx context.Context, cfg *config.Config) Result {
	const name = "Mirror API"
	if strings.TrimSpace(cfg.Mirror.BaseURL) == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	client := mirror.New(cfg, logging.NewNop())
	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeProbeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckShelf verifies shelf server connectivity and authentication.
func CheckShelf(ctx context.Context, cfg *config.Config) Result {
	const name = "Shelf server"
	if strings.TrimSpace(cfg.Shelf.URL) == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	svc := shelf.NewConfiguredService(cfg, logging.NewNop())
	if err := svc.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeProbeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckCatalog reports whether the catalog database is intact and queryable.
func CheckCatalog(ctx context.Context, store *catalog.Store) Result {
	const name = "Catalog database"
	if store == nil {
		return Result{Name: name, Detail: "catalog not opened"}
	}

	health, err := store.CheckHealth(ctx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if !health.DatabaseExists {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", health.DBPath)}
	}
	detail := health.DBPath
	if health.SchemaVersion != "" {
		detail = fmt.Sprintf("%s (schema v%s)", health.DBPath, health.SchemaVersion)
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// summarizeProbeError produces a short human-readable summary for probe failures.
func summarizeProbeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (service unreachable)"
	}
	if detail := services.Details(err); detail.Message != "" {
		return detail.Message
	}
	return err.Error()
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}

func formatBytes(value int64) string {
	const (
		kiB = 1024
		miB = kiB * 1024
		giB = miB * 1024
	)
	switch {
	case value >= giB:
		return fmt.Sprintf("%.2f GiB", float64(value)/float64(giB))
	case value >= miB:
		return fmt.Sprintf("%.2f MiB", float64(value)/float64(miB))
	case value >= kiB:
		return fmt.Sprintf("%.2f KiB", float64(value)/float64(kiB))
	default:
		return fmt.Sprintf("%d B", value)
	}
}
