package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"folio/internal/catalog"
	"folio/internal/config"
	"folio/internal/fileutil"
	"folio/internal/logging"
	"folio/internal/services"
	"folio/internal/services/mirror"
	"folio/internal/stage"
	"folio/internal/textutil"
)

// maxCandidateAttempts caps how many ranked candidates the download stage
// tries before giving up on the item.
const maxCandidateAttempts = 5

// minFreeBytes is the staging headroom required beyond the candidate's
// reported size.
const minFreeBytes = 64 << 20

// DownloadMirror describes the mirror download used by the download stage.
type DownloadMirror interface {
	Download(ctx context.Context, downloadURL, destPath string) (int64, error)
}

// QuotaGate gates downloads on the mirror's remaining allowance.
type QuotaGate interface {
	Available(ctx context.Context) (bool, error)
	Consume(n int)
}

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

var statfs statfsFunc = realStatfs

// Downloader stages the selected candidate file and records its checksum.
// Dead candidate links fall back to the next ranked candidate.
type Downloader struct {
	store  *catalog.Store
	cfg    *config.Config
	logger *slog.Logger
	mirror DownloadMirror
	quota  QuotaGate
}

// NewDownloader constructs the download stage handler. The gate is shared
// with the pipeline so parking and stage checks see the same allowance.
func NewDownloader(cfg *config.Config, store *catalog.Store, logger *slog.Logger, gate QuotaGate) *Downloader {
	return NewDownloaderWithDependencies(cfg, store, logger, mirror.New(cfg, logger), gate)
}

// NewDownloaderWithDependencies allows injecting collaborators (used in tests).
func NewDownloaderWithDependencies(cfg *config.Config, store *catalog.Store, logger *slog.Logger, downloadMirror DownloadMirror, gate QuotaGate) *Downloader {
	return &Downloader{
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "download"),
		mirror: downloadMirror,
		quota:  gate,
	}
}

// SetLogger routes stage logs into the item-scoped log.
func (d *Downloader) SetLogger(logger *slog.Logger) {
	if d == nil {
		return
	}
	d.logger = logging.NewComponentLogger(logger, "download")
}

// CanProcess reports whether the item is in a status the download stage accepts.
func (d *Downloader) CanProcess(item *catalog.Item) bool {
	return item != nil && catalog.StatusAcceptableForStage(item.Status, catalog.StageDownload)
}

// Process downloads the winning candidate into the staging directory. The
// quota gate is consulted before any bytes move; an exhausted gate surfaces
// services.ErrQuotaExhausted so the pipeline can park the queue.
func (d *Downloader) Process(ctx context.Context, item *catalog.Item) error {
	logger := logging.WithContext(ctx, d.logger)
	item.ErrorMessage = ""
	item.SetProgress("Downloading", "Preparing download", 0)
	persistProgress(ctx, d.store, d.logger, item, "Preparing download", 0)

	candidates, err := stage.ParseCandidates(item.CandidatesJSON)
	if err != nil {
		return err
	}
	ordered := orderCandidates(item, candidates)
	if len(ordered) == 0 {
		return services.Wrap(services.ErrValidation, "download", "select candidate",
			"No download candidates recorded; rerun search", nil)
	}

	if d.stagedFileCurrent(item) {
		persistProgress(ctx, d.store, d.logger, item, "Already staged", 100)
		logger.Info("staged file already present",
			logging.String("external_id", item.ExternalID),
			logging.String("file", item.StagingFile))
		return nil
	}

	available, err := d.quota.Available(ctx)
	if err != nil {
		return services.Wrap(services.ErrTransient, "download", "quota gate",
			"Quota status unavailable; will retry", err)
	}
	if !available {
		return services.Wrap(services.ErrQuotaExhausted, "download", "quota gate",
			"Download quota exhausted", nil)
	}

	destDir := filepath.Join(d.cfg.Paths.StagingDir, stagingDirName(item))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "download", "prepare staging",
			"Cannot create staging directory; check paths.staging_dir in your folio config.toml", err)
	}
	if err := d.checkFreeSpace(ordered); err != nil {
		return err
	}

	var (
		written int64
		winner  mirror.Candidate
		dest    string
		lastErr error
	)
	staged := false
	for i, cand := range ordered {
		persistProgress(ctx, d.store, d.logger, item,
			fmt.Sprintf("Downloading candidate %d of %d", i+1, len(ordered)), 20+float64(i)*15)

		dest = filepath.Join(destDir, stagedFileName(item, cand))
		written, err = d.mirror.Download(ctx, cand.DownloadURL, dest)
		if err == nil {
			winner = cand
			staged = true
			break
		}
		if errors.Is(err, services.ErrNotFound) {
			logger.Warn("candidate link dead, trying next",
				logging.String("url", cand.DownloadURL),
				logging.Error(err))
			lastErr = err
			continue
		}
		return err
	}
	if !staged {
		return services.Wrap(services.ErrNotFound, "download", "fetch file",
			"All download candidates failed", lastErr)
	}

	persistProgress(ctx, d.store, d.logger, item, "Verifying download", 85)
	checksum, err := fileutil.HashFile(dest)
	if err != nil {
		return services.Wrap(services.ErrTransient, "download", "verify file",
			"Failed to hash staged file", err)
	}

	item.StagingFile = dest
	item.Checksum = checksum
	item.FileSize = written
	if winner.DownloadURL != "" {
		item.SourceURL = winner.DownloadURL
	}
	if winner.Format != "" {
		item.Format = strings.ToLower(winner.Format)
	}
	d.quota.Consume(1)

	persistProgress(ctx, d.store, d.logger, item, "Download complete", 100)
	logger.Info("download completed",
		logging.String("external_id", item.ExternalID),
		logging.Int64("bytes", written),
		logging.String("file", filepath.Base(dest)))
	return nil
}

// stagedFileCurrent reports whether a previous run already staged this item
// and the file still matches its recorded checksum.
func (d *Downloader) stagedFileCurrent(item *catalog.Item) bool {
	if item.StagingFile == "" || item.Checksum == "" {
		return false
	}
	if _, err := os.Stat(item.StagingFile); err != nil {
		return false
	}
	sum, err := fileutil.HashFile(item.StagingFile)
	return err == nil && sum == item.Checksum
}

// checkFreeSpace verifies the staging filesystem can hold the largest
// candidate plus headroom.
func (d *Downloader) checkFreeSpace(candidates []mirror.Candidate) error {
	var largest int64
	for _, cand := range candidates {
		if cand.SizeBytes > largest {
			largest = cand.SizeBytes
		}
	}
	_, free, err := statfs(d.cfg.Paths.StagingDir)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "download", "preflight",
			"Cannot stat staging filesystem; check paths.staging_dir in your folio config.toml", err)
	}
	if required := uint64(largest) + minFreeBytes; free < required {
		return services.Wrap(services.ErrConfiguration, "download", "preflight",
			fmt.Sprintf("Insufficient disk space in staging directory (need %d MiB, have %d MiB)",
				required>>20, free>>20), nil)
	}
	return nil
}

// orderCandidates returns download attempts in priority order: the candidate
// matching the item's selected URL first, the rest best score first. An item
// with a source URL but no stored candidate list gets a synthetic candidate
// built from its own fields.
func orderCandidates(item *catalog.Item, candidates []mirror.Candidate) []mirror.Candidate {
	selectedURL := strings.TrimSpace(item.SourceURL)
	if len(candidates) == 0 {
		if selectedURL == "" {
			return nil
		}
		return []mirror.Candidate{{
			Title:       item.Title,
			Authors:     item.Author,
			Year:        item.Year,
			Language:    item.Language,
			Format:      item.Format,
			SizeBytes:   item.FileSize,
			DownloadURL: selectedURL,
		}}
	}

	ordered := make([]mirror.Candidate, 0, len(candidates))
	rest := make([]mirror.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if strings.TrimSpace(cand.DownloadURL) == "" {
			continue
		}
		if selectedURL != "" && cand.DownloadURL == selectedURL {
			ordered = append(ordered, cand)
			continue
		}
		rest = append(rest, cand)
	}
	sort.SliceStable(rest, func(i, j int) bool {
		return rest[i].Score > rest[j].Score
	})
	ordered = append(ordered, rest...)
	if len(ordered) > maxCandidateAttempts {
		ordered = ordered[:maxCandidateAttempts]
	}
	return ordered
}

// stagingDirName isolates each item's staging files under one directory so
// orphan cleanup can match directories to items.
func stagingDirName(item *catalog.Item) string {
	if name := textutil.SanitizeFileName(item.ExternalID); name != "" {
		return name
	}
	return fmt.Sprintf("item-%d", item.ID)
}

// stagedFileName derives the staged file's name from the item title and the
// candidate's format, falling back to the download URL's extension.
func stagedFileName(item *catalog.Item, cand mirror.Candidate) string {
	base := textutil.SanitizeFileName(item.Title)
	if base == "" {
		base = textutil.SanitizeFileName(item.ExternalID)
	}
	if base == "" {
		base = "download"
	}
	ext := strings.ToLower(strings.TrimSpace(cand.Format))
	if ext == "" {
		if parsed, err := url.Parse(cand.DownloadURL); err == nil {
			ext = strings.TrimPrefix(strings.ToLower(path.Ext(parsed.Path)), ".")
		}
	}
	if ext == "" {
		ext = strings.ToLower(strings.TrimSpace(item.Format))
	}
	if ext == "" {
		ext = "bin"
	}
	return base + "." + ext
}

// HealthCheck verifies download stage prerequisites.
func (d *Downloader) HealthCheck(ctx context.Context) stage.Health {
	const name = "download"
	if d.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Mirror.BaseURL) == "" {
		return stage.Unhealthy(name, "mirror URL not configured")
	}
	if strings.TrimSpace(d.cfg.Paths.StagingDir) == "" {
		return stage.Unhealthy(name, "staging directory not configured")
	}
	if d.mirror == nil {
		return stage.Unhealthy(name, "mirror client unavailable")
	}
	if d.quota == nil {
		return stage.Unhealthy(name, "quota gate unavailable")
	}
	return stage.Healthy(name)
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
