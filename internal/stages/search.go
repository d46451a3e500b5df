package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"folio/internal/catalog"
	"folio/internal/config"
	"folio/internal/language"
	"folio/internal/logging"
	"folio/internal/notifications"
	"folio/internal/services"
	"folio/internal/services/mirror"
	"folio/internal/services/shelf"
	"folio/internal/stage"
)

// SearchMirror describes the mirror search used by the search stage.
type SearchMirror interface {
	Search(ctx context.Context, query mirror.Query) ([]mirror.Candidate, error)
}

// Searcher queries the mirror for download candidates and records the scored
// list plus the selected winner on the item.
type Searcher struct {
	store    *catalog.Store
	cfg      *config.Config
	logger   *slog.Logger
	mirror   SearchMirror
	shelf    shelf.Service
	notifier notifications.Service
}

// NewSearcher constructs the search stage handler using default collaborators.
func NewSearcher(cfg *config.Config, store *catalog.Store, logger *slog.Logger) *Searcher {
	return NewSearcherWithDependencies(cfg, store, logger,
		mirror.New(cfg, logger),
		shelf.NewConfiguredService(cfg, logger),
		notifications.NewService(cfg))
}

// NewSearcherWithDependencies allows injecting collaborators (used in tests).
func NewSearcherWithDependencies(cfg *config.Config, store *catalog.Store, logger *slog.Logger, searchMirror SearchMirror, shelfSvc shelf.Service, notifier notifications.Service) *Searcher {
	return &Searcher{
		store:    store,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "search"),
		mirror:   searchMirror,
		shelf:    shelfSvc,
		notifier: notifier,
	}
}

// SetLogger routes stage logs into the item-scoped log.
func (s *Searcher) SetLogger(logger *slog.Logger) {
	if s == nil {
		return
	}
	s.logger = logging.NewComponentLogger(logger, "search")
}

// CanProcess reports whether the item is in a status the search stage accepts.
func (s *Searcher) CanProcess(item *catalog.Item) bool {
	return item != nil && catalog.StatusAcceptableForStage(item.Status, catalog.StageSearch)
}

// Process runs progressively broader mirror queries until one yields
// qualifying candidates, scores them against the item's metadata, and stores
// the ranked list with the winner's URL on the item. No qualifying candidate
// after the last pass returns services.ErrNoResults.
func (s *Searcher) Process(ctx context.Context, item *catalog.Item) error {
	logger := logging.WithContext(ctx, s.logger)
	item.ErrorMessage = ""
	item.SetProgress("Searching", "Checking the shelf", 0)
	persistProgress(ctx, s.store, s.logger, item, "Checking the shelf", 0)

	if strings.TrimSpace(item.Title) == "" && strings.TrimSpace(item.Author) == "" {
		return services.Wrap(services.ErrValidation, "search", "validate inputs",
			"Item has no searchable metadata; rerun detail fetch", nil)
	}

	exists, err := s.shelf.Exists(ctx, shelfMetadata(item))
	if err != nil {
		logger.Warn("shelf existence check failed, continuing", logging.Error(err))
	} else if exists {
		return services.Wrap(services.ErrAlreadyExists, "search", "duplicate check",
			fmt.Sprintf("Already on the shelf: %s", itemLabel(item)), nil)
	}

	queries := searchQueries(item)
	queryLang := queryLanguage(item, s.cfg.Mirror.PreferredLanguages)

	var scored []mirror.Candidate
	for i, query := range queries {
		query.Language = queryLang
		query.Limit = s.cfg.Mirror.MaxCandidates
		persistProgress(ctx, s.store, s.logger, item,
			fmt.Sprintf("Searching mirror (pass %d of %d)", i+1, len(queries)), 10+float64(i)*20)

		found, err := s.mirror.Search(ctx, query)
		if err != nil {
			return err
		}
		scored = scoreCandidates(item, found)
		if len(scored) > 0 {
			logger.Debug("search pass produced candidates",
				logging.Int("pass", i+1),
				logging.Int("count", len(scored)))
			break
		}
	}

	if len(scored) == 0 {
		if s.notifier != nil {
			if err := s.notifier.Publish(ctx, notifications.EventNoResults, notifications.Payload{
				"title": itemLabel(item),
			}); err != nil {
				logger.Warn("no-results notification failed", logging.Error(err))
			}
		}
		return services.Wrap(services.ErrNoResults, "search", "evaluate candidates",
			fmt.Sprintf("No qualifying mirror results for %s", itemLabel(item)), nil)
	}

	if max := s.cfg.Mirror.MaxCandidates; max > 0 && len(scored) > max {
		scored = scored[:max]
	}
	winner := pickWinner(scored, s.cfg.Mirror.PreferredFormats)

	encoded, err := mirror.EncodeCandidates(scored)
	if err != nil {
		return services.Wrap(services.ErrTransient, "search", "encode candidates",
			"Failed to encode candidate list", err)
	}
	item.CandidatesJSON = encoded
	item.SourceURL = winner.DownloadURL
	if winner.Format != "" {
		item.Format = strings.ToLower(winner.Format)
	}
	if item.Language == "" {
		if code := language.ToISO2(winner.Language); code != "" {
			item.Language = code
		}
	}
	if item.Year == 0 && winner.Year > 0 {
		item.Year = winner.Year
	}

	persistProgress(ctx, s.store, s.logger, item,
		fmt.Sprintf("Selected %s candidate (score %.2f)", strings.ToLower(winner.Format), winner.Score), 100)
	logger.Info("search completed",
		logging.String("external_id", item.ExternalID),
		logging.Float64("score", winner.Score),
		logging.String("format", winner.Format),
		logging.Int("candidates", len(scored)))
	return nil
}

// searchQueries builds the progressive query ladder: title plus author,
// title alone, then the title with any subtitle trimmed. Items with only an
// author get a single author query.
func searchQueries(item *catalog.Item) []mirror.Query {
	title := strings.TrimSpace(item.Title)
	author := strings.TrimSpace(item.Author)

	var queries []mirror.Query
	if title != "" && author != "" {
		queries = append(queries, mirror.Query{Title: title, Author: author})
	}
	if title != "" {
		queries = append(queries, mirror.Query{Title: title})
		if short := trimSubtitle(title); short != title {
			queries = append(queries, mirror.Query{Title: short})
		}
	}
	if len(queries) == 0 && author != "" {
		queries = append(queries, mirror.Query{Author: author})
	}
	return queries
}

// trimSubtitle drops a subtitle or parenthetical qualifier from a title.
func trimSubtitle(title string) string {
	if idx := strings.IndexAny(title, ":("); idx > 0 {
		return strings.TrimSpace(title[:idx])
	}
	return title
}

// queryLanguage picks the language the mirror should narrow to: the item's
// own language when known, otherwise the first configured preference.
func queryLanguage(item *catalog.Item, preferred []string) string {
	if lang := strings.TrimSpace(item.Language); lang != "" {
		return lang
	}
	if len(preferred) > 0 {
		return strings.TrimSpace(preferred[0])
	}
	return ""
}

// HealthCheck verifies search stage prerequisites.
func (s *Searcher) HealthCheck(ctx context.Context) stage.Health {
	const name = "search"
	if s.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(s.cfg.Mirror.BaseURL) == "" {
		return stage.Unhealthy(name, "mirror URL not configured")
	}
	if s.mirror == nil {
		return stage.Unhealthy(name, "mirror client unavailable")
	}
	if s.shelf == nil {
		return stage.Unhealthy(name, "shelf service unavailable")
	}
	return stage.Healthy(name)
}
