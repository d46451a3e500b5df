package recovery

import (
	"errors"
	"strings"

	"folio/internal/services"
)

// Category buckets stage failures by the recovery they need.
type Category string

const (
	TransientNetwork Category = "transient_network"
	AuthRequired     Category = "auth_required"
	ResourceNotFound Category = "resource_not_found"
	RateLimitOrQuota Category = "rate_limit_or_quota"
	Fatal            Category = "fatal"
)

// Classification describes how a stage failure should be treated.
type Classification struct {
	Category       Category
	RequiresReview bool
}

var sentinelCategories = []struct {
	marker   error
	category Category
	review   bool
}{
	{services.ErrQuotaExhausted, RateLimitOrQuota, false},
	{services.ErrNoResults, ResourceNotFound, false},
	{services.ErrAuth, AuthRequired, true},
	{services.ErrNotFound, ResourceNotFound, false},
	{services.ErrTimeout, TransientNetwork, false},
	{services.ErrTransient, TransientNetwork, false},
	{services.ErrConfiguration, Fatal, true},
	{services.ErrValidation, Fatal, false},
}

var (
	transientPatterns = []string{
		"timeout", "timed out", "connection", "reset by peer", "dns",
		"temporarily unavailable", "503", "502",
	}
	authPatterns = []string{
		"unauthorized", "401", "403", "forbidden", "login required",
	}
	notFoundPatterns = []string{
		"404", "not found", "no longer available",
	}
	quotaPatterns = []string{
		"quota", "rate limit", "429", "daily limit",
	}
	reviewPatterns = []string{
		"disk space", "permission denied",
	}
)

// Classify reports the failure category for a stage error. Wrapped sentinel
// markers win; unmarked errors fall back to message heuristics. Unknown
// failures are fatal so they cannot retry forever.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Category: Fatal}
	}
	for _, entry := range sentinelCategories {
		if errors.Is(err, entry.marker) {
			return Classification{Category: entry.category, RequiresReview: entry.review}
		}
	}
	return classifyMessage(strings.ToLower(err.Error()))
}

// RequiresReview reports whether a failure needs human attention before the
// item is worth retrying.
func RequiresReview(err error) bool {
	return Classify(err).RequiresReview
}

func classifyMessage(message string) Classification {
	switch {
	case containsAny(message, transientPatterns):
		return Classification{Category: TransientNetwork}
	case containsAny(message, authPatterns):
		return Classification{Category: AuthRequired, RequiresReview: true}
	case containsAny(message, notFoundPatterns):
		return Classification{Category: ResourceNotFound}
	case containsAny(message, quotaPatterns):
		return Classification{Category: RateLimitOrQuota}
	default:
		return Classification{Category: Fatal, RequiresReview: containsAny(message, reviewPatterns)}
	}
}

func containsAny(message string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}
