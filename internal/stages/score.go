package stages

import (
	"sort"
	"strings"

	"folio/internal/catalog"
	"folio/internal/language"
	"folio/internal/services/mirror"
	"folio/internal/textutil"
)

// minMatchScore is the floor below which a candidate is not worth a download
// attempt.
const minMatchScore = 0.6

// formatWindow bounds how far behind the best score a candidate may trail
// and still win on format preference alone.
const formatWindow = 0.1

// scoreCandidates filters out unusable candidates, scores the rest against
// the item's metadata, and returns them sorted best first. Candidates without
// a download URL, with a mismatched language, or scoring under minMatchScore
// are dropped.
func scoreCandidates(item *catalog.Item, candidates []mirror.Candidate) []mirror.Candidate {
	usable := make([]mirror.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if strings.TrimSpace(cand.DownloadURL) == "" {
			continue
		}
		if !languageAcceptable(cand.Language, item.Language) {
			continue
		}
		score := matchScore(item, cand)
		if score < minMatchScore {
			continue
		}
		cand.Score = score
		usable = append(usable, cand)
	}
	sort.SliceStable(usable, func(i, j int) bool {
		return usable[i].Score > usable[j].Score
	})
	return usable
}

// languageAcceptable reports whether a candidate's language satisfies the
// item's. Either side being unknown is acceptable.
func languageAcceptable(candidate, wanted string) bool {
	if strings.TrimSpace(candidate) == "" || strings.TrimSpace(wanted) == "" {
		return true
	}
	return language.Matches(candidate, wanted)
}

// matchScore weighs title, author, publisher, and year agreement, normalized
// by the weight of the fields both sides actually carry.
func matchScore(item *catalog.Item, cand mirror.Candidate) float64 {
	var score, total float64
	if item.Title != "" && cand.Title != "" {
		score += 0.45 * textSimilarity(item.Title, cand.Title)
		total += 0.45
	}
	if item.Author != "" && cand.Authors != "" {
		score += 0.30 * textSimilarity(item.Author, cand.Authors)
		total += 0.30
	}
	if item.Publisher != "" && cand.Publisher != "" {
		score += 0.15 * textSimilarity(item.Publisher, cand.Publisher)
		total += 0.15
	}
	if item.Year > 0 && cand.Year > 0 {
		score += 0.10 * yearScore(item.Year, cand.Year)
		total += 0.10
	}
	if total == 0 {
		return 0
	}
	return score / total
}

// textSimilarity compares two strings by cosine similarity of their token
// fingerprints. Strings too short to fingerprint fall back to a
// case-insensitive exact compare.
func textSimilarity(a, b string) float64 {
	fa := textutil.NewFingerprint(a)
	fb := textutil.NewFingerprint(b)
	if fa == nil || fb == nil {
		if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
			return 1
		}
		return 0
	}
	return textutil.CosineSimilarity(fa, fb)
}

// yearScore tolerates small publication-year drift between editions.
func yearScore(want, got int) float64 {
	diff := want - got
	if diff < 0 {
		diff = -diff
	}
	switch diff {
	case 0:
		return 1
	case 1:
		return 0.8
	case 2:
		return 0.6
	default:
		return 0
	}
}

// formatRank orders a format by the configured preference list; higher ranks
// are preferred and unlisted formats rank zero.
func formatRank(format string, preferred []string) int {
	format = strings.ToLower(strings.TrimSpace(format))
	for i, p := range preferred {
		if strings.ToLower(strings.TrimSpace(p)) == format {
			return len(preferred) - i
		}
	}
	return 0
}

// pickWinner selects the download target from a best-first candidate list.
// Among the top three candidates within formatWindow of the best score, a
// better-ranked format wins; otherwise the highest score stands.
func pickWinner(scored []mirror.Candidate, preferred []string) mirror.Candidate {
	best := scored[0]
	bestRank := formatRank(best.Format, preferred)

	limit := 3
	if len(scored) < limit {
		limit = len(scored)
	}
	for _, cand := range scored[1:limit] {
		if best.Score-cand.Score > formatWindow {
			break
		}
		if rank := formatRank(cand.Format, preferred); rank > bestRank {
			best = cand
			bestRank = rank
		}
	}
	return best
}
