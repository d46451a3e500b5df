package stage

import (
	"folio/internal/services"
	"folio/internal/services/mirror"
)

// ParseCandidates parses the candidate list stored on an item.
// On failure it returns a services.ErrValidation suitable for stage Process methods.
func ParseCandidates(raw string) ([]mirror.Candidate, error) {
	candidates, err := mirror.ParseCandidates(raw)
	if err != nil {
		return nil, services.Wrap(
			services.ErrValidation, "stage", "parse candidates",
			"Search candidates missing or invalid; rerun search", err)
	}
	return candidates, nil
}
