package mirror

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Candidate is one search result from the mirror. Score is filled in by the
// search stage after preference weighting; the mirror itself returns it
// zero.
type Candidate struct {
	MirrorID    string  `json:"mirror_id"`
	Title       string  `json:"title"`
	Authors     string  `json:"authors"`
	Publisher   string  `json:"publisher,omitempty"`
	Year        int     `json:"year,omitempty"`
	Language    string  `json:"language,omitempty"`
	Format      string  `json:"format"`
	ISBN        string  `json:"isbn,omitempty"`
	SizeBytes   int64   `json:"size_bytes,omitempty"`
	DownloadURL string  `json:"download_url"`
	Score       float64 `json:"score,omitempty"`
}

// EncodeCandidates serializes a scored candidate list for storage on the
// item.
func EncodeCandidates(candidates []Candidate) (string, error) {
	if len(candidates) == 0 {
		return "", nil
	}
	data, err := json.Marshal(candidates)
	if err != nil {
		return "", fmt.Errorf("encode candidates: %w", err)
	}
	return string(data), nil
}

// ParseCandidates deserializes a stored candidate list. An empty string
// yields an empty list.
func ParseCandidates(raw string) ([]Candidate, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var candidates []Candidate
	if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
		return nil, fmt.Errorf("parse candidates: %w", err)
	}
	return candidates, nil
}
