package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrConfiguration  = errors.New("configuration error")
	ErrNotFound       = errors.New("not found")
	ErrTimeout        = errors.New("timeout")
	ErrTransient      = errors.New("transient failure")
	ErrAuth           = errors.New("authentication required")
	ErrQuotaExhausted = errors.New("download quota exhausted")
	ErrNoResults      = errors.New("no results")
	ErrAlreadyExists  = errors.New("already exists")
)

// Kind names the classification a sentinel marker carries. It is what stage
// errors are grouped by in logs and history records.
type Kind string

const (
	KindUnknown       Kind = "unknown"
	KindValidation    Kind = "validation"
	KindConfiguration Kind = "configuration"
	KindNotFound      Kind = "not_found"
	KindTimeout       Kind = "timeout"
	KindTransient     Kind = "transient"
	KindAuth          Kind = "auth"
	KindQuota         Kind = "quota"
	KindNoResults     Kind = "no_results"
	KindExists        Kind = "exists"
)

var markerKinds = []struct {
	marker error
	kind   Kind
}{
	{ErrQuotaExhausted, KindQuota},
	{ErrNoResults, KindNoResults},
	{ErrAlreadyExists, KindExists},
	{ErrAuth, KindAuth},
	{ErrNotFound, KindNotFound},
	{ErrValidation, KindValidation},
	{ErrConfiguration, KindConfiguration},
	{ErrTimeout, KindTimeout},
	{ErrTransient, KindTransient},
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf reports the classification of a wrapped error. Unmarked errors are
// KindUnknown; the recovery package falls back to message heuristics for those.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, entry := range markerKinds {
		if errors.Is(err, entry.marker) {
			return entry.kind
		}
	}
	return KindUnknown
}

// ErrorDetails summarizes a wrapped error for logging and history records.
type ErrorDetails struct {
	Kind    Kind
	Message string
	Cause   error
}

// Details unwraps a stage error into its classification, a display message
// with the marker prefix trimmed, and the deepest cause when one exists.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	details := ErrorDetails{
		Kind:    KindOf(err),
		Message: trimMarkerPrefix(strings.TrimSpace(err.Error())),
	}
	if cause := rootCause(err); cause != err {
		details.Cause = cause
	}
	return details
}

func trimMarkerPrefix(msg string) string {
	for _, entry := range markerKinds {
		prefix := entry.marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

func rootCause(err error) error {
	for {
		switch unwrapped := err.(type) {
		case interface{ Unwrap() error }:
			next := unwrapped.Unwrap()
			if next == nil {
				return err
			}
			err = next
		case interface{ Unwrap() []error }:
			nested := unwrapped.Unwrap()
			if len(nested) == 0 {
				return err
			}
			err = nested[len(nested)-1]
		default:
			return err
		}
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
