package recovery

import (
	"errors"
	"math/rand/v2"
	"time"

	"folio/internal/catalog"
	"folio/internal/services"
)

const (
	maxTransientAttempts = 5
	retryBase            = 30 * time.Second
	retryCap             = time.Hour
	jitterRatio          = 0.2
)

// Action is a mechanical recovery decision for a failed stage attempt.
type Action interface{ isAction() }

// Retry requeues the task after Delay.
type Retry struct {
	Delay time.Duration
}

// Skip retires the item into a non-failure terminal status.
type Skip struct {
	Status catalog.Status
	Reason string
}

// Fail finalizes the item as permanently failed with Reason recorded in its
// history.
type Fail struct {
	Reason string
}

// Gate parks download work until the quota gate reopens. Never a failure.
type Gate struct{}

func (Retry) isAction() {}
func (Skip) isAction()  {}
func (Fail) isAction()  {}
func (Gate) isAction()  {}

// Decide turns a stage failure into a recovery action. attempts is the
// number of tries already spent on the task. Items already present on the
// shelf skip before any category applies.
func Decide(stage catalog.Stage, err error, attempts int) Action {
	if err == nil {
		return Fail{Reason: "failed without error detail"}
	}
	if errors.Is(err, services.ErrAlreadyExists) {
		return Skip{Status: catalog.StatusSkippedExists, Reason: reasonFor(err)}
	}

	switch Classify(err).Category {
	case RateLimitOrQuota:
		return Gate{}
	case TransientNetwork:
		if attempts < maxTransientAttempts {
			return Retry{Delay: retryDelay(attempts)}
		}
		return Fail{Reason: reasonFor(err)}
	case ResourceNotFound:
		if stage == catalog.StageSearch {
			return Skip{Status: catalog.StatusSearchNoResults, Reason: reasonFor(err)}
		}
		return Fail{Reason: reasonFor(err)}
	default:
		return Fail{Reason: reasonFor(err)}
	}
}

func reasonFor(err error) string {
	details := services.Details(err)
	if details.Message != "" {
		return details.Message
	}
	return err.Error()
}

// retryDelay doubles from the base per spent attempt, capped at an hour,
// with ±20% jitter so synchronized failures spread out.
func retryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	delay := retryBase
	for i := 0; i < attempts && delay < retryCap; i++ {
		delay *= 2
	}
	if delay > retryCap {
		delay = retryCap
	}
	spread := 1 + jitterRatio*(2*rand.Float64()-1)
	return time.Duration(float64(delay) * spread)
}
