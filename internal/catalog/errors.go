package catalog

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks. The typed errors below carry the
// detail; these let callers branch without unpacking.
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("status conflict")
	ErrItemNotFound      = errors.New("item not found")
	ErrTaskNotFound      = errors.New("task not found")
)

// InvalidTransitionError reports an attempt to move an item along an edge
// that the lifecycle graph does not allow.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ConflictError reports a transition that lost a race: the item's current
// status no longer matches what the caller observed.
type ConflictError struct {
	ItemID   int64
	Expected Status
	Actual   Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("item %d status changed: expected %s, found %s", e.ItemID, e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
