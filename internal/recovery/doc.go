// Package recovery classifies stage failures and decides mechanical
// recovery actions.
//
// Classify buckets an error into one of five categories, trusting the
// sentinel markers from internal/services first and falling back to message
// heuristics for unmarked errors. Decide turns the category into an Action:
// transient failures retry with exponential backoff and jitter until their
// attempt budget runs out, quota exhaustion gates download work instead of
// failing it, missing resources skip the item, and everything else
// finalizes as a permanent failure.
//
// The pipeline applies actions; this package never touches the store.
package recovery
