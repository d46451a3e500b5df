// Package scheduler manages the persistent queue of stage tasks.
//
// It layers dispatch policy over the catalog store: duplicate scheduling
// returns the existing live task, claims respect priority (lower value
// first) and the active-task cap, failures requeue with exponential backoff
// and jitter until the retry budget runs out, and finished tasks are pruned
// after their retention windows.
//
// The scheduler never touches item statuses. The pipeline owns the item
// state machine and calls Complete, Fail, or Cancel after it has applied
// the matching item transition.
package scheduler
