package pipeline

import "time"

// SetReconcileIntervalForTests shortens the janitor's quota reconcile tick
// and returns a function that restores the previous interval. Apply it
// before Start; the janitor reads the interval once.
func SetReconcileIntervalForTests(d time.Duration) func() {
	previous := reconcileInterval
	reconcileInterval = d
	return func() {
		reconcileInterval = previous
	}
}
