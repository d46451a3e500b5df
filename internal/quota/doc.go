// Package quota gates download work behind the mirror's daily limit.
//
// The Manager caches the mirror's limits reading for a configurable TTL and
// collapses concurrent refreshes into one provider call. A failed refresh
// serves the previous snapshot in degraded mode; with no snapshot at all
// the error surfaces, because unknown quota must read as unavailable, never
// as unlimited.
//
// Exhaustion is flow control, not failure: Park rolls download-phase items
// back and parks them, and Reconcile re-admits every parked item exactly
// once when the gate reopens.
package quota
