// Package pipeline advances catalog items through the acquisition stages.
//
// The Manager claims tasks from the scheduler, verifies the registered stage
// handler accepts the item, walks the item through its queued and active
// statuses, runs the handler under a heartbeat, and applies the outcome:
// success transitions the item to the stage's done status and schedules the
// next stage, failure goes through the recovery classifier (retry with
// backoff, skip, permanent failure, or quota parking). Workers provide
// cross-item concurrency only; per-item ordering comes from the task table's
// live-uniqueness and from scheduling stage N+1 strictly after stage N's
// transition committed.
//
// Run drives the loop until its context is cancelled (daemon mode); RunOnce
// drains the queue and returns a summary (one-shot mode). Both start with
// crash recovery so interrupted work is rolled back and re-admitted before
// the first claim.
package pipeline
