// Package daemon coordinates the long-running folio process.
//
// It wires configuration, the catalog store, and the pipeline manager into a
// single lifecycle with flock-based locking to prevent multiple instances,
// and runs the cron-scheduled maintenance janitor (task pruning, staging
// cleanup, log retention). The daemon exposes the catalog maintenance
// helpers the IPC layer delegates to.
//
// Keep orchestration logic here: pipeline mechanics live in
// internal/pipeline while the daemon focuses on startup, shutdown, and
// high-level coordination.
package daemon
