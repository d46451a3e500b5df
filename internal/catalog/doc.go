// Package catalog persists pipeline items in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, validated
// status transitions with an append-only history, the task rows the scheduler
// dispatches from, stats queries, heartbeat tracking, and stuck-item
// recovery. Items capture acquisition metadata (external IDs, chosen
// candidates, staging files, checksums) so stages can coordinate without
// additional state.
//
// The database is treated as transient storage for in-flight work rather than
// a long-term archive. Schema changes bump the version in schema.go; users
// clear the database to adopt the new schema.
//
// Treat this package as the single source of truth for lifecycle semantics;
// when you add new statuses or metadata fields, update schema.sql, the
// transition graph, and bump schemaVersion.
package catalog
