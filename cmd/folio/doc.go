// Package main hosts the folio CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC
// calls against the daemon, catalog maintenance operations, quota checks,
// one-shot pipeline runs, and configuration scaffolding. Commands that read
// or mutate the catalog go through internal/catalogaccess so they work
// whether or not the daemon is running.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
