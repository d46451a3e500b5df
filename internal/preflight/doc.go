// Package preflight verifies that folio's environment is ready before the
// daemon starts processing: directories exist and are writable, the staging
// filesystem has headroom, the source, mirror, and shelf endpoints respond,
// and the catalog database is intact. The status command runs the same
// checks so operators see what the daemon sees.
package preflight
