// Package api defines wire-format types and converters for the IPC layer.
// It translates internal catalog models into transport-friendly DTOs so the
// CLI and other consumers can render them without coupling to internal types.
//
// DTOs use camelCase JSON tags. Internal enums (catalog.Status, catalog.Stage)
// are exposed as lowercase strings. Timestamps use RFC3339 with milliseconds.
// Candidate lists are passed through as json.RawMessage to avoid
// double-encoding.
package api
