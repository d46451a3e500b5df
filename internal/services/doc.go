// Package services defines shared plumbing for the external service clients
// and the pipeline stages that call them.
//
// It provides context helpers that stamp item IDs, stage names, worker labels,
// and correlation IDs onto a context.Context, and structured error markers
// plus the Wrap helper that let the recovery package classify failures with
// errors.Is instead of string matching at call sites.
package services
