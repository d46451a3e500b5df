// Package source implements the HTTP client for the catalog metadata API
// that detail fetching reads from.
package source
