// Package version carries the build version stamped in via ldflags.
package version

// Version is overridden at build time with
// -ldflags "-X folio/internal/version.Version=v1.2.3".
var Version = "dev"
