// Package mirror implements the HTTP client for the search and download
// mirror: candidate search, file streaming into staging, and the daily
// download limit endpoint that feeds the quota gate.
package mirror
