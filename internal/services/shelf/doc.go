// Package shelf delivers finished downloads to their destination library.
// When a shelf server is configured uploads go over HTTP; otherwise files
// are organized into the local library directory.
package shelf
