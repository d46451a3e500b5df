// Package textutil provides text processing utilities for fingerprinting,
// similarity scoring, and filename sanitization.
//
// The primary use cases are:
//   - Creating token-based fingerprints from titles and author names
//   - Computing cosine similarity between a query and mirror candidates
//   - Sanitizing titles and path segments for safe filesystem use
//   - Normalizing display casing for titles pulled from catalog metadata
//
// Fingerprints use term frequency vectors normalized for efficient comparison.
// The tokenization process lowercases text, splits on non-alphanumeric
// characters, and filters tokens shorter than 3 characters.
package textutil
