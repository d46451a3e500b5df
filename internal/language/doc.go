// Package language provides unified language code normalization and mapping.
//
// All language-related conversions (ISO 639-1, ISO 639-2, display names,
// preference matching) are consolidated here to avoid duplication across
// the detail, search, and upload stages.
package language
