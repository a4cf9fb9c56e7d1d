// Package extract normalizes raw document bytes into plain text.
//
// Extraction is pluggable per format: a Registry maps content types to
// strategies, all implementing the same streaming contract. An unknown
// content type is a fatal error for the document; it cannot succeed
// without different input.
package extract
