// Package chunk splits extracted document text into overlapping,
// token-bounded segments ready for embedding.
//
// The engine supports three strategies: semantic (paragraph-greedy,
// the default), fixed (position-exact token windows), and markdown
// (paragraph-greedy with heading paths and fence protection). Input is
// consumed as a stream of paragraphs so multi-gigabyte documents never
// need to be held in memory.
package chunk
