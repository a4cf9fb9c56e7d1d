// Package pipeline orchestrates document processing: extract, chunk,
// embed, store.
//
// Each run is recorded as a workflow execution, and each stage writes
// one row to the processing job ledger per attempt set; retries update
// the row in place. Progress is durable: after a crash, a run resumes
// from the first stage without a completed job instead of repeating
// finished work. Cancellation is cooperative and takes effect at stage
// boundaries.
package pipeline
