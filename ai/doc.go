// Package ai defines the contract for the external embedding capability.
//
// The pipeline treats the embedding service as a black-box remote capability
// with a quota: implementations translate provider responses into the
// transient/fatal error taxonomy so that the batcher and orchestrator can
// decide what to retry.
package ai
