// Package embed turns chunks into embedding vectors in rate-limited,
// retried batches.
//
// The batcher owns no storage: callers supply a persist callback that
// runs after each successful batch, so partial progress survives a
// failure later in the run. A shared RateLimiter throttles every
// embedding request in the process, including search queries.
package embed
