package embed

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	embeddingRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docvault_embedding_requests_total",
		Help: "Embedding API requests issued, including retries.",
	})
	embeddingRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docvault_embedding_retries_total",
		Help: "Embedding batch attempts retried after a transient failure.",
	})
	chunksEmbedded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docvault_chunks_embedded_total",
		Help: "Chunks that received an embedding vector.",
	})
	tokensEmbedded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docvault_tokens_embedded_total",
		Help: "Token count of embedded chunks, as counted by the chunker.",
	})
)

// Usage is a point-in-time snapshot of one batcher's embedding activity.
// The same numbers feed the Prometheus counters, which aggregate across
// batchers.
type Usage struct {
	Requests uint64
	Retries  uint64
	Chunks   uint64
	Tokens   uint64
}

type usageCounters struct {
	requests atomic.Uint64
	retries  atomic.Uint64
	chunks   atomic.Uint64
	tokens   atomic.Uint64
}

func (u *usageCounters) snapshot() Usage {
	return Usage{
		Requests: u.requests.Load(),
		Retries:  u.retries.Load(),
		Chunks:   u.chunks.Load(),
		Tokens:   u.tokens.Load(),
	}
}
